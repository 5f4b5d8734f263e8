package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionStatus type for the workout session lifecycle
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"   // Created, athlete has not started moving yet
	StatusWarmup    SessionStatus = "warmup"    // Warm-up segment in progress
	StatusActive    SessionStatus = "active"    // Main effort in progress
	StatusPaused    SessionStatus = "paused"    // Temporarily stopped; pausedAt is set
	StatusCooldown  SessionStatus = "cooldown"  // Cool-down segment in progress
	StatusCompleted SessionStatus = "completed" // Finished and (optionally) recorded
	StatusCancelled SessionStatus = "cancelled" // Abandoned; never recorded
)

// IsValid reports whether s is one of the known status values.
func (s SessionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusWarmup, StatusActive, StatusPaused,
		StatusCooldown, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the session can no longer be mutated.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// legalTransitions is the edge table for the session state machine.
// paused does not remember where it was entered from, so it may resume
// into any of the three pausable states; the caller names the target.
var legalTransitions = map[SessionStatus][]SessionStatus{
	StatusPending:  {StatusWarmup, StatusActive, StatusCancelled},
	StatusWarmup:   {StatusActive, StatusPaused, StatusCancelled},
	StatusActive:   {StatusCooldown, StatusPaused, StatusCancelled},
	StatusPaused:   {StatusWarmup, StatusActive, StatusCooldown, StatusCancelled},
	StatusCooldown: {StatusCompleted, StatusPaused, StatusCancelled},
}

// CanTransitionTo reports whether the state machine permits moving from s
// to next. Terminal states have no outgoing edges. Restating the current
// non-terminal status is legal: status updates are the only carrier for
// live metrics and phase progress, so a steady-state update must pass.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if next == s {
		return !s.IsTerminal()
	}
	for _, allowed := range legalTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// LiveMetrics is the most recent externally supplied metric snapshot for a
// session. It is replaced wholesale on every update; no history is kept here.
type LiveMetrics struct {
	DistanceMeters   float64 `bson:"distanceMeters" json:"distanceMeters"`
	DurationSeconds  int     `bson:"durationSeconds" json:"durationSeconds"`
	CurrentPace      float64 `bson:"currentPace,omitempty" json:"currentPace,omitempty"`           // seconds per km
	AveragePace      float64 `bson:"averagePace,omitempty" json:"averagePace,omitempty"`           // seconds per km
	CurrentHeartRate int     `bson:"currentHeartRate,omitempty" json:"currentHeartRate,omitempty"` // bpm
	AverageHeartRate int     `bson:"averageHeartRate,omitempty" json:"averageHeartRate,omitempty"` // bpm
	Calories         int     `bson:"calories,omitempty" json:"calories,omitempty"`
	Cadence          int     `bson:"cadence,omitempty" json:"cadence,omitempty"` // steps per minute
}

// Checkpoint is an immutable, server-timestamped progress snapshot.
// Timestamps within one session are non-decreasing because the server
// stamps them while holding the session's write lock.
type Checkpoint struct {
	Timestamp       time.Time `bson:"timestamp" json:"timestamp"`
	DistanceMeters  float64   `bson:"distanceMeters" json:"distanceMeters"`
	DurationSeconds int       `bson:"durationSeconds" json:"durationSeconds"`
	HeartRate       *int      `bson:"heartRate,omitempty" json:"heartRate,omitempty"`
	Pace            *float64  `bson:"pace,omitempty" json:"pace,omitempty"`
}

// WorkoutSummary is the caller-supplied payload handed to the workout
// recorder when a session is finished.
type WorkoutSummary struct {
	Title            string  `bson:"title,omitempty" json:"title,omitempty"`
	DistanceMeters   float64 `bson:"distanceMeters" json:"distanceMeters"`
	DurationSeconds  int     `bson:"durationSeconds" json:"durationSeconds"`
	AveragePace      float64 `bson:"averagePace,omitempty" json:"averagePace,omitempty"`
	AverageHeartRate int     `bson:"averageHeartRate,omitempty" json:"averageHeartRate,omitempty"`
	Calories         int     `bson:"calories,omitempty" json:"calories,omitempty"`
	Notes            string  `bson:"notes,omitempty" json:"notes,omitempty"`
}

// WorkoutSession is one live, in-progress training effort. At most one
// session per user may be in a non-terminal status at any time; the
// repository enforces that on create.
type WorkoutSession struct {
	ID                   primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID               primitive.ObjectID  `bson:"userId" json:"userId"`
	PlannedWorkoutID     *primitive.ObjectID `bson:"plannedWorkoutId,omitempty" json:"plannedWorkoutId,omitempty"` // Opaque reference, never dereferenced here
	Status               SessionStatus       `bson:"status" json:"status"`
	CurrentPhase         string              `bson:"currentPhase,omitempty" json:"currentPhase,omitempty"` // Advisory label, e.g. "interval 3 of 6"
	CurrentIntervalIndex int                 `bson:"currentIntervalIndex" json:"currentIntervalIndex"`
	StartedAt            time.Time           `bson:"startedAt" json:"startedAt"`
	PausedAt             *time.Time          `bson:"pausedAt,omitempty" json:"pausedAt,omitempty"`       // Set only while status is paused
	CompletedAt          *time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"` // Set on completed or cancelled
	TotalPausedSeconds   int64               `bson:"totalPausedSeconds" json:"totalPausedSeconds"`       // Monotonically non-decreasing
	LiveMetrics          *LiveMetrics        `bson:"liveMetrics,omitempty" json:"liveMetrics,omitempty"`
	Checkpoints          []Checkpoint        `bson:"checkpoints" json:"checkpoints"` // Append-only
	FinalWorkoutID       *primitive.ObjectID `bson:"finalWorkoutId,omitempty" json:"finalWorkoutId,omitempty"` // Set at most once, on successful finalization
	ArchiveObjectKey     string              `bson:"archiveObjectKey,omitempty" json:"-"`                      // Object-storage key of the checkpoint archive
	Active               bool                `bson:"active" json:"-"`                                          // Mirrors !Status.IsTerminal(); maintained by the store for the active-session index
	CreatedAt            time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// IsActive reports whether the session still counts toward the
// single-active-session-per-user invariant.
func (s *WorkoutSession) IsActive() bool {
	return !s.Status.IsTerminal()
}

// NonTerminalStatuses lists every status an active session can hold.
// Used by repositories to build the active-session lookup.
func NonTerminalStatuses() []SessionStatus {
	return []SessionStatus{StatusPending, StatusWarmup, StatusActive, StatusPaused, StatusCooldown}
}
