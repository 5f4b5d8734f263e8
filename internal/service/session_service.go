package service

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/repository"
	"alcyxob/session-tracker/internal/storage"
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidStatus      = errors.New("unknown session status")
	ErrInvalidTransition  = errors.New("status transition not permitted")
	ErrTerminalSession    = errors.New("session is already completed or cancelled")
	ErrFinalizationFailed = errors.New("failed to record workout")
	ErrExportUnavailable  = errors.New("no checkpoint archive exists for this session")
)

// ActiveSessionError is returned by Start when the user already owns a
// non-terminal session. It carries the existing session so the client can
// offer "resume instead".
type ActiveSessionError struct {
	Existing *domain.WorkoutSession
}

func (e *ActiveSessionError) Error() string {
	return "user already has an active session"
}

// StatusUpdate carries the optional fields a client may send alongside a
// status change. LiveMetrics replaces the stored snapshot wholesale.
type StatusUpdate struct {
	Phase         *string
	IntervalIndex *int
	LiveMetrics   *domain.LiveMetrics
}

// CheckpointInput is a caller-supplied progress snapshot. The timestamp is
// assigned by the server, never by the client.
type CheckpointInput struct {
	DistanceMeters  float64
	DurationSeconds int
	HeartRate       *int
	Pace            *float64
}

// SessionService manages the live workout-session lifecycle: creation,
// status transitions with pause accounting, checkpointing, and
// finalization into a permanent workout record.
type SessionService interface {
	Start(ctx context.Context, userID primitive.ObjectID, plannedWorkoutID *primitive.ObjectID) (*domain.WorkoutSession, error)
	GetSession(ctx context.Context, userID, sessionID primitive.ObjectID) (*domain.WorkoutSession, error)
	ActiveSession(ctx context.Context, userID primitive.ObjectID) (*domain.WorkoutSession, error)
	UpdateStatus(ctx context.Context, userID, sessionID primitive.ObjectID, requested domain.SessionStatus, update StatusUpdate) (*domain.WorkoutSession, error)
	AddCheckpoint(ctx context.Context, userID, sessionID primitive.ObjectID, input CheckpointInput) (*domain.WorkoutSession, error)
	Finish(ctx context.Context, userID, sessionID primitive.ObjectID, summary *domain.WorkoutSummary) (*domain.WorkoutSession, error)
	ExportURL(ctx context.Context, userID, sessionID primitive.ObjectID) (string, error)
}

// sessionService implements the SessionService interface.
type sessionService struct {
	sessionRepo repository.SessionRepository
	finalizer   *Finalizer
	fileStorage storage.FileStorage // may be nil when archiving is disabled
	logger      zerolog.Logger
	now         func() time.Time
	locks       sync.Map // session id hex -> *sync.Mutex
}

// NewSessionService creates a new instance of sessionService. fileStorage
// may be nil; the export endpoint then reports archives as unavailable.
func NewSessionService(
	sessionRepo repository.SessionRepository,
	finalizer *Finalizer,
	fileStorage storage.FileStorage,
	logger zerolog.Logger,
) SessionService {
	return &sessionService{
		sessionRepo: sessionRepo,
		finalizer:   finalizer,
		fileStorage: fileStorage,
		logger:      logger.With().Str("component", "session_service").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// lockSession serializes all mutating operations on one session. Server
// timestamps are read while the lock is held, so per-session ordering
// (checkpoint monotonicity, pause accounting) follows from it.
func (s *sessionService) lockSession(id primitive.ObjectID) func() {
	v, _ := s.locks.LoadOrStore(id.Hex(), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// releaseLockEntry drops the mutex for a session that reached a terminal
// status. A stale id getting a fresh mutex later is harmless: the store
// rejects every mutation of a terminal session on its own.
func (s *sessionService) releaseLockEntry(id primitive.ObjectID) {
	s.locks.Delete(id.Hex())
}

// ownedSession loads a session and hides its existence from anyone but the
// owner: a wrong-owner lookup is indistinguishable from a missing id.
func (s *sessionService) ownedSession(ctx context.Context, userID, sessionID primitive.ObjectID) (*domain.WorkoutSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Start creates a pending session for the user. The repository enforces
// the single-active-session invariant atomically; on conflict the existing
// session is fetched and returned inside an ActiveSessionError.
func (s *sessionService) Start(ctx context.Context, userID primitive.ObjectID, plannedWorkoutID *primitive.ObjectID) (*domain.WorkoutSession, error) {
	if userID == primitive.NilObjectID {
		return nil, errors.New("user ID is required")
	}

	now := s.now()
	session := &domain.WorkoutSession{
		UserID:           userID,
		PlannedWorkoutID: plannedWorkoutID,
		Status:           domain.StatusPending,
		StartedAt:        now,
	}

	// Two attempts: the existing session can reach a terminal status
	// between our failed create and the conflict lookup.
	for attempt := 0; attempt < 2; attempt++ {
		id, err := s.sessionRepo.Create(ctx, session)
		if err == nil {
			created, getErr := s.sessionRepo.GetByID(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			s.logger.Info().
				Str("sessionId", id.Hex()).
				Str("userId", userID.Hex()).
				Msg("session started")
			return created, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}

		existing, getErr := s.sessionRepo.ActiveForUser(ctx, userID)
		if getErr == nil {
			return nil, &ActiveSessionError{Existing: existing}
		}
		if !errors.Is(getErr, repository.ErrNotFound) {
			return nil, getErr
		}
	}
	return nil, &ActiveSessionError{}
}

// GetSession returns the session if it belongs to the caller.
func (s *sessionService) GetSession(ctx context.Context, userID, sessionID primitive.ObjectID) (*domain.WorkoutSession, error) {
	return s.ownedSession(ctx, userID, sessionID)
}

// ActiveSession returns the caller's current non-terminal session, if any.
func (s *sessionService) ActiveSession(ctx context.Context, userID primitive.ObjectID) (*domain.WorkoutSession, error) {
	session, err := s.sessionRepo.ActiveForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// pausedSeconds converts a paused interval to whole seconds.
func pausedSeconds(pausedAt, now time.Time) int64 {
	return int64(math.Round(now.Sub(pausedAt).Seconds()))
}

// UpdateStatus applies a validated status transition with pause/resume
// accounting. Leaving paused adds the wall-clock interval spent paused to
// totalPausedSeconds and clears pausedAt; entering paused stamps pausedAt.
func (s *sessionService) UpdateStatus(ctx context.Context, userID, sessionID primitive.ObjectID, requested domain.SessionStatus, update StatusUpdate) (*domain.WorkoutSession, error) {
	if !requested.IsValid() {
		return nil, ErrInvalidStatus
	}

	unlock := s.lockSession(sessionID)
	defer unlock()

	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, ErrTerminalSession
	}
	if !session.Status.CanTransitionTo(requested) {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	patch := repository.SessionPatch{
		Status:               &requested,
		CurrentPhase:         update.Phase,
		CurrentIntervalIndex: update.IntervalIndex,
		LiveMetrics:          update.LiveMetrics,
	}

	if session.Status == domain.StatusPaused && requested != domain.StatusPaused {
		if session.PausedAt != nil {
			total := session.TotalPausedSeconds + pausedSeconds(*session.PausedAt, now)
			patch.TotalPausedSeconds = &total
		}
		patch.ClearPausedAt = true
	}
	if requested == domain.StatusPaused && session.Status != domain.StatusPaused {
		pausedAt := now
		patch.PausedAt = &pausedAt
	}
	if requested == domain.StatusCancelled {
		completedAt := now
		patch.CompletedAt = &completedAt
	}

	updated, err := s.sessionRepo.Update(ctx, sessionID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if requested.IsTerminal() {
		s.releaseLockEntry(sessionID)
		s.logger.Info().
			Str("sessionId", sessionID.Hex()).
			Str("status", string(requested)).
			Msg("session reached terminal status")
	}
	return updated, nil
}

// AddCheckpoint appends a server-timestamped snapshot to the session's
// checkpoint log. Terminal sessions are refused.
func (s *sessionService) AddCheckpoint(ctx context.Context, userID, sessionID primitive.ObjectID, input CheckpointInput) (*domain.WorkoutSession, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, ErrTerminalSession
	}

	checkpoint := domain.Checkpoint{
		Timestamp:       s.now(),
		DistanceMeters:  input.DistanceMeters,
		DurationSeconds: input.DurationSeconds,
		HeartRate:       input.HeartRate,
		Pace:            input.Pace,
	}

	updated, err := s.sessionRepo.AppendCheckpoint(ctx, sessionID, checkpoint)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrSessionNotFound
		case errors.Is(err, repository.ErrTerminal):
			return nil, ErrTerminalSession
		}
		return nil, err
	}
	return updated, nil
}

// Finish completes the session. With a summary, the finalizer first
// creates the permanent workout record; if that fails the session keeps
// its current status so the client can retry. Finishing an already
// completed session is a no-op returning the stored record, so a doubled
// request can never produce two workout records.
func (s *sessionService) Finish(ctx context.Context, userID, sessionID primitive.ObjectID, summary *domain.WorkoutSummary) (*domain.WorkoutSession, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case domain.StatusCompleted:
		return session, nil
	case domain.StatusCancelled:
		return nil, ErrTerminalSession
	}

	now := s.now()
	completed := domain.StatusCompleted
	patch := repository.SessionPatch{
		Status:      &completed,
		CompletedAt: &now,
	}
	if session.Status == domain.StatusPaused && session.PausedAt != nil {
		total := session.TotalPausedSeconds + pausedSeconds(*session.PausedAt, now)
		patch.TotalPausedSeconds = &total
		patch.ClearPausedAt = true
	}

	if summary != nil {
		workoutID, archiveKey, finErr := s.finalizer.Finalize(ctx, session, *summary)
		if finErr != nil {
			// Session status untouched: Finish stays retryable.
			s.logger.Warn().
				Err(finErr).
				Str("sessionId", sessionID.Hex()).
				Msg("finalization failed, session left revisable")
			return nil, ErrFinalizationFailed
		}
		patch.FinalWorkoutID = &workoutID
		if archiveKey != "" {
			patch.ArchiveObjectKey = &archiveKey
		}
	}

	updated, err := s.sessionRepo.Update(ctx, sessionID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	s.releaseLockEntry(sessionID)
	s.logger.Info().
		Str("sessionId", sessionID.Hex()).
		Bool("recorded", summary != nil).
		Msg("session completed")
	return updated, nil
}

// ExportURL returns a presigned download link for the session's archived
// checkpoint series.
func (s *sessionService) ExportURL(ctx context.Context, userID, sessionID primitive.ObjectID) (string, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return "", err
	}
	if session.ArchiveObjectKey == "" || s.fileStorage == nil {
		return "", ErrExportUnavailable
	}
	return s.fileStorage.GeneratePresignedDownloadURL(ctx, session.ArchiveObjectKey, storage.DefaultPresignedURLExpiry)
}
