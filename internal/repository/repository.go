package repository

import (
	"alcyxob/session-tracker/internal/domain"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for the repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrConflict     = RepositoryError("active session already exists")
	ErrTerminal     = RepositoryError("session is terminal")
	ErrUpdateFailed = RepositoryError("update failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// SessionPatch is a partial update for a session record. Nil fields are
// left untouched. There is deliberately no way to express clearing
// FinalWorkoutID: once set it is immutable.
type SessionPatch struct {
	Status               *domain.SessionStatus
	CurrentPhase         *string
	CurrentIntervalIndex *int
	PausedAt             *time.Time
	ClearPausedAt        bool
	CompletedAt          *time.Time
	TotalPausedSeconds   *int64
	LiveMetrics          *domain.LiveMetrics
	FinalWorkoutID       *primitive.ObjectID
	ArchiveObjectKey     *string
}

// SessionRepository defines the interface for session persistence.
//
// Create must enforce the single-active-session invariant atomically: if
// the user already owns a non-terminal session it fails with ErrConflict
// without inserting. AppendCheckpoint must refuse terminal sessions within
// the same atomic operation that performs the append.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.WorkoutSession) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutSession, error)
	Update(ctx context.Context, id primitive.ObjectID, patch SessionPatch) (*domain.WorkoutSession, error)
	AppendCheckpoint(ctx context.Context, id primitive.ObjectID, checkpoint domain.Checkpoint) (*domain.WorkoutSession, error)
	ActiveForUser(ctx context.Context, userID primitive.ObjectID) (*domain.WorkoutSession, error)
}
