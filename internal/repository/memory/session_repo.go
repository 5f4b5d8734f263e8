package memory

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/repository"
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memorySessionRepository is an in-memory repository.SessionRepository,
// used in tests and for local runs without a database. It mirrors the
// mongo repository's contract, including the atomic single-active-session
// check on Create.
type memorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[primitive.ObjectID]*domain.WorkoutSession
}

// NewMemorySessionRepository creates an empty in-memory session repository.
func NewMemorySessionRepository() repository.SessionRepository {
	return &memorySessionRepository{
		sessions: make(map[primitive.ObjectID]*domain.WorkoutSession),
	}
}

// clone returns a deep-enough copy so callers can never mutate stored state.
func clone(s *domain.WorkoutSession) *domain.WorkoutSession {
	copied := *s
	copied.Checkpoints = make([]domain.Checkpoint, len(s.Checkpoints))
	copy(copied.Checkpoints, s.Checkpoints)
	if s.LiveMetrics != nil {
		metrics := *s.LiveMetrics
		copied.LiveMetrics = &metrics
	}
	return &copied
}

func (r *memorySessionRepository) Create(ctx context.Context, session *domain.WorkoutSession) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check and insert under the same lock: the in-memory equivalent of
	// the mongo repo's partial unique index.
	for _, existing := range r.sessions {
		if existing.UserID == session.UserID && existing.IsActive() {
			return primitive.NilObjectID, repository.ErrConflict
		}
	}

	session.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = domain.StatusPending
	}
	if session.Checkpoints == nil {
		session.Checkpoints = []domain.Checkpoint{}
	}
	session.Active = !session.Status.IsTerminal()
	r.sessions[session.ID] = clone(session)
	return session.ID, nil
}

func (r *memorySessionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(session), nil
}

func (r *memorySessionRepository) Update(ctx context.Context, id primitive.ObjectID, patch repository.SessionPatch) (*domain.WorkoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	if patch.Status != nil {
		session.Status = *patch.Status
		session.Active = !patch.Status.IsTerminal()
	}
	if patch.CurrentPhase != nil {
		session.CurrentPhase = *patch.CurrentPhase
	}
	if patch.CurrentIntervalIndex != nil {
		session.CurrentIntervalIndex = *patch.CurrentIntervalIndex
	}
	if patch.PausedAt != nil {
		pausedAt := *patch.PausedAt
		session.PausedAt = &pausedAt
	} else if patch.ClearPausedAt {
		session.PausedAt = nil
	}
	if patch.CompletedAt != nil {
		completedAt := *patch.CompletedAt
		session.CompletedAt = &completedAt
	}
	if patch.TotalPausedSeconds != nil {
		session.TotalPausedSeconds = *patch.TotalPausedSeconds
	}
	if patch.LiveMetrics != nil {
		metrics := *patch.LiveMetrics
		session.LiveMetrics = &metrics
	}
	if patch.FinalWorkoutID != nil {
		workoutID := *patch.FinalWorkoutID
		session.FinalWorkoutID = &workoutID
	}
	if patch.ArchiveObjectKey != nil {
		session.ArchiveObjectKey = *patch.ArchiveObjectKey
	}
	session.UpdatedAt = time.Now().UTC()

	return clone(session), nil
}

func (r *memorySessionRepository) AppendCheckpoint(ctx context.Context, id primitive.ObjectID, checkpoint domain.Checkpoint) (*domain.WorkoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if session.Status.IsTerminal() {
		return nil, repository.ErrTerminal
	}
	session.Checkpoints = append(session.Checkpoints, checkpoint)
	session.UpdatedAt = time.Now().UTC()

	return clone(session), nil
}

func (r *memorySessionRepository) ActiveForUser(ctx context.Context, userID primitive.ObjectID) (*domain.WorkoutSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var newest *domain.WorkoutSession
	for _, session := range r.sessions {
		if session.UserID != userID || !session.IsActive() {
			continue
		}
		if newest == nil || session.CreatedAt.After(newest.CreatedAt) {
			newest = session
		}
	}
	if newest == nil {
		return nil, repository.ErrNotFound
	}
	return clone(newest), nil
}
