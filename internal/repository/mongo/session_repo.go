package mongo

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sessionCollectionName = "workout_sessions"

// mongoSessionRepository implements repository.SessionRepository
type mongoSessionRepository struct {
	collection *mongo.Collection
}

// NewMongoSessionRepository creates a new session repository.
func NewMongoSessionRepository(db *mongo.Database) repository.SessionRepository {
	return &mongoSessionRepository{
		collection: db.Collection(sessionCollectionName),
	}
}

// Create inserts a new session. The partial unique index on userId (see
// EnsureSessionIndexes) makes the check-and-create atomic: a second insert
// for a user who already owns a non-terminal session fails with a
// duplicate key error, which is mapped to repository.ErrConflict.
func (r *mongoSessionRepository) Create(ctx context.Context, session *domain.WorkoutSession) (primitive.ObjectID, error) {
	if session.UserID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("session requires userId")
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

	result, err := r.collection.InsertOne(ctx, session)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrConflict
		}
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted session ID")
	}
	return insertedID, nil
}

// GetByID retrieves a single session by its ID.
func (r *mongoSessionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.WorkoutSession, error) {
	var session domain.WorkoutSession
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// Update applies a partial update and returns the full updated session.
// FinalWorkoutID can only ever be set; the patch offers no way to clear it.
func (r *mongoSessionRepository) Update(ctx context.Context, id primitive.ObjectID, patch repository.SessionPatch) (*domain.WorkoutSession, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	unset := bson.M{}

	if patch.Status != nil {
		set["status"] = string(*patch.Status)
		// Keep the indexed mirror in sync so terminal sessions drop out
		// of the partial unique index immediately.
		set["active"] = !patch.Status.IsTerminal()
	}
	if patch.CurrentPhase != nil {
		set["currentPhase"] = *patch.CurrentPhase
	}
	if patch.CurrentIntervalIndex != nil {
		set["currentIntervalIndex"] = *patch.CurrentIntervalIndex
	}
	if patch.PausedAt != nil {
		set["pausedAt"] = *patch.PausedAt
	} else if patch.ClearPausedAt {
		unset["pausedAt"] = ""
	}
	if patch.CompletedAt != nil {
		set["completedAt"] = *patch.CompletedAt
	}
	if patch.TotalPausedSeconds != nil {
		set["totalPausedSeconds"] = *patch.TotalPausedSeconds
	}
	if patch.LiveMetrics != nil {
		set["liveMetrics"] = patch.LiveMetrics
	}
	if patch.FinalWorkoutID != nil {
		set["finalWorkoutId"] = *patch.FinalWorkoutID
	}
	if patch.ArchiveObjectKey != nil {
		set["archiveObjectKey"] = *patch.ArchiveObjectKey
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var session domain.WorkoutSession
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// AppendCheckpoint pushes a checkpoint onto the session's log. The status
// guard lives in the filter so the terminal check and the append are one
// atomic operation.
func (r *mongoSessionRepository) AppendCheckpoint(ctx context.Context, id primitive.ObjectID, checkpoint domain.Checkpoint) (*domain.WorkoutSession, error) {
	filter := bson.M{
		"_id":    id,
		"active": true,
	}
	update := bson.M{
		"$push": bson.M{"checkpoints": checkpoint},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var session domain.WorkoutSession
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&session)
	if err == nil {
		return &session, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	// No match: either the session is terminal or it does not exist.
	existing, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Status.IsTerminal() {
		return nil, repository.ErrTerminal
	}
	return nil, repository.ErrUpdateFailed
}

// ActiveForUser returns the user's single non-terminal session, newest
// first in case the invariant was ever violated out-of-band.
func (r *mongoSessionRepository) ActiveForUser(ctx context.Context, userID primitive.ObjectID) (*domain.WorkoutSession, error) {
	filter := bson.M{
		"userId": userID,
		"active": true,
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var session domain.WorkoutSession
	err := r.collection.FindOne(ctx, filter, opts).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// EnsureSessionIndexes creates the indexes the repository relies on. The
// partial unique index is what makes Start's check-and-create atomic under
// concurrent requests. Call during startup.
func EnsureSessionIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// One non-terminal session per user.
			Keys: bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": bson.M{"$eq": true}}),
		},
		{
			// History listing per user, newest first.
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
