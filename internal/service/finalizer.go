package service

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/recorder"
	"alcyxob/session-tracker/internal/storage"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Finalizer packages a finished session into a permanent workout record
// via the external recording service, and archives the checkpoint series
// to object storage for later export.
type Finalizer struct {
	workoutRecorder recorder.WorkoutRecorder
	fileStorage     storage.FileStorage // may be nil when archiving is disabled
	logger          zerolog.Logger
}

// NewFinalizer creates a new Finalizer.
func NewFinalizer(workoutRecorder recorder.WorkoutRecorder, fileStorage storage.FileStorage, logger zerolog.Logger) *Finalizer {
	return &Finalizer{
		workoutRecorder: workoutRecorder,
		fileStorage:     fileStorage,
		logger:          logger.With().Str("component", "finalizer").Logger(),
	}
}

// checkpointArchive is the JSON document written to object storage.
type checkpointArchive struct {
	SessionID   string              `json:"sessionId"`
	UserID      string              `json:"userId"`
	StartedAt   time.Time           `json:"startedAt"`
	Checkpoints []domain.Checkpoint `json:"checkpoints"`
}

// Finalize creates the permanent workout record and returns its id plus
// the object key of the checkpoint archive. The recorder call is the one
// that matters: its failure is returned so the caller can retry Finish.
// Archive failure only costs the export link and is logged, not returned.
func (f *Finalizer) Finalize(ctx context.Context, session *domain.WorkoutSession, summary domain.WorkoutSummary) (primitive.ObjectID, string, error) {
	workoutID, err := f.workoutRecorder.Record(ctx, recorder.RecordRequest{
		UserID:    session.UserID,
		StartTime: session.StartedAt,
		Summary:   summary,
	})
	if err != nil {
		return primitive.NilObjectID, "", err
	}

	archiveKey := f.archiveCheckpoints(ctx, session)
	return workoutID, archiveKey, nil
}

// archiveCheckpoints uploads the session's checkpoint series and returns
// the object key, or "" when there is nothing to archive or the upload
// failed.
func (f *Finalizer) archiveCheckpoints(ctx context.Context, session *domain.WorkoutSession) string {
	if f.fileStorage == nil || len(session.Checkpoints) == 0 {
		return ""
	}

	body, err := json.Marshal(checkpointArchive{
		SessionID:   session.ID.Hex(),
		UserID:      session.UserID.Hex(),
		StartedAt:   session.StartedAt,
		Checkpoints: session.Checkpoints,
	})
	if err != nil {
		f.logger.Warn().Err(err).Str("sessionId", session.ID.Hex()).Msg("failed to encode checkpoint archive")
		return ""
	}

	objectKey := path.Join("sessions", session.UserID.Hex(), session.ID.Hex(), fmt.Sprintf("%s.json", uuid.NewString()))
	if err := f.fileStorage.UploadObject(ctx, objectKey, "application/json", body); err != nil {
		f.logger.Warn().Err(err).Str("objectKey", objectKey).Msg("failed to upload checkpoint archive")
		return ""
	}
	return objectKey
}
