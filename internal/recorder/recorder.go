package recorder

import (
	"alcyxob/session-tracker/internal/domain"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for the recorder layer
var (
	ErrRecorderUnavailable = errors.New("workout recorder unreachable")
	ErrRecorderRejected    = errors.New("workout recorder rejected the summary")
)

// RecordRequest is the payload posted to the workout-recording service
// when a finished session is turned into a permanent workout record.
type RecordRequest struct {
	UserID    primitive.ObjectID    `json:"userId"`
	StartTime time.Time             `json:"startTime"`
	Summary   domain.WorkoutSummary `json:"summary"`
}

// WorkoutRecorder defines the interface to the external workout-recording
// collaborator. Record returns the identifier of the created workout.
type WorkoutRecorder interface {
	Record(ctx context.Context, req RecordRequest) (primitive.ObjectID, error)
}
