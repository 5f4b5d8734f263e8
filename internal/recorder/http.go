package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const defaultRequestTimeout = 10 * time.Second

// httpRecorder implements WorkoutRecorder against the recording service's
// HTTP API.
type httpRecorder struct {
	baseURL      string
	serviceToken string
	client       *http.Client
}

// NewHTTPRecorder creates a recorder client. serviceToken is the bearer
// token this service authenticates with; timeout bounds each request and
// falls back to a default when zero.
func NewHTTPRecorder(baseURL, serviceToken string, timeout time.Duration) WorkoutRecorder {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &httpRecorder{
		baseURL:      baseURL,
		serviceToken: serviceToken,
		client:       &http.Client{Timeout: timeout},
	}
}

// recordResponse is the recording service's reply.
type recordResponse struct {
	ID string `json:"id"`
}

// Record posts the summary and returns the new workout's identifier.
// Transport failures map to ErrRecorderUnavailable, non-2xx replies to
// ErrRecorderRejected; both are retryable from the caller's point of view.
func (r *httpRecorder) Record(ctx context.Context, req RecordRequest) (primitive.ObjectID, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return primitive.NilObjectID, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/workouts", bytes.NewReader(body))
	if err != nil {
		return primitive.NilObjectID, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.serviceToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.serviceToken)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %v", ErrRecorderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return primitive.NilObjectID, fmt.Errorf("%w: status %d", ErrRecorderRejected, resp.StatusCode)
	}

	var decoded recordResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid response body", ErrRecorderRejected)
	}
	workoutID, err := primitive.ObjectIDFromHex(decoded.ID)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid workout id %q", ErrRecorderRejected, decoded.ID)
	}
	return workoutID, nil
}
