package api

import (
	"alcyxob/session-tracker/internal/recorder"
	"alcyxob/session-tracker/internal/repository/memory"
	"alcyxob/session-tracker/internal/service"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testJWTSecret = "test-secret"

// stubRecorder implements recorder.WorkoutRecorder for handler tests.
type stubRecorder struct {
	id  primitive.ObjectID
	err error
}

func (s *stubRecorder) Record(ctx context.Context, req recorder.RecordRequest) (primitive.ObjectID, error) {
	if s.err != nil {
		return primitive.NilObjectID, s.err
	}
	return s.id, nil
}

type handlerEnv struct {
	router *gin.Engine
	rec    *stubRecorder
	userID primitive.ObjectID
	token  string
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rec := &stubRecorder{id: primitive.NewObjectID()}
	logger := zerolog.Nop()
	repo := memory.NewMemorySessionRepository()
	svc := service.NewSessionService(repo, service.NewFinalizer(rec, nil, logger), nil, logger)

	router := gin.New()
	SetupRoutes(router, testJWTSecret, svc)

	userID := primitive.NewObjectID()
	return &handlerEnv{
		router: router,
		rec:    rec,
		userID: userID,
		token:  signToken(t, userID),
	}
}

func signToken(t *testing.T, userID primitive.ObjectID) string {
	t.Helper()
	claims := jwtClaims{
		UserID: userID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func (e *handlerEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) SessionResponse {
	t.Helper()
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// startActive starts a session over HTTP and moves it to active.
func (e *handlerEnv) startActive(t *testing.T) SessionResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	session := decodeSession(t, w)

	w = e.do(t, http.MethodPatch, "/api/v1/sessions/"+session.ID+"/status", gin.H{"status": "active"})
	require.Equal(t, http.StatusOK, w.Code)
	return decodeSession(t, w)
}

func TestStartSessionEndpoint(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	session := decodeSession(t, w)
	require.Equal(t, "pending", session.Status)
	require.Equal(t, env.userID.Hex(), session.UserID)
	require.NotEmpty(t, session.ID)
}

func TestStartSessionConflictReturnsExisting(t *testing.T) {
	env := newHandlerEnv(t)

	first := decodeSession(t, env.do(t, http.MethodPost, "/api/v1/sessions", nil))

	w := env.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusConflict, w.Code)

	var body struct {
		Code    string          `json:"code"`
		Session SessionResponse `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "active_session_exists", body.Code)
	require.Equal(t, first.ID, body.Session.ID)
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	env := newHandlerEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateStatusEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	session := env.startActive(t)

	w := env.do(t, http.MethodPatch, "/api/v1/sessions/"+session.ID+"/status", gin.H{
		"status":               "paused",
		"currentPhase":         "interval 2 of 6",
		"currentIntervalIndex": 2,
		"liveMetrics":          gin.H{"distanceMeters": 3200, "durationSeconds": 900, "currentHeartRate": 162},
	})
	require.Equal(t, http.StatusOK, w.Code)

	updated := decodeSession(t, w)
	require.Equal(t, "paused", updated.Status)
	require.Equal(t, "interval 2 of 6", updated.CurrentPhase)
	require.Equal(t, 2, updated.CurrentIntervalIndex)
	require.NotNil(t, updated.PausedAt)
	require.NotNil(t, updated.LiveMetrics)
	require.Equal(t, 162, updated.LiveMetrics.CurrentHeartRate)
}

func TestUpdateStatusIllegalJump(t *testing.T) {
	env := newHandlerEnv(t)
	session := decodeSession(t, env.do(t, http.MethodPost, "/api/v1/sessions", nil))

	w := env.do(t, http.MethodPatch, "/api/v1/sessions/"+session.ID+"/status", gin.H{"status": "completed"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUpdateStatusUnknownSession(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(t, http.MethodPatch, "/api/v1/sessions/"+primitive.NewObjectID().Hex()+"/status", gin.H{"status": "active"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionsAreHiddenFromOtherUsers(t *testing.T) {
	env := newHandlerEnv(t)
	session := env.startActive(t)

	// Same router, different athlete.
	env.token = signToken(t, primitive.NewObjectID())
	w := env.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddCheckpointEndpoint(t *testing.T) {
	env := newHandlerEnv(t)
	session := env.startActive(t)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/checkpoints", gin.H{
		"distanceMeters":  1000,
		"durationSeconds": 300,
		"heartRate":       148,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	updated := decodeSession(t, w)
	require.Len(t, updated.Checkpoints, 1)
	require.Equal(t, float64(1000), updated.Checkpoints[0].DistanceMeters)
	require.NotNil(t, updated.Checkpoints[0].HeartRate)
	require.False(t, updated.Checkpoints[0].Timestamp.IsZero())
}

func TestAddCheckpointOnFinishedSession(t *testing.T) {
	env := newHandlerEnv(t)
	session := env.startActive(t)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/finish", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/checkpoints", gin.H{"distanceMeters": 100, "durationSeconds": 30})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestFinishEndpointWithSummary(t *testing.T) {
	env := newHandlerEnv(t)
	session := env.startActive(t)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/finish", gin.H{
		"summary": gin.H{"distanceMeters": 5000, "durationSeconds": 1800, "calories": 410},
	})
	require.Equal(t, http.StatusOK, w.Code)

	finished := decodeSession(t, w)
	require.Equal(t, "completed", finished.Status)
	require.Equal(t, env.rec.id.Hex(), finished.FinalWorkoutID)
	require.NotNil(t, finished.CompletedAt)
}

func TestFinishEndpointRecorderFailure(t *testing.T) {
	env := newHandlerEnv(t)
	session := env.startActive(t)
	env.rec.err = recorder.ErrRecorderUnavailable

	w := env.do(t, http.MethodPost, "/api/v1/sessions/"+session.ID+"/finish", gin.H{
		"summary": gin.H{"distanceMeters": 5000, "durationSeconds": 1800},
	})
	require.Equal(t, http.StatusBadGateway, w.Code)

	// The session survived the failure and is still active.
	current := decodeSession(t, env.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID, nil))
	require.Equal(t, "active", current.Status)
}

func TestGetActiveSessionEndpoint(t *testing.T) {
	env := newHandlerEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	session := env.startActive(t)
	w = env.do(t, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, session.ID, decodeSession(t, w).ID)
}

func TestExportUnavailableWithoutArchive(t *testing.T) {
	env := newHandlerEnv(t)
	session := env.startActive(t)

	w := env.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID+"/export", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
