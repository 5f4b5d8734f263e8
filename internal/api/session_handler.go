package api

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/service"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionHandler holds the session service dependency.
type SessionHandler struct {
	sessionService service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// --- DTOs for API (Data Transfer Objects) ---

// StartSessionRequest defines the expected JSON for starting a session.
type StartSessionRequest struct {
	PlannedWorkoutID string `json:"plannedWorkoutId" binding:"omitempty"` // Optional reference to a planned workout
}

// LiveMetricsPayload is the wire form of a live-metric snapshot.
type LiveMetricsPayload struct {
	DistanceMeters   float64 `json:"distanceMeters"`
	DurationSeconds  int     `json:"durationSeconds"`
	CurrentPace      float64 `json:"currentPace,omitempty"`
	AveragePace      float64 `json:"averagePace,omitempty"`
	CurrentHeartRate int     `json:"currentHeartRate,omitempty"`
	AverageHeartRate int     `json:"averageHeartRate,omitempty"`
	Calories         int     `json:"calories,omitempty"`
	Cadence          int     `json:"cadence,omitempty"`
}

// UpdateStatusRequest defines the expected JSON for a status change.
type UpdateStatusRequest struct {
	Status               string              `json:"status" binding:"required"`
	CurrentPhase         *string             `json:"currentPhase"`
	CurrentIntervalIndex *int                `json:"currentIntervalIndex"`
	LiveMetrics          *LiveMetricsPayload `json:"liveMetrics"`
}

// AddCheckpointRequest defines the expected JSON for a checkpoint. The
// timestamp is server-assigned and cannot be supplied.
type AddCheckpointRequest struct {
	DistanceMeters  float64  `json:"distanceMeters" binding:"min=0"`
	DurationSeconds int      `json:"durationSeconds" binding:"min=0"`
	HeartRate       *int     `json:"heartRate"`
	Pace            *float64 `json:"pace"`
}

// FinishSessionRequest defines the expected JSON for finishing a session.
// Summary is optional; without it the session completes unrecorded.
type FinishSessionRequest struct {
	Summary *WorkoutSummaryPayload `json:"summary"`
}

// WorkoutSummaryPayload is the wire form of the summary handed to the
// workout recorder.
type WorkoutSummaryPayload struct {
	Title            string  `json:"title"`
	DistanceMeters   float64 `json:"distanceMeters" binding:"min=0"`
	DurationSeconds  int     `json:"durationSeconds" binding:"min=0"`
	AveragePace      float64 `json:"averagePace"`
	AverageHeartRate int     `json:"averageHeartRate"`
	Calories         int     `json:"calories"`
	Notes            string  `json:"notes"`
}

// CheckpointResponse is the DTO for one checkpoint entry.
type CheckpointResponse struct {
	Timestamp       time.Time `json:"timestamp"`
	DistanceMeters  float64   `json:"distanceMeters"`
	DurationSeconds int       `json:"durationSeconds"`
	HeartRate       *int      `json:"heartRate,omitempty"`
	Pace            *float64  `json:"pace,omitempty"`
}

// SessionResponse is the DTO for returning the full session state. Every
// mutating endpoint returns it so the client can re-derive UI state from
// one response.
type SessionResponse struct {
	ID                   string               `json:"id"`
	UserID               string               `json:"userId"`
	PlannedWorkoutID     string               `json:"plannedWorkoutId,omitempty"`
	Status               string               `json:"status"`
	CurrentPhase         string               `json:"currentPhase,omitempty"`
	CurrentIntervalIndex int                  `json:"currentIntervalIndex"`
	StartedAt            time.Time            `json:"startedAt"`
	PausedAt             *time.Time           `json:"pausedAt,omitempty"`
	CompletedAt          *time.Time           `json:"completedAt,omitempty"`
	TotalPausedSeconds   int64                `json:"totalPausedSeconds"`
	LiveMetrics          *LiveMetricsPayload  `json:"liveMetrics,omitempty"`
	Checkpoints          []CheckpointResponse `json:"checkpoints"`
	FinalWorkoutID       string               `json:"finalWorkoutId,omitempty"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
}

// ExportResponse carries the presigned archive download link.
type ExportResponse struct {
	DownloadURL string `json:"downloadUrl"`
}

// MapSessionToResponse converts a domain.WorkoutSession to its DTO.
func MapSessionToResponse(s *domain.WorkoutSession) SessionResponse {
	if s == nil {
		return SessionResponse{}
	}
	resp := SessionResponse{
		ID:                   s.ID.Hex(),
		UserID:               s.UserID.Hex(),
		Status:               string(s.Status),
		CurrentPhase:         s.CurrentPhase,
		CurrentIntervalIndex: s.CurrentIntervalIndex,
		StartedAt:            s.StartedAt,
		PausedAt:             s.PausedAt,
		CompletedAt:          s.CompletedAt,
		TotalPausedSeconds:   s.TotalPausedSeconds,
		Checkpoints:          make([]CheckpointResponse, len(s.Checkpoints)),
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
	if s.PlannedWorkoutID != nil {
		resp.PlannedWorkoutID = s.PlannedWorkoutID.Hex()
	}
	if s.FinalWorkoutID != nil {
		resp.FinalWorkoutID = s.FinalWorkoutID.Hex()
	}
	if s.LiveMetrics != nil {
		metrics := LiveMetricsPayload(*s.LiveMetrics)
		resp.LiveMetrics = &metrics
	}
	for i, cp := range s.Checkpoints {
		resp.Checkpoints[i] = CheckpointResponse{
			Timestamp:       cp.Timestamp,
			DistanceMeters:  cp.DistanceMeters,
			DurationSeconds: cp.DurationSeconds,
			HeartRate:       cp.HeartRate,
			Pace:            cp.Pace,
		}
	}
	return resp
}

// callerAndSessionIDs extracts the authenticated user id and the :id path
// parameter as ObjectIDs, aborting the request on failure.
func callerAndSessionIDs(c *gin.Context) (userID, sessionID primitive.ObjectID, ok bool) {
	userID, ok = callerID(c)
	if !ok {
		return
	}
	sessionID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid session ID format.")
		return userID, sessionID, false
	}
	return userID, sessionID, true
}

func callerID(c *gin.Context) (primitive.ObjectID, bool) {
	userIDStr, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify athlete from token.")
		return primitive.NilObjectID, false
	}
	userID, err := primitive.ObjectIDFromHex(userIDStr)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid user ID format in token.")
		return primitive.NilObjectID, false
	}
	return userID, true
}

// respondServiceError maps service errors onto HTTP statuses. Conflict and
// NotFound are expected, recoverable conditions.
func respondServiceError(c *gin.Context, err error) {
	var activeErr *service.ActiveSessionError
	switch {
	case errors.As(err, &activeErr):
		body := gin.H{
			"error": "An active session already exists. Resume or discard it first.",
			"code":  "active_session_exists",
		}
		if activeErr.Existing != nil {
			body["session"] = MapSessionToResponse(activeErr.Existing)
		}
		c.AbortWithStatusJSON(http.StatusConflict, body)
	case errors.Is(err, service.ErrSessionNotFound):
		abortWithError(c, http.StatusNotFound, "Session no longer available.")
	case errors.Is(err, service.ErrInvalidStatus):
		abortWithError(c, http.StatusBadRequest, "Unknown session status.")
	case errors.Is(err, service.ErrInvalidTransition):
		abortWithError(c, http.StatusUnprocessableEntity, "Status change is not permitted from the session's current state.")
	case errors.Is(err, service.ErrTerminalSession):
		abortWithError(c, http.StatusConflict, "Session is already completed or cancelled.")
	case errors.Is(err, service.ErrFinalizationFailed):
		abortWithError(c, http.StatusBadGateway, "Could not save your workout. The session is preserved; try again.")
	case errors.Is(err, service.ErrExportUnavailable):
		abortWithError(c, http.StatusNotFound, "No export is available for this session.")
	default:
		abortWithError(c, http.StatusInternalServerError, "Internal server error.")
	}
}

func (p *LiveMetricsPayload) toDomain() *domain.LiveMetrics {
	if p == nil {
		return nil
	}
	metrics := domain.LiveMetrics(*p)
	return &metrics
}

// --- Handler Methods ---

// StartSession handles POST /sessions.
func (h *SessionHandler) StartSession(c *gin.Context) {
	// An empty body is fine; a malformed one is not.
	var req StartSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	userID, ok := callerID(c)
	if !ok {
		return
	}

	var plannedWorkoutID *primitive.ObjectID
	if req.PlannedWorkoutID != "" {
		id, err := primitive.ObjectIDFromHex(req.PlannedWorkoutID)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid planned workout ID format.")
			return
		}
		plannedWorkoutID = &id
	}

	session, err := h.sessionService.Start(c.Request.Context(), userID, plannedWorkoutID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MapSessionToResponse(session))
}

// GetSession handles GET /sessions/:id.
func (h *SessionHandler) GetSession(c *gin.Context) {
	userID, sessionID, ok := callerAndSessionIDs(c)
	if !ok {
		return
	}

	session, err := h.sessionService.GetSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapSessionToResponse(session))
}

// GetActiveSession handles GET /sessions: it returns the caller's single
// in-progress session, or 404 when there is none.
func (h *SessionHandler) GetActiveSession(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	session, err := h.sessionService.ActiveSession(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapSessionToResponse(session))
}

// UpdateStatus handles PATCH /sessions/:id/status.
func (h *SessionHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	userID, sessionID, ok := callerAndSessionIDs(c)
	if !ok {
		return
	}

	session, err := h.sessionService.UpdateStatus(
		c.Request.Context(),
		userID,
		sessionID,
		domain.SessionStatus(req.Status),
		service.StatusUpdate{
			Phase:         req.CurrentPhase,
			IntervalIndex: req.CurrentIntervalIndex,
			LiveMetrics:   req.LiveMetrics.toDomain(),
		},
	)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapSessionToResponse(session))
}

// AddCheckpoint handles POST /sessions/:id/checkpoints.
func (h *SessionHandler) AddCheckpoint(c *gin.Context) {
	var req AddCheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	userID, sessionID, ok := callerAndSessionIDs(c)
	if !ok {
		return
	}

	session, err := h.sessionService.AddCheckpoint(
		c.Request.Context(),
		userID,
		sessionID,
		service.CheckpointInput{
			DistanceMeters:  req.DistanceMeters,
			DurationSeconds: req.DurationSeconds,
			HeartRate:       req.HeartRate,
			Pace:            req.Pace,
		},
	)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, MapSessionToResponse(session))
}

// FinishSession handles POST /sessions/:id/finish.
func (h *SessionHandler) FinishSession(c *gin.Context) {
	var req FinishSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	userID, sessionID, ok := callerAndSessionIDs(c)
	if !ok {
		return
	}

	var summary *domain.WorkoutSummary
	if req.Summary != nil {
		converted := domain.WorkoutSummary(*req.Summary)
		summary = &converted
	}

	session, err := h.sessionService.Finish(c.Request.Context(), userID, sessionID, summary)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, MapSessionToResponse(session))
}

// ExportSession handles GET /sessions/:id/export.
func (h *SessionHandler) ExportSession(c *gin.Context) {
	userID, sessionID, ok := callerAndSessionIDs(c)
	if !ok {
		return
	}

	url, err := h.sessionService.ExportURL(c.Request.Context(), userID, sessionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ExportResponse{DownloadURL: url})
}
