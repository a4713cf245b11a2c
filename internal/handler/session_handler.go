package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/proctorly/proctor-backend/internal/model"
	"github.com/proctorly/proctor-backend/internal/response"
	"github.com/proctorly/proctor-backend/internal/service"
	"github.com/proctorly/proctor-backend/internal/validator"
)

// SessionHandler serves the candidate attempt surface. Every endpoint is keyed
// by the session token embedded in the candidate's JWT, never by a client-sent
// session ID.
type SessionHandler struct {
	sessionService   *service.SessionService
	violationService *service.ViolationService
	examService      *service.ExamService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	sessionService *service.SessionService,
	violationService *service.ViolationService,
	examService *service.ExamService,
) *SessionHandler {
	return &SessionHandler{
		sessionService:   sessionService,
		violationService: violationService,
		examService:      examService,
	}
}

// GetState godoc
// GET /api/v1/candidate/session
// Returns the full attempt state: session, ordered questions (answer key
// stripped), saved answers, and the authoritative remaining time.
func (h *SessionHandler) GetState(c *gin.Context) {
	token, err := sessionToken(c)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// GetPaper godoc
// GET /api/v1/candidate/session/paper
// Returns the cached candidate-facing exam payload.
func (h *SessionHandler) GetPaper(c *gin.Context) {
	token, err := sessionToken(c)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}

	payload, err := h.examService.Payload(c.Request.Context(), state.Session.ExamID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, payload)
}

// SaveAnswer godoc
// PUT /api/v1/candidate/session/answers/:question_id
// Upserts one answer. Last write wins; a save after the deadline finalizes
// the attempt and reports time_expired instead of persisting.
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	token, err := sessionToken(c)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}
	questionID, ok := parseIDParam(c, "question_id")
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessionService.SaveAnswer(c.Request.Context(), token, questionID, &req); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// Heartbeat godoc
// POST /api/v1/candidate/session/heartbeat
// Refreshes liveness and returns the server-computed remaining time.
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	token, err := sessionToken(c)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	remaining, err := h.sessionService.Heartbeat(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"status":                 model.SessionStatusActive,
		"remaining_time_seconds": remaining,
	})
}

// Submit godoc
// POST /api/v1/candidate/session/submit
// Ends the attempt and returns the graded submission. Idempotent: repeated
// calls return the already-created submission.
func (h *SessionHandler) Submit(c *gin.Context) {
	token, err := sessionToken(c)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	submission, err := h.sessionService.Submit(c.Request.Context(), token, model.SubmitReasonManual)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, submission)
}

// ReportViolation godoc
// POST /api/v1/candidate/session/violations
// Records one integrity event and returns the escalation verdict: none,
// warning, or auto_submit.
func (h *SessionHandler) ReportViolation(c *gin.Context) {
	token, err := sessionToken(c)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	action, err := h.violationService.Report(c.Request.Context(), token, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, action)
}
