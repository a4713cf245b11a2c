package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/proctorly/proctor-backend/internal/middleware"
	"github.com/proctorly/proctor-backend/internal/model"
	"github.com/proctorly/proctor-backend/internal/response"
	"github.com/proctorly/proctor-backend/internal/service"
	"github.com/proctorly/proctor-backend/internal/validator"
)

// SubmissionReader serves the admin results views.
type SubmissionReader interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Submission, error)
}

// ExamHandler handles exam administration endpoints.
type ExamHandler struct {
	examService    *service.ExamService
	sessionService *service.SessionService
	submissions    SubmissionReader
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, sessionService *service.SessionService, submissions SubmissionReader) *ExamHandler {
	return &ExamHandler{
		examService:    examService,
		sessionService: sessionService,
		submissions:    submissions,
	}
}

// respondExamError maps exam lifecycle errors onto their error codes.
func respondExamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrExamNotDraft)
	case errors.Is(err, service.ErrExamNotCompleted):
		response.Fail(c, http.StatusConflict, response.ErrActionForbidden)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
	default:
		respondError(c, err)
	}
}

// CreateExam godoc
// POST /api/v1/admin/exams
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	claims := middleware.GetClaims(c)
	exam, err := h.examService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		respondExamError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, exam)
}

// ListExams godoc
// GET /api/v1/admin/exams?page=&per_page=
func (h *ExamHandler) ListExams(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	exams, total, err := h.examService.List(c.Request.Context(), perPage, (page-1)*perPage)
	if err != nil {
		respondError(c, err)
		return
	}

	totalPages := (total + perPage - 1) / perPage
	response.SuccessWithPagination(c, http.StatusOK, exams, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	})
}

// GetExam godoc
// GET /api/v1/admin/exams/:id
func (h *ExamHandler) GetExam(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	exam, err := h.examService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, exam)
}

// UpdateExam godoc
// PUT /api/v1/admin/exams/:id
// Draft exams only; published definitions are frozen.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Update(c.Request.Context(), id, &req)
	if err != nil {
		respondExamError(c, err)
		return
	}
	response.Success(c, http.StatusOK, exam)
}

// DeleteExam godoc
// DELETE /api/v1/admin/exams/:id
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.examService.Delete(c.Request.Context(), id); err != nil {
		respondExamError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// PublishExam godoc
// POST /api/v1/admin/exams/:id/publish
// Requires at least one question; freezes the definition and prewarms the
// candidate payload cache.
func (h *ExamHandler) PublishExam(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	exam, err := h.examService.Publish(c.Request.Context(), id)
	if err != nil {
		respondExamError(c, err)
		return
	}
	response.Success(c, http.StatusOK, exam)
}

// ArchiveExam godoc
// POST /api/v1/admin/exams/:id/archive
func (h *ExamHandler) ArchiveExam(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	exam, err := h.examService.Archive(c.Request.Context(), id)
	if err != nil {
		respondExamError(c, err)
		return
	}
	response.Success(c, http.StatusOK, exam)
}

// ListQuestions godoc
// GET /api/v1/admin/exams/:id/questions
// Full question set, answer keys included.
func (h *ExamHandler) ListQuestions(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	questions, err := h.examService.Questions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, questions)
}

// ReplaceQuestions godoc
// PUT /api/v1/admin/exams/:id/questions
// Swaps the whole question set of a draft exam.
func (h *ExamHandler) ReplaceQuestions(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.examService.ReplaceQuestions(c.Request.Context(), id, &req)
	if err != nil {
		respondExamError(c, err)
		return
	}
	response.Success(c, http.StatusOK, questions)
}

// EnrollCandidates godoc
// POST /api/v1/admin/exams/:id/enroll
// Idempotent: already-enrolled candidates are skipped.
func (h *ExamHandler) EnrollCandidates(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.EnrollCandidatesRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.examService.Enroll(c.Request.Context(), id, req.CandidateIDs); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"enrolled": len(req.CandidateIDs)})
}

// ListSubmissions godoc
// GET /api/v1/admin/exams/:id/submissions
func (h *ExamHandler) ListSubmissions(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	submissions, err := h.submissions.ListByExam(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, submissions)
}

// RefreshPayloadCache godoc
// POST /api/v1/admin/exams/:id/refresh-cache
// Rebuilds the candidate payload cache entry from Postgres.
func (h *ExamHandler) RefreshPayloadCache(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.examService.WarmPayload(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "refreshed"})
}

// ForceSubmitSession godoc
// POST /api/v1/admin/sessions/:token/force-submit
// Ends one candidate's attempt on the admin's authority.
func (h *ExamHandler) ForceSubmitSession(c *gin.Context) {
	token, ok := parseIDParam(c, "token")
	if !ok {
		return
	}

	submission, err := h.sessionService.Submit(c.Request.Context(), token, model.SubmitReasonAdminForce)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, submission)
}
