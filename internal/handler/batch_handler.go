package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/proctorly/proctor-backend/internal/model"
	"github.com/proctorly/proctor-backend/internal/response"
	"github.com/proctorly/proctor-backend/internal/service"
	"github.com/proctorly/proctor-backend/internal/validator"
)

// BatchHandler handles batch scheduling administration.
type BatchHandler struct {
	batchService *service.BatchService
}

// NewBatchHandler creates a new BatchHandler.
func NewBatchHandler(batchService *service.BatchService) *BatchHandler {
	return &BatchHandler{batchService: batchService}
}

func respondBatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrBatchingDisabled):
		response.Fail(c, http.StatusConflict, response.ErrBatchingDisabled)
	case errors.Is(err, service.ErrBatchLocked), errors.Is(err, service.ErrBatchNotPending):
		response.Fail(c, http.StatusConflict, response.ErrBatchLocked)
	case errors.Is(err, service.ErrExamNotEditable), errors.Is(err, service.ErrBatchPlanTooLong):
		response.Fail(c, http.StatusConflict, response.ErrActionForbidden)
	default:
		respondError(c, err)
	}
}

// GenerateBatches godoc
// POST /api/v1/admin/exams/:id/batches
// Partitions the cohort into sequential time-boxed batches. Regeneration
// replaces the whole plan; only allowed before the exam goes ongoing.
func (h *BatchHandler) GenerateBatches(c *gin.Context) {
	examID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.GenerateBatchesRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	batches, err := h.batchService.Generate(c.Request.Context(), examID, &req)
	if err != nil {
		respondBatchError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, batches)
}

// ListBatches godoc
// GET /api/v1/admin/exams/:id/batches
func (h *BatchHandler) ListBatches(c *gin.Context) {
	examID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	batches, err := h.batchService.List(c.Request.Context(), examID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, batches)
}

// GetBoard godoc
// GET /api/v1/admin/exams/:id/batches/board
// Per-batch progress aggregation: live and submitted session counts.
func (h *BatchHandler) GetBoard(c *gin.Context) {
	examID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	board, err := h.batchService.Board(c.Request.Context(), examID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, board)
}

// ForceStartBatch godoc
// POST /api/v1/admin/batches/:batch_id/force-start
// Opens a batch ahead of its scheduled window.
func (h *BatchHandler) ForceStartBatch(c *gin.Context) {
	batchID, ok := parseIDParam(c, "batch_id")
	if !ok {
		return
	}

	batch, err := h.batchService.ForceStart(c.Request.Context(), batchID)
	if err != nil {
		respondBatchError(c, err)
		return
	}
	response.Success(c, http.StatusOK, batch)
}

// ForceCompleteBatch godoc
// POST /api/v1/admin/batches/:batch_id/force-complete
// Closes the batch early, force-submitting its live sessions.
func (h *BatchHandler) ForceCompleteBatch(c *gin.Context) {
	batchID, ok := parseIDParam(c, "batch_id")
	if !ok {
		return
	}

	submitted, err := h.batchService.ForceComplete(c.Request.Context(), batchID)
	if err != nil {
		respondBatchError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"force_submitted": submitted})
}

// AdvanceBatches godoc
// POST /api/v1/admin/batches/advance
// Manually triggers one scheduler pass. The background sweep runs the same
// routine; both are idempotent, so overlap is harmless.
func (h *BatchHandler) AdvanceBatches(c *gin.Context) {
	res, err := h.batchService.AutoAdvance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}
