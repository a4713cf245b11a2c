package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/proctorly/proctor-backend/internal/model"
	"github.com/proctorly/proctor-backend/internal/response"
	"github.com/proctorly/proctor-backend/internal/service"
)

// denialStatus maps a denial reason to its HTTP status. The reason code in
// the body is what clients branch on; the status just keeps proxies honest.
func denialStatus(reason model.DenialReason) int {
	switch reason {
	case model.DenialExamNotFound:
		return http.StatusNotFound
	case model.DenialSessionExists:
		return http.StatusConflict
	default:
		return http.StatusForbidden
	}
}

// respondError translates service-layer errors into the response envelope.
// Denials pass their lowercase reason code through unchanged.
func respondError(c *gin.Context, err error) {
	var denial *model.DenialError
	if errors.As(err, &denial) {
		response.Denied(c, denialStatus(denial.Reason), response.ErrCode(denial.Reason))
		return
	}
	if errors.Is(err, service.ErrSessionNotFound) || errors.Is(err, pgx.ErrNoRows) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}

// parseIDParam reads a UUID path parameter, failing the request on bad input.
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
