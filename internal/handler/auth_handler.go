package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/proctorly/proctor-backend/internal/middleware"
	"github.com/proctorly/proctor-backend/internal/model"
	"github.com/proctorly/proctor-backend/internal/response"
	"github.com/proctorly/proctor-backend/internal/service"
	"github.com/proctorly/proctor-backend/internal/validator"
)

// CandidateAccounts resolves candidate accounts for login.
type CandidateAccounts interface {
	GetByUsername(ctx context.Context, username string) (*model.Candidate, error)
	GetByID(ctx context.Context, id int) (*model.Candidate, error)
}

// AdminAccounts resolves admin accounts for login.
type AdminAccounts interface {
	GetByEmail(ctx context.Context, email string) (*model.Admin, error)
	GetByID(ctx context.Context, id int) (*model.Admin, error)
}

// AuthHandler handles authentication endpoints. Candidate login is the attempt
// entry point: credentials and eligibility are checked in one request, and the
// returned JWT is bound to the created (or resumed) session.
type AuthHandler struct {
	authService    *service.AuthService
	sessionService *service.SessionService
	candidates     CandidateAccounts
	admins         AdminAccounts
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	authService *service.AuthService,
	sessionService *service.SessionService,
	candidates CandidateAccounts,
	admins AdminAccounts,
) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		sessionService: sessionService,
		candidates:     candidates,
		admins:         admins,
	}
}

// CandidateLogin godoc
// POST /api/v1/auth/candidate/login
// Validates username + password, runs the attempt eligibility gate, and
// returns a JWT bound to the session. Denials carry a stable lowercase reason
// code that the client branches on.
func (h *AuthHandler) CandidateLogin(c *gin.Context) {
	var req model.CandidateLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	candidate, err := h.candidates.GetByUsername(c.Request.Context(), req.Username)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}
	if err := h.authService.CheckPassword(candidate.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	examID, err := uuid.Parse(req.ExamID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, err := h.sessionService.Start(c.Request.Context(), examID, candidate.ID, req.Fingerprint, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.authService.GenerateCandidateToken(c.Request.Context(), candidate.ID, sess.Token)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":   token,
		"session": sess,
		"candidate": gin.H{
			"id":       candidate.ID,
			"name":     candidate.Name,
			"username": candidate.Username,
		},
	})
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
// Validates email + password, returns a JWT.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	admin, err := h.admins.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}
	if err := h.authService.CheckPassword(admin.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateAdminToken(admin.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"admin": gin.H{
			"id":    admin.ID,
			"email": admin.Email,
			"name":  admin.Name,
		},
	})
}

// GetAdminProfile godoc
// GET /api/v1/auth/admin/me
// Returns the profile of the currently authenticated admin.
func (h *AuthHandler) GetAdminProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	admin, err := h.admins.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"admin": gin.H{
			"id":    admin.ID,
			"email": admin.Email,
			"name":  admin.Name,
		},
	})
}

// sessionToken extracts the attempt token from candidate claims. A candidate
// token without a parseable session token never passes the JWT middleware, so
// failures here are treated as invalid tokens.
func sessionToken(c *gin.Context) (uuid.UUID, error) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		return uuid.Nil, errors.New("missing claims")
	}
	return claims.SessionTokenUUID()
}
