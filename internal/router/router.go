package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/proctorly/proctor-backend/internal/config"
	"github.com/proctorly/proctor-backend/internal/handler"
	"github.com/proctorly/proctor-backend/internal/middleware"
	"github.com/proctorly/proctor-backend/internal/response"
	"github.com/proctorly/proctor-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Session *handler.SessionHandler
	Exam    *handler.ExamHandler
	Batch   *handler.BatchHandler
	Monitor *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP). Login is
	// the expensive path: bcrypt plus the eligibility gate.
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/candidate/login", handlers.Auth.CandidateLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. Candidate Group (JWT, session-bound) ───────────────────────
	session := router.Group("/api/v1/candidate/session")
	session.Use(middleware.RequireCandidateJWT(authService))
	{
		session.GET("", handlers.Session.GetState)
		session.GET("/paper", handlers.Session.GetPaper)
		session.PUT("/answers/:question_id", handlers.Session.SaveAnswer)
		session.POST("/heartbeat", handlers.Session.Heartbeat)
		session.POST("/submit", handlers.Session.Submit)
		session.POST("/violations", handlers.Session.ReportViolation)
	}

	// ─── 3. WebSocket Group (Admin WS Auth) ────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAdminWSAuth(authService))
	{
		ws.GET("/admin/exams/:id/monitor", handlers.Monitor.MonitorExamStream)
	}

	// ─── 4. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		// Exam management
		adminAPI.GET("/exams", handlers.Exam.ListExams)
		adminAPI.POST("/exams", handlers.Exam.CreateExam)
		adminAPI.GET("/exams/:id", handlers.Exam.GetExam)
		adminAPI.PUT("/exams/:id", handlers.Exam.UpdateExam)
		adminAPI.DELETE("/exams/:id", handlers.Exam.DeleteExam)
		adminAPI.POST("/exams/:id/publish", handlers.Exam.PublishExam)
		adminAPI.POST("/exams/:id/archive", handlers.Exam.ArchiveExam)
		adminAPI.POST("/exams/:id/refresh-cache", handlers.Exam.RefreshPayloadCache)

		// Question management
		adminAPI.GET("/exams/:id/questions", handlers.Exam.ListQuestions)
		adminAPI.PUT("/exams/:id/questions", handlers.Exam.ReplaceQuestions)

		// Enrollment and results
		adminAPI.POST("/exams/:id/enroll", handlers.Exam.EnrollCandidates)
		adminAPI.GET("/exams/:id/submissions", handlers.Exam.ListSubmissions)

		// Batch scheduling
		adminAPI.POST("/exams/:id/batches", handlers.Batch.GenerateBatches)
		adminAPI.GET("/exams/:id/batches", handlers.Batch.ListBatches)
		adminAPI.GET("/exams/:id/batches/board", handlers.Batch.GetBoard)
		adminAPI.POST("/batches/:batch_id/force-start", handlers.Batch.ForceStartBatch)
		adminAPI.POST("/batches/:batch_id/force-complete", handlers.Batch.ForceCompleteBatch)
		adminAPI.POST("/batches/advance", handlers.Batch.AdvanceBatches)

		// Session intervention
		adminAPI.POST("/sessions/:token/force-submit", handlers.Exam.ForceSubmitSession)
	}

	return router
}
