package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-grading/internal/config"
	"github.com/stemsi/exstem-grading/internal/handler"
	"github.com/stemsi/exstem-grading/internal/middleware"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	Result  *handler.ResultHandler
	Admin   *handler.AdminHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
	Health  *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter may be nil to disable candidate rate limiting.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.GET("/health", handlers.Health.Health)

	// ─── 1. Candidate Group (JWT + Rate Limit) ─────────────────────────
	candidateAPI := router.Group("/api/v1/candidate")
	candidateAPI.Use(middleware.RequireCandidateJWT(auth))
	if limiter != nil {
		candidateAPI.Use(limiter.Middleware())
	}
	{
		candidateAPI.POST("/exams/:exam_id/attempts", handlers.Attempt.Start)
		candidateAPI.GET("/attempts/:attempt_id", handlers.Attempt.Get)
		candidateAPI.PUT("/attempts/:attempt_id/answers", handlers.Attempt.SaveAnswers)
		candidateAPI.POST("/attempts/:attempt_id/submit", handlers.Attempt.Submit)
		candidateAPI.GET("/results", middleware.Compress(), handlers.Result.ListMine)
	}

	// ─── 2. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(auth))
	{
		ws.GET("/candidate/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 3. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(auth))
	{
		// Results
		adminAPI.GET("/results",
			middleware.RequirePermission(model.PermissionResultsRead),
			middleware.Compress(),
			handlers.Result.List,
		)
		adminAPI.GET("/results/:result_id",
			middleware.RequirePermission(model.PermissionResultsRead),
			handlers.Result.Get,
		)
		adminAPI.POST("/results/:result_id/publish",
			middleware.RequirePermission(model.PermissionResultsPublish),
			handlers.Result.Publish,
		)
		adminAPI.POST("/results/:result_id/unpublish",
			middleware.RequirePermission(model.PermissionResultsPublish),
			handlers.Result.Unpublish,
		)

		// Attempts
		adminAPI.POST("/attempts/sweep",
			middleware.RequirePermission(model.PermissionAttemptsSweep),
			handlers.Admin.RunSweep,
		)
		adminAPI.POST("/attempts/:attempt_id/force-submit",
			middleware.RequirePermission(model.PermissionAttemptsSweep),
			handlers.Admin.ForceSubmit,
		)

		// Exams
		adminAPI.POST("/exams/:exam_id/refresh-cache",
			middleware.RequirePermission(model.PermissionExamsRefresh),
			handlers.Admin.RefreshExamCache,
		)
		adminAPI.GET("/exams/:exam_id/monitor",
			middleware.RequirePermission(model.PermissionExamsMonitor),
			handlers.Monitor.MonitorExamSSE,
		)
	}

	return router
}
