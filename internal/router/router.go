package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/secureeval-backend/internal/config"
	"github.com/stemsi/secureeval-backend/internal/handler"
	"github.com/stemsi/secureeval-backend/internal/middleware"
	"github.com/stemsi/secureeval-backend/internal/observability"
	"github.com/stemsi/secureeval-backend/internal/response"
	"github.com/stemsi/secureeval-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Health         *handler.HealthHandler
	StudentSession *handler.StudentSessionHandler
	AdminSession   *handler.AdminSessionHandler
	QuestionSet    *handler.QuestionSetHandler
	Monitor        *handler.MonitorHandler
	System         *handler.SystemHandler
	WS             *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter guards the signal and frame endpoints; it may be nil.
func SetupRouter(
	authService *service.AuthService,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Metrics())

	// Prometheus exposition is left uncompressed for scrapers.
	brotliConfig := middleware.DefaultBrotliConfig
	brotliConfig.SkipPrefixes = []string{"/metrics"}
	router.Use(middleware.BrotliWithConfig(brotliConfig))

	router.GET("/health", handlers.Health.Health)
	router.GET("/metrics", gin.WrapH(observability.Handler()))

	rateLimited := func(c *gin.Context) { c.Next() }
	if limiter != nil {
		rateLimited = limiter.Middleware()
	}

	// ─── 1. Student Group (JWT, own sessions only) ─────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService), middleware.NoStore())
	{
		studentAPI.GET("/sessions", handlers.StudentSession.ListOwnSessions)
		studentAPI.GET("/sessions/:id/paper", handlers.StudentSession.GetPaper)
		studentAPI.GET("/sessions/:id/status", handlers.StudentSession.GetStatus)
		studentAPI.POST("/sessions/:id/signals", rateLimited, handlers.StudentSession.ReportSignal)
		studentAPI.POST("/sessions/:id/frames", rateLimited, handlers.StudentSession.AnalyzeFrame)
		studentAPI.POST("/sessions/:id/submit", handlers.StudentSession.Submit)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/sessions/:id/stream", handlers.WS.SessionStream)
	}

	// ─── 3. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		// Question sets
		questionSets := adminAPI.Group("/question-sets")
		questionSets.Use(middleware.RequirePermission(service.PermissionQuestionSetsManage))
		{
			questionSets.POST("", handlers.QuestionSet.CreateQuestionSet)
			questionSets.GET("", handlers.QuestionSet.ListQuestionSets)
			questionSets.POST("/extract", handlers.QuestionSet.ExtractQuestions)
			questionSets.GET("/:id", handlers.QuestionSet.GetQuestionSet)
		}
		adminAPI.GET("/question-sets/:id/monitor",
			middleware.RequirePermission(service.PermissionMonitorView),
			handlers.Monitor.MonitorQuestionSetSSE,
		)

		// Sessions
		sessions := adminAPI.Group("/sessions")
		sessions.Use(middleware.RequirePermission(service.PermissionSessionsManage))
		{
			sessions.POST("", handlers.AdminSession.AssignSession)
			sessions.GET("", handlers.AdminSession.ListSessions)
			sessions.GET("/:id", handlers.AdminSession.GetSession)
			sessions.DELETE("/:id", handlers.AdminSession.DeleteSession)
			sessions.GET("/:id/status", handlers.AdminSession.GetStatus)
			sessions.GET("/:id/logs", handlers.AdminSession.GetLogs)
			sessions.POST("/:id/logs", handlers.AdminSession.AppendLog)
			sessions.POST("/:id/signals", handlers.AdminSession.ReportSignal)
			sessions.POST("/:id/terminate", handlers.AdminSession.Terminate)
			sessions.GET("/:id/report", handlers.AdminSession.GetReport)
		}
		adminAPI.POST("/sessions/:id/report",
			middleware.RequireAnyPermission(service.PermissionReportsGenerate, service.PermissionSessionsManage),
			handlers.AdminSession.GenerateReport,
		)

		// Live monitoring
		adminAPI.GET("/monitor",
			middleware.RequirePermission(service.PermissionMonitorView),
			handlers.Monitor.MonitorAllSSE,
		)

		// Dashboard
		adminAPI.GET("/dashboard",
			handlers.AdminSession.GetDashboard, // Open to all admins
		)

		// System Monitoring
		adminAPI.GET("/system/metrics",
			handlers.System.SystemMetricsSSE, // Open to all admins
		)
	}

	return router
}
