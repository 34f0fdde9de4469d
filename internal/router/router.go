package router

import (
	"time"

	"github.com/amphorabeer/brewhouse/internal/config"
	"github.com/amphorabeer/brewhouse/internal/handler"
	"github.com/amphorabeer/brewhouse/internal/infra"
	"github.com/amphorabeer/brewhouse/internal/middleware"
	"github.com/amphorabeer/brewhouse/internal/repository"
	"github.com/amphorabeer/brewhouse/internal/service"
	"github.com/amphorabeer/brewhouse/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, smtpCB *infra.CircuitBreaker) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Repositories ─────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	tankRepo := repository.NewTankRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	lotRepo := repository.NewLotRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	transferRepo := repository.NewTransferRepository(db)
	measurementRepo := repository.NewMeasurementRepository(db)
	timelineRepo := repository.NewTimelineRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	// Worker dispatcher — injected into services that enqueue async jobs
	dispatcher := worker.NewDispatcher(rdb)
	codes := service.NewLotCodeGenerator()

	authSvc := service.NewAuthService(userRepo, cfg)
	tankSvc := service.NewTankService(tankRepo, assignmentRepo, dispatcher)
	batchSvc := service.NewBatchService(batchRepo, lotRepo, tankRepo, assignmentRepo, codes, dispatcher)
	lotSvc := service.NewLotService(lotRepo)
	transitionSvc := service.NewTransitionService(batchRepo, lotRepo, tankRepo, assignmentRepo, transferRepo, measurementRepo, codes, dispatcher)

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(authSvc)
	usersH := handler.NewUsersHandler(authSvc)
	tanksH := handler.NewTanksHandler(tankSvc)
	batchesH := handler.NewBatchesHandler(batchSvc, timelineRepo, dispatcher)
	lotsH := handler.NewLotsHandler(lotSvc)
	transitionsH := handler.NewTransitionsHandler(transitionSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, smtpCB))

	// Auth (public)
	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(), authH.Login)
		auth.POST("/refresh", authH.Refresh)
	}

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		// Roles: brewer, supervisor, admin — declared per-endpoint
		v1.POST("/transitions", middleware.RequireRole("brewer", "supervisor", "admin"), transitionsH.Execute)
		v1.GET("/transfers", middleware.RequireRole("brewer", "supervisor", "admin"), transitionsH.ListTransfers)

		v1.GET("/tanks", middleware.RequireRole("brewer", "supervisor", "admin"), tanksH.List)
		v1.GET("/tanks/:id", middleware.RequireRole("brewer", "supervisor", "admin"), tanksH.Get)
		v1.POST("/tanks/:id/cleaned", middleware.RequireRole("brewer", "supervisor", "admin"), tanksH.MarkCleaned)
		// Registry writes — supervisor or admin
		tanks := v1.Group("/tanks", middleware.RequireRole("supervisor", "admin"))
		{
			tanks.POST("", tanksH.Create)
			tanks.PUT("/:id", tanksH.Update)
		}

		v1.GET("/batches", middleware.RequireRole("brewer", "supervisor", "admin"), batchesH.List)
		v1.GET("/batches/:id", middleware.RequireRole("brewer", "supervisor", "admin"), batchesH.Get)
		v1.GET("/batches/:id/timeline", middleware.RequireRole("brewer", "supervisor", "admin"), batchesH.Timeline)
		v1.POST("/batches", middleware.RequireRole("brewer", "supervisor", "admin"), batchesH.Create)
		v1.POST("/batches/:id/report", middleware.RequireRole("supervisor", "admin"), batchesH.RequestReport)

		v1.GET("/lots/:id", middleware.RequireRole("brewer", "supervisor", "admin"), lotsH.Get)

		users := v1.Group("/users", middleware.RequireRole("admin"))
		{
			users.POST("", usersH.Create)
			users.GET("", usersH.List)
			users.PUT("/:id", usersH.Update)
			users.DELETE("/:id", usersH.Deactivate)
			users.PATCH("/:id/reactivate", usersH.Reactivate)
		}
	}

	// Swagger UI — only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
