package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/academia-portal-api/api/swagger"
	"github.com/noah-isme/academia-portal-api/internal/handler"
	"github.com/noah-isme/academia-portal-api/internal/middleware"
	"github.com/noah-isme/academia-portal-api/internal/models"
	"github.com/noah-isme/academia-portal-api/internal/repository"
	"github.com/noah-isme/academia-portal-api/internal/service"
	"github.com/noah-isme/academia-portal-api/pkg/cache"
	"github.com/noah-isme/academia-portal-api/pkg/config"
	"github.com/noah-isme/academia-portal-api/pkg/database"
	"github.com/noah-isme/academia-portal-api/pkg/jobs"
	"github.com/noah-isme/academia-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academia-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academia-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/academia-portal-api/pkg/storage"
)

// @title Academia Portal API
// @version 1.0.0
// @description Role-based academic management portal: users, courses, session planning, attendance, leaves, files, notifications.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	fileRepo := repository.NewFileRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Attendance.CacheTTL, logr, cfg.Attendance.CacheEnabled)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userService := service.NewUserService(userRepo, courseRepo, validate, logr)
	courseService := service.NewCourseService(courseRepo, validate, logr)
	subjectService := service.NewSubjectService(subjectRepo, courseRepo, userRepo, validate, logr)
	sessionPlanService := service.NewSessionPlanService(sessionRepo, subjectRepo, courseRepo, metricsService, validate, logr)
	attendanceService := service.NewAttendanceService(attendanceRepo, subjectRepo, userRepo, cacheService, cfg.Attendance.CacheTTL, validate, logr)
	leaveService := service.NewLeaveService(leaveRepo, userRepo, validate, logr)
	fileService := service.NewFileService(fileRepo, courseRepo, cfg.Files.MaxFileSizeBytes, validate, logr)
	notificationService := service.NewNotificationService(notificationRepo, userRepo, metricsService, validate, logr)
	importService := service.NewImportService(userService, courseService, subjectService, cfg.Imports.MaxRows, logr)

	signer := storage.NewSignedURLSigner(cfg.Exports.SignSecret, cfg.Exports.ResultTTL)
	exportService := service.NewExportService(attendanceRepo, subjectRepo, exportStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.ResultTTL,
	}, logr)

	// Notification fan-out workers.
	fanoutQueue := jobs.NewQueue("notifications", notificationService.FanoutHandler, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notificationService.SetQueue(fanoutQueue)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fanoutQueue.Start(ctx)
	defer fanoutQueue.Stop()

	go cleanupExpiredExports(ctx, exportService, cfg.Exports.ResultTTL, logr)

	// Handlers.
	handlers := routeHandlers{
		auth:         handler.NewAuthHandler(authService, userService),
		users:        handler.NewUserHandler(userService),
		courses:      handler.NewCourseHandler(courseService),
		subjects:     handler.NewSubjectHandler(subjectService),
		sessions:     handler.NewSessionHandler(sessionPlanService),
		attendance:   handler.NewAttendanceHandler(attendanceService),
		leaves:       handler.NewLeaveHandler(leaveService),
		files:        handler.NewFileHandler(fileService),
		notification: handler.NewNotificationHandler(notificationService),
		imports:      handler.NewImportHandler(importService),
		exports:      handler.NewExportHandler(exportService),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	registerHealthRoutes(r, db, redisClient)
	r.GET("/metrics", gin.WrapH(metricsService.Handler()))
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerAPIRoutes(r.Group(cfg.APIPrefix), authService, handlers)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

type routeHandlers struct {
	auth         *handler.AuthHandler
	users        *handler.UserHandler
	courses      *handler.CourseHandler
	subjects     *handler.SubjectHandler
	sessions     *handler.SessionHandler
	attendance   *handler.AttendanceHandler
	leaves       *handler.LeaveHandler
	files        *handler.FileHandler
	notification *handler.NotificationHandler
	imports      *handler.ImportHandler
	exports      *handler.ExportHandler
}

func registerAPIRoutes(api *gin.RouterGroup, authService *service.AuthService, h routeHandlers) {
	api.POST("/auth/login", h.auth.Login)
	api.POST("/auth/refresh", h.auth.Refresh)

	// Signed export downloads carry their own authorization in the token.
	api.GET("/exports/:token", h.exports.Download)

	auth := api.Group("")
	auth.Use(middleware.JWT(authService))

	auth.POST("/auth/logout", h.auth.Logout)
	auth.POST("/auth/change-password", h.auth.ChangePassword)
	auth.GET("/auth/me", h.auth.Me)

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staffOrAdmin := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	reporters := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RolePlacementOfficer)

	auth.POST("/users", adminOnly, h.users.Create)
	auth.GET("/users", adminOnly, h.users.List)
	auth.GET("/users/:id", middleware.RBAC(string(models.RoleAdmin), middleware.SelfMarker), h.users.Get)
	auth.PUT("/users/:id", adminOnly, h.users.Update)
	auth.DELETE("/users/:id", adminOnly, h.users.Deactivate)

	auth.POST("/courses", adminOnly, h.courses.CreateCourse)
	auth.GET("/courses", h.courses.ListCourses)
	auth.GET("/courses/:id", h.courses.GetCourse)
	auth.PUT("/courses/:id", adminOnly, h.courses.UpdateCourse)
	auth.DELETE("/courses/:id", adminOnly, h.courses.DeactivateCourse)

	auth.POST("/batches", adminOnly, h.courses.CreateBatch)
	auth.GET("/batches", h.courses.ListBatches)
	auth.GET("/batches/:id", h.courses.GetBatch)
	auth.PUT("/batches/:id", adminOnly, h.courses.UpdateBatch)
	auth.DELETE("/batches/:id", adminOnly, h.courses.DeactivateBatch)

	auth.POST("/subjects", adminOnly, h.subjects.Create)
	auth.GET("/subjects", h.subjects.List)
	auth.GET("/subjects/:id", h.subjects.Get)
	auth.PUT("/subjects/:id", adminOnly, h.subjects.Update)
	auth.DELETE("/subjects/:id", adminOnly, h.subjects.Deactivate)

	auth.POST("/assignments", adminOnly, h.subjects.AssignStaff)
	auth.GET("/assignments", staffOrAdmin, h.subjects.ListAssignments)

	auth.POST("/electives", adminOnly, h.subjects.CreateElectiveGroup)
	auth.GET("/electives", h.subjects.ListElectiveGroups)
	auth.GET("/electives/:id", h.subjects.GetElectiveGroup)
	auth.PUT("/electives/:id/choice", middleware.RequireRoles(models.RoleStudent), h.subjects.ChooseElective)
	auth.GET("/electives/:id/choice", middleware.RequireRoles(models.RoleStudent), h.subjects.GetElectiveChoice)

	auth.PUT("/subjects/:id/batches/:batch_id/plan", staffOrAdmin, h.sessions.UpsertPlan)
	auth.GET("/subjects/:id/batches/:batch_id/calendar", h.sessions.GetCalendar)

	auth.POST("/attendance/sessions", staffOrAdmin, h.attendance.MarkSession)
	auth.PATCH("/attendance/records/:id", staffOrAdmin, h.attendance.Correct)
	auth.GET("/attendance/report", reporters, h.attendance.SessionReport)
	auth.GET("/students/:id/subjects/:subject_id/attendance",
		middleware.RBAC(string(models.RoleAdmin), string(models.RoleStaff), string(models.RolePlacementOfficer), middleware.SelfMarker),
		h.attendance.StudentStats)

	auth.POST("/leaves", h.leaves.Submit)
	auth.GET("/leaves", h.leaves.List)
	auth.GET("/leaves/:id", h.leaves.Get)
	auth.POST("/leaves/:id/review", staffOrAdmin, h.leaves.Review)

	auth.POST("/files", staffOrAdmin, h.files.Upload)
	auth.GET("/files", h.files.List)
	auth.GET("/files/:id", h.files.Download)
	auth.DELETE("/files/:id", adminOnly, h.files.Remove)

	auth.POST("/notifications", reporters, h.notification.Publish)
	auth.GET("/notifications/inbox", h.notification.Inbox)
	auth.POST("/notifications/inbox/:id/read", h.notification.MarkRead)

	auth.POST("/imports/:entity", adminOnly, h.imports.Run)

	auth.POST("/exports/register", reporters, h.exports.Generate)
}

func registerHealthRoutes(r *gin.Engine, db *sqlx.DB, redisClient *redis.Client) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

func cleanupExpiredExports(ctx context.Context, exports *service.ExportService, ttl time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup(ttl)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired export artifacts removed", zap.Int("count", len(removed)))
			}
		}
	}
}
