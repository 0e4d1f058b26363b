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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/uni-registrar-api/api/swagger"
	"github.com/noah-isme/uni-registrar-api/internal/handler"
	"github.com/noah-isme/uni-registrar-api/internal/middleware"
	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/internal/repository"
	"github.com/noah-isme/uni-registrar-api/internal/service"
	"github.com/noah-isme/uni-registrar-api/pkg/cache"
	"github.com/noah-isme/uni-registrar-api/pkg/config"
	"github.com/noah-isme/uni-registrar-api/pkg/database"
	"github.com/noah-isme/uni-registrar-api/pkg/export"
	"github.com/noah-isme/uni-registrar-api/pkg/jobs"
	"github.com/noah-isme/uni-registrar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uni-registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uni-registrar-api/pkg/middleware/requestid"
	"github.com/noah-isme/uni-registrar-api/pkg/storage"
)

// @title University Registrar API
// @version 1.0.0
// @description Enrollment, grading, GPA and transcript services
// @BasePath /api/v1
// @schemes http

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
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, transcript cache disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Exports.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	policy := academicPolicy(cfg.Academic)

	userRepo := repository.NewUserRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	prereqRepo := repository.NewPrerequisiteRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Transcripts.CacheTTL, logr, cfg.Transcripts.CacheEnabled && redisClient != nil)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "uni-registrar-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	semesterSvc := service.NewSemesterService(semesterRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, semesterRepo, userRepo, validate, logr)
	prereqSvc := service.NewPrerequisiteService(prereqRepo, enrollmentRepo, validate, logr)

	notificationSvc := service.NewNotificationService(notificationRepo, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, logr)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	exporter := export.NewTranscriptExporter()
	transcriptSvc := service.NewTranscriptService(enrollmentRepo, userRepo, cacheSvc, exporter, metricsSvc, policy, cfg.Transcripts.CacheTTL, logr)

	signer := storage.NewSignedURLSigner(cfg.Exports.SigningSecret, cfg.Exports.URLTTL)
	exportSvc := service.NewExportService(transcriptSvc, store, signer, cfg.Exports.Retention, logr)
	exportSvc.StartCleanup(ctx)

	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, prereqSvc, notificationSvc, transcriptSvc, metricsSvc, policy, validate, logr)
	gradeSvc := service.NewGradeService(enrollmentRepo, courseRepo, userRepo, notificationSvc, transcriptSvc, policy, validate, logr)
	assessmentSvc := service.NewAssessmentService(assessmentRepo, enrollmentRepo, courseRepo, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	semesterHandler := handler.NewSemesterHandler(semesterSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	prereqHandler := handler.NewPrerequisiteHandler(prereqSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	assessmentHandler := handler.NewAssessmentHandler(assessmentSvc)
	transcriptHandler := handler.NewTranscriptHandler(transcriptSvc, exportSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	authed := auth.Group("", middleware.JWT(authSvc))
	authed.POST("/logout", authHandler.Logout)
	authed.POST("/change-password", authHandler.ChangePassword)
	authed.GET("/me", authHandler.Me)

	// Signed token downloads carry their own credential.
	api.GET("/exports/:token", transcriptHandler.Download)

	protected := api.Group("", middleware.JWT(authSvc))

	admin := string(models.RoleAdmin)
	instructor := string(models.RoleInstructor)
	student := string(models.RoleStudent)

	users := protected.Group("/users", middleware.RBAC(admin))
	users.GET("", userHandler.List)
	users.POST("", userHandler.Create)
	users.GET("/:id", userHandler.Get)
	users.PUT("/:id", userHandler.Update)
	users.DELETE("/:id", userHandler.Delete)

	semesters := protected.Group("/semesters")
	semesters.GET("", semesterHandler.List)
	semesters.GET("/active", semesterHandler.GetActive)
	semesters.GET("/:id", semesterHandler.Get)
	semesters.POST("", middleware.RBAC(admin), semesterHandler.Create)
	semesters.PUT("/:id", middleware.RBAC(admin), semesterHandler.Update)
	semesters.POST("/:id/activate", middleware.RBAC(admin), middleware.Audit(userRepo, models.AuditActionSemesterSwitch, "semesters"), semesterHandler.Activate)

	courses := protected.Group("/courses")
	courses.GET("", courseHandler.List)
	courses.GET("/:id", courseHandler.Get)
	courses.POST("", middleware.RBAC(admin), courseHandler.Create)
	courses.PUT("/:id", middleware.RBAC(admin), courseHandler.Update)
	courses.GET("/:id/instructors", courseHandler.ListInstructors)
	courses.POST("/:id/instructors", middleware.RBAC(admin), courseHandler.AssignInstructor)
	courses.DELETE("/:id/instructors/:instructorId", middleware.RBAC(admin), courseHandler.UnassignInstructor)
	courses.GET("/:id/roster", middleware.RBAC(admin, instructor), enrollmentHandler.Roster)
	courses.GET("/:id/grades", middleware.RBAC(admin, instructor), gradeHandler.CourseGrades)
	courses.GET("/:id/assessments", assessmentHandler.ListByCourse)
	courses.PUT("/:id/assessments", middleware.RBAC(admin, instructor), assessmentHandler.Define)

	prereqs := protected.Group("/prerequisites")
	prereqs.GET("/:code", prereqHandler.ListForCourse)
	prereqs.GET("/:code/check", prereqHandler.Check)
	prereqs.POST("", middleware.RBAC(admin), prereqHandler.Add)
	prereqs.DELETE("/:code/:id", middleware.RBAC(admin), prereqHandler.Remove)

	enrollments := protected.Group("/enrollments")
	enrollments.GET("", middleware.RBAC(admin, instructor), enrollmentHandler.List)
	enrollments.POST("", middleware.RBAC(admin, student), enrollmentHandler.Enroll)
	enrollments.GET("/me", middleware.RBAC(student), enrollmentHandler.My)
	enrollments.DELETE("/:id", middleware.RBAC(admin, student), enrollmentHandler.Drop)
	enrollments.DELETE("/:id/waitlist", middleware.RBAC(admin, student), enrollmentHandler.LeaveWaitlist)
	enrollments.POST("/:id/grade", middleware.RBAC(admin, instructor), gradeHandler.Submit)
	enrollments.PUT("/:id/grade", middleware.RBAC(admin, instructor), gradeHandler.Update)
	enrollments.POST("/:id/scores", middleware.RBAC(admin, instructor), assessmentHandler.RecordScore)
	enrollments.GET("/:id/scores", assessmentHandler.WeightedScore)

	transcripts := protected.Group("/transcripts", middleware.WithResponseMeta())
	transcripts.GET("/:studentId", transcriptHandler.Get)
	transcripts.GET("/:studentId/gpa", transcriptHandler.Summary)
	transcripts.GET("/:studentId/export", transcriptHandler.Export)
	transcripts.POST("/:studentId/exports", transcriptHandler.Archive)

	notifications := protected.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.POST("/:id/read", notificationHandler.MarkRead)

	protected.GET("/admin/metrics", middleware.RBAC(admin), metricsHandler.Snapshot)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

// academicPolicy applies configured overrides on top of the institution
// defaults.
func academicPolicy(cfg config.AcademicConfig) models.AcademicPolicy {
	policy := models.DefaultAcademicPolicy()
	if cfg.MaxCreditsPerSemester > 0 {
		policy.MaxCreditsPerSemester = cfg.MaxCreditsPerSemester
	}
	if cfg.GradingWindowDays > 0 {
		policy.GradingWindow = time.Duration(cfg.GradingWindowDays) * 24 * time.Hour
	}
	if cfg.DeansListGPA > 0 {
		policy.DeansListGPA = cfg.DeansListGPA
	}
	if cfg.GoodStandingGPA > 0 {
		policy.GoodStandingGPA = cfg.GoodStandingGPA
	}
	return policy
}
