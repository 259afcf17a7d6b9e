package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/campus-core/backoffice-api/internal/handler"
	"github.com/campus-core/backoffice-api/internal/middleware"
	"github.com/campus-core/backoffice-api/internal/repository"
	"github.com/campus-core/backoffice-api/internal/service"
	"github.com/campus-core/backoffice-api/pkg/cache"
	"github.com/campus-core/backoffice-api/pkg/clock"
	"github.com/campus-core/backoffice-api/pkg/config"
	"github.com/campus-core/backoffice-api/pkg/database"
	"github.com/campus-core/backoffice-api/pkg/logger"
	corsmiddleware "github.com/campus-core/backoffice-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campus-core/backoffice-api/pkg/middleware/requestid"
)

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	validate := validator.New()
	clk := clock.System()

	// Repositories.
	studentRepo := repository.NewStudentRepository(db)
	termRepo := repository.NewTermRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Services.
	metricsSvc := service.NewMetricsService()
	auditSink := service.NewRepoAuditSink(auditRepo, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	lifecycleSvc := service.NewLifecycleService(studentRepo, auditSink, clk, validate, logr)
	scheduleSvc := service.NewScheduleService(sectionRepo, enrollmentRepo, logr)
	enrollmentSvc := service.NewEnrollmentService(db, enrollmentRepo, studentRepo, sectionRepo, scheduleSvc, attendanceRepo, gradeRepo, auditSink, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, sessionRepo, gradeRepo, clk, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, cfg.Attendance.AlertThresholdPct, logr)
	sessionSvc := service.NewSessionService(sessionRepo, sectionRepo, logr)
	termSvc := service.NewTermService(termRepo, redisClient, cfg.Terms.CacheTTL, metricsSvc, auditSink, logr)
	invoiceSvc := service.NewInvoiceService(db, invoiceRepo, paymentRepo, studentRepo, termRepo, auditSink, cfg.Finance, clk, validate, logr)
	paymentSvc := service.NewPaymentService(db, paymentRepo, invoiceRepo, auditSink, clk, validate, logr)
	negotiationSvc := service.NewNegotiationService(db, invoiceRepo, paymentRepo, studentRepo, termRepo, enrollmentRepo, auditSink, cfg.Finance, clk, validate, logr)

	// Handlers.
	studentHandler := handler.NewStudentHandler(studentSvc, lifecycleSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	termHandler := handler.NewTermHandler(termSvc)
	invoiceHandler := handler.NewInvoiceHandler(invoiceSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	negotiationHandler := handler.NewNegotiationHandler(negotiationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))
	{
		students := api.Group("/students")
		students.GET("", studentHandler.List)
		students.POST("", studentHandler.Create)
		students.GET("/:id", studentHandler.Get)
		students.PATCH("/:id", studentHandler.UpdateProfile)
		students.DELETE("/:id", studentHandler.Delete)
		students.POST("/:id/lock", studentHandler.Lock)
		students.POST("/:id/graduate", studentHandler.Graduate)
		students.POST("/:id/reactivate", studentHandler.Reactivate)
		students.GET("/:id/debt-summary", negotiationHandler.DebtSummary)
		students.GET("/:id/grades", gradeHandler.ListByStudent)

		terms := api.Group("/terms")
		terms.GET("", termHandler.List)
		terms.GET("/current", termHandler.Current)
		terms.GET("/:id", termHandler.Get)
		terms.POST("/:id/set-current", termHandler.SetCurrent)

		sections := api.Group("/sections")
		sections.GET("/:id/sessions", sessionHandler.ListBySection)
		sections.GET("/:id/grades", gradeHandler.ListBySection)

		sessions := api.Group("/sessions")
		sessions.POST("/generate", sessionHandler.Generate)
		sessions.POST("/:id/cancel", sessionHandler.Cancel)
		sessions.POST("/:id/restore", sessionHandler.Restore)

		enrollments := api.Group("/enrollments")
		enrollments.GET("", enrollmentHandler.List)
		enrollments.POST("", enrollmentHandler.Create)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.PUT("/:id/status", enrollmentHandler.UpdateStatus)
		enrollments.DELETE("/:id", enrollmentHandler.Delete)

		attendance := api.Group("/attendance")
		attendance.GET("", attendanceHandler.List)
		attendance.POST("", attendanceHandler.Record)
		attendance.PUT("/:id", attendanceHandler.Correct)
		attendance.DELETE("/:id", attendanceHandler.Remove)
		attendance.POST("/recalculate", attendanceHandler.Recalculate)

		api.GET("/grades", gradeHandler.Get)

		invoices := api.Group("/invoices")
		invoices.GET("", invoiceHandler.List)
		invoices.POST("", invoiceHandler.Create)
		invoices.POST("/generate-term", negotiationHandler.GenerateTermInvoices)
		invoices.GET("/:id", invoiceHandler.Get)
		invoices.PATCH("/:id", invoiceHandler.Patch)
		invoices.DELETE("/:id", invoiceHandler.Delete)
		invoices.POST("/:id/cancel", invoiceHandler.Cancel)
		invoices.POST("/:id/mark-paid", invoiceHandler.MarkPaid)

		payments := api.Group("/payments")
		payments.GET("", paymentHandler.List)
		payments.POST("", paymentHandler.Create)
		payments.GET("/:id", paymentHandler.Get)
		payments.POST("/:id/settle", paymentHandler.Settle)
		payments.POST("/:id/refund", paymentHandler.Refund)
		payments.POST("/:id/fail", paymentHandler.Fail)

		negotiations := api.Group("/negotiations")
		negotiations.POST("", negotiationHandler.Execute)
		negotiations.POST("/preview", negotiationHandler.Preview)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
