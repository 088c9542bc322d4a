package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-bulletin-api/api/swagger"
	"github.com/noah-isme/sma-bulletin-api/internal/handler"
	"github.com/noah-isme/sma-bulletin-api/internal/middleware"
	"github.com/noah-isme/sma-bulletin-api/internal/models"
	"github.com/noah-isme/sma-bulletin-api/internal/repository"
	"github.com/noah-isme/sma-bulletin-api/internal/service"
	"github.com/noah-isme/sma-bulletin-api/pkg/cache"
	"github.com/noah-isme/sma-bulletin-api/pkg/config"
	"github.com/noah-isme/sma-bulletin-api/pkg/database"
	"github.com/noah-isme/sma-bulletin-api/pkg/export"
	"github.com/noah-isme/sma-bulletin-api/pkg/jobs"
	"github.com/noah-isme/sma-bulletin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-bulletin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-bulletin-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-bulletin-api/pkg/storage"
)

// @title SMA Bulletin API
// @version 1.0.0
// @description Term grade aggregation, class ranking and PDF report cards.
// @BasePath /api/v1
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo service.CacheRepository
	readiness := map[string]handler.Pinger{"database": db, "redis": nil}
	if cfg.Bulletins.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, class results cache disabled", "error", err)
		} else {
			redisRepo := repository.NewCacheRepository(client, logr)
			defer redisRepo.Close() //nolint:errcheck
			cacheRepo = redisRepo
			readiness["redis"] = handler.PingerFunc(redisRepo.Ping)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Bulletins.CacheTTL, logr, cacheRepo != nil)

	renderer := export.NewBulletinRenderer(loadAssets(cfg.Bulletins, logr))

	bulletinSvc := service.NewBulletinService(service.BulletinRepositories{
		Ledger:       repository.NewGradeEntryRepository(db),
		Roster:       repository.NewRosterRepository(db),
		Terms:        repository.NewTermRepository(db),
		Subjects:     repository.NewClassSubjectRepository(db),
		Coefficients: repository.NewSubjectCoefficientRepository(db),
	}, renderer, cacheSvc, metricsSvc, validate, logr, service.BulletinServiceConfig{
		SchoolYear:   cfg.Bulletins.SchoolYear,
		Policy:       models.CoefficientPolicy(cfg.Bulletins.CoefficientPolicy),
		Strategy:     models.RankStrategy(cfg.Bulletins.RankStrategy),
		Workers:      cfg.Bulletins.ComputeWorkers,
		CacheTTL:     cfg.Bulletins.CacheTTL,
		CSVSeparator: separator(cfg.Bulletins.CSVSeparator),
	})

	jobRepo := repository.NewBulletinJobRepository(db)
	fileStore, err := storage.NewLocalStorage(cfg.Jobs.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare bulletin storage", "error", err)
	}
	exportSvc := service.NewExportService(fileStore, storage.NewSignedURLSigner(cfg.Jobs.SignedURLSecret, cfg.Jobs.SignedURLTTL), service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Jobs.ResultTTL,
	}, logr)

	worker := service.NewBulletinWorker(jobRepo, bulletinSvc, renderer, exportSvc, metricsSvc, cfg.Jobs.StudentWorkers, logr)
	var queue *jobs.Queue[service.BulletinTask]
	if cfg.Jobs.Enabled {
		queue = jobs.NewQueue[service.BulletinTask]("bulletins", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Jobs.WorkerConcurrency,
			MaxRetries: cfg.Jobs.WorkerRetries,
			RetryDelay: 2 * time.Second,
			Logger:     logr,
		})
		queue.OnGiveUp(worker.GiveUp)
		// running jobs finish on shutdown; Stop follows Drain
		queue.Start(context.Background())
	}
	jobSvc := service.NewBulletinJobService(jobRepo, bulletinSvc, exportSvc, enqueuer(queue), validate, logr, service.BulletinJobConfig{
		Enabled:         cfg.Jobs.Enabled,
		ResultTTL:       cfg.Jobs.ResultTTL,
		CleanupInterval: cfg.Jobs.CleanupInterval,
	})
	if cfg.Jobs.Enabled {
		jobSvc.RecoverPendingJobs(ctx)
		jobSvc.StartCleanup(ctx)
	}

	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		Expiry: cfg.JWT.Expiration,
	})

	bulletinHandler := handler.NewBulletinHandler(bulletinSvc)
	jobHandler := handler.NewBulletinJobHandler(jobSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readiness)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := string(models.RoleAdmin)
	superAdmin := string(models.RoleSuperAdmin)
	teacher := string(models.RoleTeacher)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin, models.RoleTeacher)
	admins := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)

	api := r.Group(cfg.APIPrefix)
	api.GET("/bulletins/download/:token", jobHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(tokenSvc))
	secured.GET("/metrics/system", admins, metricsHandler.System)

	bulletins := secured.Group("/bulletins")
	bulletins.GET("/students/:id", middleware.RBAC(admin, superAdmin, teacher, middleware.Self), bulletinHandler.StudentBulletin)
	bulletins.GET("/students/:id/pdf", middleware.RBAC(admin, superAdmin, teacher, middleware.Self), bulletinHandler.StudentBulletinPDF)
	bulletins.POST("/students/:id/render", staff, bulletinHandler.RenderStudentBulletin)
	bulletins.GET("/classes/:id/results", staff, bulletinHandler.ClassResults)
	bulletins.GET("/classes/:id/sheet", staff, bulletinHandler.ClassSheet)
	bulletins.DELETE("/classes/:id/cache", admins, bulletinHandler.InvalidateClassCache)
	bulletins.POST("/jobs", staff, jobHandler.CreateJob)
	bulletins.GET("/jobs/:id", staff, jobHandler.JobStatus)

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
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("http shutdown failed", "error", err)
	}
	if queue != nil {
		if err := queue.Drain(shutdownCtx); err != nil {
			logr.Sugar().Warnw("bulletin queue did not drain", "pending", queue.Pending(), "error", err)
		}
		queue.Stop()
	}
}

// enqueuer keeps a disabled queue a true nil interface.
func enqueuer(queue *jobs.Queue[service.BulletinTask]) interface {
	Enqueue(jobs.Job[service.BulletinTask]) error
} {
	if queue == nil {
		return nil
	}
	return queue
}

func separator(value string) rune {
	for _, r := range value {
		return r
	}
	return ';'
}

// loadAssets reads the logo and signature images. Unreadable files fall back to placeholders.
func loadAssets(cfg config.BulletinConfig, logr *zap.Logger) export.BulletinAssets {
	read := func(path string) []byte {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logr.Sugar().Warnw("bulletin asset unreadable, using placeholder", "path", path, "error", err)
			return nil
		}
		return data
	}

	assets := export.BulletinAssets{
		InstitutionName: cfg.InstitutionName,
		Logo:            read(cfg.LogoPath),
	}
	for i, title := range cfg.SignatureTitles {
		var image []byte
		if i < len(cfg.SignaturePaths) {
			image = read(cfg.SignaturePaths[i])
		}
		assets.Signatories = append(assets.Signatories, export.Signatory{Title: title, Image: image})
	}
	return assets
}
