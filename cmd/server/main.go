package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"

	"github.com/heartsound/report-backend-go/internal/api"
	"github.com/heartsound/report-backend-go/internal/config"
	"github.com/heartsound/report-backend-go/internal/database"
	"github.com/heartsound/report-backend-go/internal/dispatch"
	"github.com/heartsound/report-backend-go/internal/logging"
	"github.com/heartsound/report-backend-go/internal/middleware"
	"github.com/heartsound/report-backend-go/internal/report"
	"github.com/heartsound/report-backend-go/internal/repository"
	"github.com/heartsound/report-backend-go/internal/repository/postgres"
	"github.com/heartsound/report-backend-go/internal/scheduler"
	"github.com/heartsound/report-backend-go/internal/service"
	"github.com/heartsound/report-backend-go/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// stores groups the persistence backends
type stores struct {
	tasks  service.TaskStore
	source report.DataSource
	audit  service.AuditLogger
	close  func()
}

func run() error {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 初始化日志
	logger, closeLogs, err := logging.New(logging.Config{
		Level:         cfg.Log.Level,
		JSON:          cfg.Log.JSON,
		FluentEnabled: cfg.Log.FluentEnabled,
		FluentHost:    cfg.Log.FluentHost,
		FluentPort:    cfg.Log.FluentPort,
		FluentTag:     cfg.Log.FluentTag,
	})
	if err != nil {
		return err
	}
	defer closeLogs()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// 初始化文件存储
	blobs, localFiles, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	engine := report.NewEngine(st.source, report.Options{
		Location:    cfg.Location(),
		Concurrency: cfg.Report.StatsConcurrency,
	})

	// 初始化任务派发
	var (
		dispatcher service.Dispatcher
		startRunner func(svc *service.ReportService) error
		stopRunner  func()
	)
	switch cfg.Dispatch.Driver {
	case "amqp":
		amqpCfg := dispatch.AMQPConfig{
			URL:           cfg.Dispatch.AMQPURL,
			QueueName:     cfg.Dispatch.AMQPQueue,
			PrefetchCount: cfg.Dispatch.WorkerCount,
		}
		publisher, err := dispatch.NewAMQPDispatcher(amqpCfg, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()

		consumer, err := dispatch.NewAMQPConsumer(amqpCfg, logger)
		if err != nil {
			return err
		}
		dispatcher = publisher
		startRunner = func(svc *service.ReportService) error { return consumer.Start(ctx, svc) }
		stopRunner = func() {
			if err := consumer.Close(); err != nil {
				logger.Warn("failed to close amqp consumer", "error", err)
			}
		}
	default:
		pool := dispatch.NewWorkerPool(cfg.Dispatch.WorkerCount, cfg.Dispatch.QueueSize, logger)
		dispatcher = pool
		startRunner = func(svc *service.ReportService) error {
			pool.Start(context.WithoutCancel(ctx), svc)
			return nil
		}
		stopRunner = pool.Stop
	}

	svc := service.NewReportService(st.tasks, engine, blobs, st.audit, dispatcher, service.Options{
		GenerationTimeout: cfg.Report.GenerationTimeout,
		Logger:            logger,
	})

	if err := startRunner(svc); err != nil {
		return err
	}
	defer stopRunner()

	// 恢复上次退出时遗留的任务
	if n, err := svc.FailStaleTasks(ctx); err != nil {
		logger.Warn("failed to fail stale report tasks", "error", err)
	} else if n > 0 {
		logger.Warn("failed stale report tasks", "count", n)
	}
	if cfg.Dispatch.Driver == "pool" {
		if n, err := svc.RequeuePending(ctx); err != nil {
			logger.Warn("failed to requeue pending report tasks", "error", err)
		} else if n > 0 {
			logger.Info("requeued pending report tasks", "count", n)
		}
	}

	// 定时清理过期报表
	sweeper, err := scheduler.NewCleanupScheduler(cfg.Report.CleanupSchedule, svc, logger)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	go sweepLimiter(ctx, limiter, cfg.RateLimitWindow)

	// 初始化路由
	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(api.Dependencies{
		Reports:     svc,
		LocalFiles:  localFiles,
		JWTSecret:   cfg.JWTSecret,
		RateLimiter: limiter,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Port,
			"db_driver", cfg.Database.Driver,
			"storage_driver", cfg.Storage.Driver,
			"dispatch_driver", cfg.Dispatch.Driver,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.Database.Driver == "postgres" {
		pool, err := database.NewPostgresPool(ctx, database.PostgresConfig{
			DatabaseURL: cfg.Database.URL,
			MaxConns:    int32(cfg.Database.MaxOpenConns),
		})
		if err != nil {
			return nil, err
		}
		tasks, err := postgres.NewReportTaskRepository(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		source, err := postgres.NewDetectionRepository(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		audit, err := postgres.NewAdminLogRepository(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("connected to postgres", "component", "database")
		return &stores{tasks: tasks, source: source, audit: audit, close: pool.Close}, nil
	}

	if err := database.Init(database.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db := database.GetDB()

	return &stores{
		tasks:  repository.NewReportTaskRepository(db),
		source: repository.NewDetectionRepository(db),
		audit:  repository.NewAdminLogRepository(db),
		close: func() {
			if err := database.Close(); err != nil {
				logger.Warn("failed to close database", "error", err)
			}
		},
	}, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, *storage.LocalStore, error) {
	if cfg.Storage.Driver == "s3" {
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.Storage.S3Bucket,
			Region:          cfg.Storage.S3Region,
			AccessKeyID:     cfg.Storage.S3AccessKeyID,
			SecretAccessKey: cfg.Storage.S3SecretAccessKey,
			Endpoint:        cfg.Storage.S3Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}

	local, err := storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL, cfg.JWTSecret)
	if err != nil {
		return nil, nil, err
	}
	return local, local, nil
}

func sweepLimiter(ctx context.Context, limiter *middleware.RateLimiter, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}
