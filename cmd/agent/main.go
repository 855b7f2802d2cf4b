package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"kintai/internal/api"
	"kintai/internal/clock"
	"kintai/internal/config"
	"kintai/internal/database"
	"kintai/internal/domain"
	"kintai/internal/events"
	"kintai/internal/export"
	"kintai/internal/hrapi"
	"kintai/internal/ledger"
	"kintai/internal/logging"
	"kintai/internal/metrics"
	"kintai/internal/notify"
	"kintai/internal/pipeline"
	"kintai/internal/probe"
	"kintai/internal/scheduler"
	"kintai/internal/session"
	"kintai/internal/tasks"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("database init failed")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, strategyStore := initStrategyStore(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	clk := clock.NewReal(cfg.Location())

	hrClient := hrapi.NewClient(cfg.HR, logger)
	sessions := session.NewManager(cfg.Automation, session.ChromeFactory(cfg.Automation), logger)

	backend, punches, err := selectBackend(cfg, hrClient, sessions, clk, logger)
	if err != nil {
		return err
	}

	metrics.Register()

	eventBus := events.NewEventBus()
	if cfg.Notify.TelegramEnabled {
		notifier, nerr := notify.NewTelegramNotifier(cfg.Notify, logger)
		if nerr != nil {
			logger.Warn().Err(nerr).Msg("telegram notifier unavailable")
		} else {
			notifier.SubscribePunchEvents(eventBus)
		}
	}

	pipe := pipeline.New(hrClient, sessions, strategyStore, db, clk, cfg.Automation.Configured(), logger)
	sched := scheduler.New(cfg.Schedule, db, backend, punches, clk, eventBus, logger)
	go sched.Run(ctx)

	taskStore := tasks.NewStore(clk, logger)
	go taskStore.StartGC(ctx)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
		go backupService.Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		go servePrometheus(cfg.Monitoring.PrometheusPort, logger)
	}

	exporter := export.NewExporter(cfg.Exports, db, clk, logger)

	if cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, sched, pipe, taskStore, db, exporter, clk, logger)
		go func() {
			if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().
		Str("backend", backend.Backend()).
		Bool("api", cfg.API.Enabled).
		Bool("web_fallback", cfg.Automation.Configured()).
		Msg("attendance agent started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := baseLogger.With().Str("component", "agent-main").Logger()
	return cfg, &logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	dirs := []string{
		filepath.Dir(cfg.Database.Path),
		cfg.Exports.Path,
		cfg.Automation.ArtifactsPath,
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error().Err(err).Str("dir", dir).Msg("directory creation failed")
			return err
		}
	}
	return nil
}

func initStrategyStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.StrategyStore) {
	memory := ledger.NewMemoryStrategyStore()
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		logger.Info().Msg("strategy ledger is memory-only")
		return nil, memory
	}

	redisClient := ledger.NewRedisClient(cfg.Redis)
	if err := ledger.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, ledger will fail over to memory")
	}
	primary := ledger.NewRedisStrategyStore(redisClient)
	return redisClient, ledger.NewFailoverStrategyStore(primary, memory, logger)
}

// selectBackend picks the punch backend configured for the schedule. The API
// backend doubles as the punch source so planning sees real punches.
func selectBackend(cfg *config.Config, hrClient *hrapi.Client, sessions *session.Manager,
	clk domain.Clock, logger *zerolog.Logger) (domain.AttendanceBackend, scheduler.PunchSource, error) {

	switch cfg.Schedule.Backend {
	case "api":
		return probe.NewAPIBackend(hrClient, clk, logger), hrClient, nil
	case "browser":
		return probe.NewBrowserBackend(sessions, logger), nil, nil
	case "mock":
		backend := probe.NewMockBackend(clk, logger)
		return backend, backend, nil
	default:
		return nil, nil, fmt.Errorf("unknown schedule backend %q", cfg.Schedule.Backend)
	}
}

func servePrometheus(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("prometheus metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("prometheus server error")
	}
}
