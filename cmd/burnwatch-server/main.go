package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/burnwatch/burnwatch/internal/config"
	"github.com/burnwatch/burnwatch/internal/eval"
	"github.com/burnwatch/burnwatch/internal/gateway"
	promgw "github.com/burnwatch/burnwatch/internal/gateway/prometheus"
	"github.com/burnwatch/burnwatch/internal/gateway/synthetic"
	"github.com/burnwatch/burnwatch/internal/metrics"
	"github.com/burnwatch/burnwatch/internal/notify"
	"github.com/burnwatch/burnwatch/internal/registry"
	"github.com/burnwatch/burnwatch/internal/scheduler"
	"github.com/burnwatch/burnwatch/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional; env vars override)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("starting burnwatch",
		zap.Duration("interval", cfg.EvaluationInterval),
		zap.Int("workers", cfg.Workers),
		zap.String("adapter", cfg.Adapter),
		zap.String("definitions_dir", cfg.DefinitionsDir))

	// Telemetry gateway
	var gw gateway.QueryGateway
	switch cfg.Adapter {
	case "prometheus":
		pcfg := promgw.DefaultConfig(cfg.PrometheusURL)
		pcfg.Timeout = cfg.QueryTimeout
		gw = promgw.NewGateway(pcfg, logger)
	case "synthetic":
		sg := synthetic.NewGateway()
		if cfg.FixturesDir != "" {
			loadFixtures(sg, cfg.FixturesDir, logger)
		}
		gw = sg
	default:
		logger.Fatal("unknown adapter", zap.String("adapter", cfg.Adapter))
	}

	// Definition registry
	reg, err := registry.NewDirectoryRegistry(cfg.DefinitionsDir, logger)
	if err != nil {
		logger.Fatal("failed to load slo definitions", zap.Error(err))
	}

	// Snapshot store
	store, err := sqlite.NewStore(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal("failed to open snapshot store", zap.Error(err))
	}
	defer store.Close()

	// Notification dispatcher
	var dispatcher notify.Dispatcher
	if cfg.AlertmanagerURL != "" {
		dispatcher = notify.NewAlertmanagerDispatcher(cfg.AlertmanagerURL, cfg.AlertmanagerTimeout, logger)
		logger.Info("dispatching alerts to alertmanager", zap.String("url", cfg.AlertmanagerURL))
	} else {
		dispatcher = notify.NewLogDispatcher(logger)
	}

	// Self-metrics
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}
	metricsServer := startMetricsServer(cfg.MetricsAddr, logger)

	// Evaluation engine
	evaluator := eval.NewEvaluator(gw, cfg.QueryTimeout)
	sched := scheduler.New(scheduler.Config{
		Interval:      cfg.EvaluationInterval,
		Workers:       int64(cfg.Workers),
		MinFireTicks:  cfg.MinFireTicks,
		RetryCount:    cfg.RetryCount,
		RetryDelay:    cfg.RetryDelay,
		ShutdownGrace: cfg.ShutdownGrace,
	}, reg, evaluator, store, dispatcher, logger)

	if err := sched.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	// Wait for interrupt
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// startMetricsServer exposes /metrics and /healthz.
func startMetricsServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("metrics listener started", zap.String("addr", addr))
	return srv
}

// loadFixtures loads every *.json file in dir as a synthetic fixture named
// after its base filename.
func loadFixtures(sg *synthetic.Gateway, dir string, logger *zap.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("failed to read fixtures directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || len(entry.Name()) < 6 || entry.Name()[len(entry.Name())-5:] != ".json" {
			continue
		}
		name := entry.Name()[:len(entry.Name())-5]
		if err := sg.LoadFixture(name, dir+"/"+entry.Name()); err != nil {
			logger.Warn("failed to load fixture", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		logger.Info("loaded fixture", zap.String("name", name))
	}
}
