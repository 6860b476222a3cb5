package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Yuzori/l-Agence/internal/agency"
	"github.com/Yuzori/l-Agence/internal/config"
	"github.com/Yuzori/l-Agence/internal/docstore"
	"github.com/Yuzori/l-Agence/internal/export"
	"github.com/Yuzori/l-Agence/internal/httpapi"
	"github.com/Yuzori/l-Agence/internal/logger"
	"github.com/Yuzori/l-Agence/internal/moderation"
	"github.com/Yuzori/l-Agence/internal/realtime"
	"github.com/Yuzori/l-Agence/internal/retention"
	"github.com/Yuzori/l-Agence/internal/telemetry"
)

// meteredSink feeds store events into the realtime hub and keeps the
// event counters current.
type meteredSink struct {
	hub *realtime.Hub
}

func (s *meteredSink) Publish(event string, payload any, rooms ...string) {
	telemetry.RealtimeEvents.WithLabelValues(event).Inc()
	if event == agency.EventNewNotification {
		if n, ok := payload.(*agency.Notification); ok {
			telemetry.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
		}
	}
	s.hub.Publish(event, payload, rooms...)
}

func main() {
	_ = godotenv.Load()

	configFlag := flag.String("config", "", "path to YAML config file")
	addrFlag := flag.String("addr", "", "listen address (overrides config)")
	dataFlag := flag.String("data", "", "data directory (overrides config)")
	backendFlag := flag.String("backend", "", "store backend: json, sqlite, or memory (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Init()
		logger.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	if *addrFlag != "" {
		cfg.Server.Address = *addrFlag
	}
	if *dataFlag != "" {
		cfg.Server.DataDir = *dataFlag
	}
	if *backendFlag != "" {
		cfg.Server.Backend = *backendFlag
	}
	logger.InitWithLevel(cfg.Logging.Level)

	hub := realtime.NewHub(realtime.Config{
		OnConnectedChange: func(n int) { telemetry.ConnectedAgents.Set(float64(n)) },
	})
	storeCfg := agency.Config{
		Admins:         cfg.Security.Admins,
		Events:         &meteredSink{hub: hub},
		OnPersistError: telemetry.PersistErrors.Inc,
	}

	var store agency.API
	switch cfg.Server.Backend {
	case "memory":
		store = agency.NewStore(storeCfg)
		logger.Info("store_ready", "backend", "memory")
	case "sqlite":
		dbPath := filepath.Join(cfg.Server.DataDir, "agence.db")
		ss, err := agency.NewSQLiteStore(dbPath, storeCfg)
		if err != nil {
			logger.Error("store_init_failed", "backend", "sqlite", "path", dbPath, "error", err)
			os.Exit(1)
		}
		store = ss
		logger.Info("store_ready", "backend", "sqlite", "path", dbPath)
	default:
		docs, err := docstore.Open(cfg.Server.DataDir)
		if err != nil {
			logger.Error("store_init_failed", "backend", "json", "dir", cfg.Server.DataDir, "error", err)
			os.Exit(1)
		}
		ps, err := agency.NewPersistentStore(docs, storeCfg)
		if err != nil {
			logger.Error("store_init_failed", "backend", "json", "dir", cfg.Server.DataDir, "error", err)
			os.Exit(1)
		}
		store = ps
		logger.Info("store_ready", "backend", "json", "dir", cfg.Server.DataDir)
	}

	if len(cfg.Bootstrap.Agents) > 0 {
		seed := make([]agency.Agent, 0, len(cfg.Bootstrap.Agents))
		for _, a := range cfg.Bootstrap.Agents {
			seed = append(seed, agency.Agent{Name: a.Name, Code: a.Code})
		}
		if err := store.SeedAgents(seed); err != nil {
			var ae *agency.Error
			if errors.As(err, &ae) && ae.Code == agency.CodeConflict {
				logger.Info("bootstrap_skipped", "reason", "roster already seeded")
			} else {
				logger.Error("bootstrap_failed", "error", err)
				os.Exit(1)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry.OTLPEndpoint, "agence")
	if err != nil {
		logger.Error("tracing_init_failed", "error", err)
		os.Exit(1)
	}

	sweeper, err := retention.NewSweeper(store, retention.Config{
		Cron:   cfg.Retention.Cron,
		MaxAge: cfg.Retention.MaxAge,
	})
	if err != nil {
		logger.Error("retention_init_failed", "error", err)
		os.Exit(1)
	}
	go sweeper.Run(ctx)

	adminName := "moderator"
	if len(cfg.Security.Admins) > 0 {
		adminName = cfg.Security.Admins[0]
	}
	var reviewer httpapi.Reviewer
	if r, err := moderation.NewReviewerFromEnv(store, adminName); err == nil {
		reviewer = r
	} else {
		logger.Info("moderation_disabled", "reason", err.Error())
	}

	handler := httpapi.NewServer(httpapi.Options{
		Store:    store,
		Hub:      hub,
		Exporter: export.NewChromiumExporter(),
		Reviewer: reviewer,
		Admins:   cfg.Security.Admins,
		RateRPS:  cfg.Security.RateLimit.RPS,
		Burst:    cfg.Security.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Address, "backend", cfg.Server.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting_down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing_shutdown_failed", "error", err)
	}
}
