package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cardgen-go/internal/config"
	"cardgen-go/internal/events"
	"cardgen-go/internal/logging"
	"cardgen-go/internal/monitoring/tracing"
	srv "cardgen-go/internal/server"
	"cardgen-go/internal/storage"
	"cardgen-go/internal/version"

	log "github.com/sirupsen/logrus"
)

const (
	shutdownTimeout = 15 * time.Second
	taskRetention   = time.Hour
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults to config.yaml or ~/.cardgen/config.yaml)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cm, err := config.NewConfigManager(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	defer cm.Close()
	cfg := cm.Config()
	if *debug {
		cfg.Logging.Debug = true
	}
	if err := logging.Setup(cfg.Logging); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}
	res := cfg.Validate()
	for _, w := range res.Warnings {
		log.Warn(w.Error())
	}
	if !res.Valid {
		for _, e := range res.Errors {
			log.Error(e.Error())
		}
		log.Fatal("invalid configuration")
	}
	log.WithFields(log.Fields{"version": version.Version, "config": cm.Path()}).Info("starting cardgen")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	traceShutdown, err := tracing.Init(ctx, tracing.OptionsFromEnv())
	if err != nil {
		log.WithError(err).Warn("failed to initialize tracing")
	}
	if traceShutdown != nil {
		defer func() {
			if err := traceShutdown(context.Background()); err != nil {
				log.WithError(err).Warn("failed to shutdown tracing")
			}
		}()
	}

	docs, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil && cfg.Storage.Backend != "file" {
		log.WithError(err).WithField("backend", cfg.Storage.Backend).Warn("storage backend unavailable; falling back to file")
		docs, err = storage.NewFileDocumentStore(cfg.Storage.DataDir)
	}
	if err != nil {
		log.WithError(err).Fatal("failed to open document store")
	}
	defer func() {
		if err := docs.Close(); err != nil {
			log.WithError(err).Warn("failed to close document store")
		}
	}()

	hub := events.NewHub()
	cm.SetEventPublisher(hub)
	cm.OnChange(func(next *config.Config) {
		if err := logging.Setup(next.Logging); err != nil {
			log.WithError(err).Warn("failed to apply logging change")
		}
	})

	stream := logging.NewStream()
	stream.Start()
	defer stream.Stop()
	log.AddHook(logging.NewLogrusHook(stream, log.InfoLevel))
	unsubscribe := stream.ForwardEvents(hub, events.TopicConfigUpdated, events.Family("credentials"), events.Family("batch"))
	defer unsubscribe()

	app, err := buildApp(ctx, cfg, docs, hub)
	if err != nil {
		log.WithError(err).Fatal("failed to assemble services")
	}
	if err := app.tasks.StartPeriodic("tasks:prune", "drop finished task records", taskRetention, func(context.Context) error {
		app.tasks.Prune(time.Now().Add(-taskRetention))
		return nil
	}); err != nil {
		log.WithError(err).Warn("failed to schedule task pruning")
	}

	engine := srv.BuildEngine(cfg, srv.Dependencies{
		Credentials:  app.creds,
		Gateway:      app.gateway,
		Orchestrator: app.orch,
		Tasks:        app.tasks,
		Stream:       stream,
		Storage:      docs,
		Settings:     cm.Config,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("admin API listening on %s", cfg.Server.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("admin server stopped")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("admin server shutdown")
	}
	app.stop(shutdownCtx)
	log.Info("cardgen stopped")
}
