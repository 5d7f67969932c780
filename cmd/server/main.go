package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crmdash-go/internal/config"
	"crmdash-go/internal/constants"
	"crmdash-go/internal/crawler"
	"crmdash-go/internal/credential"
	"crmdash-go/internal/events"
	"crmdash-go/internal/logging"
	tracing "crmdash-go/internal/monitoring/tracing"
	"crmdash-go/internal/oauth"
	appruntime "crmdash-go/internal/runtime"
	srv "crmdash-go/internal/server"
	"crmdash-go/internal/stages"
	"crmdash-go/internal/upstream"
	"crmdash-go/internal/version"
	"crmdash-go/internal/webhook"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	port := flag.String("port", "", "Listen port (overrides config and PORT)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Server.Debug = true
	}
	if err := logging.Setup(cfg); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}

	result := cfg.Validate()
	for _, w := range result.Warnings {
		log.WithField("field", w.Field).Warn(w.Message)
	}
	if !result.Valid {
		for _, e := range result.Errors {
			log.WithField("field", e.Field).Error(e.Error())
		}
		log.Fatal("invalid configuration")
	}

	traceShutdown, err := tracing.Init(context.Background())
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

	log.WithFields(log.Fields{
		"config":   *configPath,
		"version":  version.Version,
		"provider": cfg.Provider.Name,
	}).Info("starting crmdash")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := buildStorageBackend(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("credential storage unavailable; credentials will not survive restarts")
		backend = nil
	}
	defer func() {
		if backend != nil {
			_ = backend.Close()
		}
	}()

	store := newCredentialStore(ctx, backend)
	client := oauth.NewClient(oauth.OptionsFromConfig(cfg.Provider), store)
	proxy := upstream.NewProxy(upstream.OptionsFromConfig(cfg.Provider), store, credential.NewRefreshCoordinator(store), client)
	classifier := stages.FromConfig(cfg.Stages)
	broadcaster := events.NewBroadcaster()
	ingestor := webhook.NewIngestor(classifier, broadcaster)

	engine := srv.BuildEngine(cfg, srv.Dependencies{
		Store:       store,
		OAuth:       client,
		Proxy:       proxy,
		Crawler:     crawler.New(cfg.Crawl.PageSize, cfg.Crawl.MaxPages),
		Classifier:  classifier,
		Ingestor:    ingestor,
		Broadcaster: broadcaster,
		Storage:     backend,
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: constants.ReadHeaderTimeout,
	}

	workers := appruntime.NewSupervisor(ctx)
	serveErr := make(chan error, 1)
	_ = workers.Go("http-server", func(context.Context) error {
		log.Infof("listening on :%s", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return err
		}
		return nil
	})
	_ = workers.Go("config-watcher", func(ctx context.Context) error {
		watchStages(ctx, *configPath, classifier)
		<-ctx.Done()
		return ctx.Err()
	})
	_ = workers.Every("credential-ttl", constants.CredentialTTLReportInterval, func(context.Context) error {
		reportCredentialTTL(store, time.Now())
		return nil
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutdown signal received")
	case err := <-serveErr:
		log.WithError(err).Error("http server stopped")
	}

	// Live streams never end on their own; close them before Shutdown.
	broadcaster.Close()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown incomplete")
	}
	if err := workers.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("background workers did not stop in time")
	}
	log.Info("server stopped")
}
