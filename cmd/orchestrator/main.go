package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/biomonitor-labs/biomonitor-go/internal/platform/auth"
	"github.com/biomonitor-labs/biomonitor-go/internal/platform/env"
	"github.com/biomonitor-labs/biomonitor-go/internal/platform/httpserver"
	"github.com/biomonitor-labs/biomonitor-go/internal/platform/objectstore"
	"github.com/biomonitor-labs/biomonitor-go/internal/platform/postgres"
	repopg "github.com/biomonitor-labs/biomonitor-go/internal/repo/postgres"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/artifacts"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/publish"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/qagate"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/runs"
	"github.com/biomonitor-labs/biomonitor-go/internal/service/scheduler"
	store "github.com/biomonitor-labs/biomonitor-go/internal/storage/objectstore"
)

const serviceName = "orchestrator"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("BIOMON_HTTP_ADDR", ":8084")
	shutdownTimeout, err := env.Duration("BIOMON_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	schedulerEnabled, err := env.Bool("BIOMON_SCHEDULER_ENABLED", true)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	schedulerInterval, err := env.Duration("BIOMON_SCHEDULER_INTERVAL", time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	schedulerBatchLimit, err := env.Int("BIOMON_SCHEDULER_BATCH_LIMIT", 25)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	publishPrefix := env.String("BIOMON_PUBLISH_PREFIX", "public")

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	objects, err := store.NewMinioStoreWithClient(storeClient)
	if err != nil {
		logger.Error("object store wrapper init failed", "error", err)
		os.Exit(2)
	}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	var authenticator auth.Authenticator
	switch authCfg.Mode {
	case auth.ModeOIDC:
		authenticator, err = auth.NewOIDCAuthenticator(ctx, authCfg)
		if err != nil {
			logger.Error("oidc authenticator init failed", "error", err)
			os.Exit(1)
		}
	case auth.ModeDev:
		authenticator = auth.NewDevAuthenticator(authCfg)
	case auth.ModeDisabled:
		authenticator = nil
	}

	programmes := repopg.NewProgrammeStore(db)
	runStore := repopg.NewRunStore(db)
	steps := repopg.NewStepStore(db)
	qaResults := repopg.NewQAResultStore(db)
	artefacts := repopg.NewArtefactStore(db)
	alerts := repopg.NewAlertStore(db)
	audit := repopg.NewAuditAppender(db)
	lineage := repopg.NewLineageAppender(db)

	writer, err := artifacts.NewService(artefacts, objects, storeCfg.BucketArtefacts)
	if err != nil {
		logger.Error("artefact writer init failed", "error", err)
		os.Exit(2)
	}
	gate, err := qagate.NewGate(qaResults, alerts)
	if err != nil {
		logger.Error("qa gate init failed", "error", err)
		os.Exit(2)
	}
	publisher, err := publish.NewCatalogPublisher(artefacts, objects, storeCfg.BucketArtefacts, publishPrefix)
	if err != nil {
		logger.Error("catalog publisher init failed", "error", err)
		os.Exit(2)
	}

	registry := runs.DefaultRegistry(runs.BehaviorDeps{
		Artifacts: writer,
		Gate:      gate,
		Publisher: publisher,
	})
	runService, err := runs.NewService(runs.Deps{
		Programmes: programmes,
		Runs:       runStore,
		Steps:      steps,
		QAResults:  qaResults,
		Artefacts:  artefacts,
		Alerts:     alerts,
		Writer:     writer,
		Registry:   registry,
		Audit:      audit,
		Lineage:    lineage,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("run service init failed", "error", err)
		os.Exit(2)
	}
	sched, err := scheduler.New(programmes, runService, logger, schedulerBatchLimit)
	if err != nil {
		logger.Error("scheduler init failed", "error", err)
		os.Exit(2)
	}
	if schedulerEnabled {
		sched.Start(ctx, schedulerInterval)
		logger.Info("scheduler started", "interval", schedulerInterval.String(), "batch_limit", schedulerBatchLimit)
	}

	readyz := httpserver.ReadyzWithChecks(
		serviceName,
		httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return db.PingContext(checkCtx)
			},
		},
		httpserver.ReadinessCheck{
			Name: "minio",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				exists, err := storeClient.BucketExists(checkCtx, storeCfg.BucketArtefacts)
				if err != nil {
					return err
				}
				if !exists {
					return errors.New("artefacts bucket missing")
				}
				return nil
			},
		},
	)

	handlers := &api{
		programmes: programmes,
		runs:       runService,
		alerts:     alerts,
		artefacts:  artefacts,
		qaResults:  qaResults,
		scheduler:  sched,
	}
	router := handlers.routes(authenticator, authCfg.Mode, readyz, serviceName)

	cfg := httpserver.Config{
		Service:         serviceName,
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, serviceName, router)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
