package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aditi-updates/session-agent/internal/api"
	"github.com/aditi-updates/session-agent/internal/core/ports"
	"github.com/aditi-updates/session-agent/internal/core/service"
	"github.com/aditi-updates/session-agent/internal/infrastructure/authgw"
	"github.com/aditi-updates/session-agent/internal/infrastructure/config"
	mongodb "github.com/aditi-updates/session-agent/internal/infrastructure/db/mongo"
	"github.com/aditi-updates/session-agent/internal/infrastructure/queue"
	"github.com/aditi-updates/session-agent/internal/infrastructure/storage"
	"github.com/aditi-updates/session-agent/internal/infrastructure/storage/memory"
	redisstore "github.com/aditi-updates/session-agent/internal/infrastructure/storage/redis"
	"github.com/aditi-updates/session-agent/internal/infrastructure/transport"
	"github.com/aditi-updates/session-agent/pkg/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	// --- Storage tiers ---
	rdb, err := redisstore.Connect(ctx, redisstore.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer rdb.Close()

	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer mongoClient.Disconnect(context.Background())

	sharedKV := redisstore.NewKV(rdb)
	tabKV := memory.NewKV()

	var sealer *storage.Sealer
	if cfg.Backend.SealKey != "" {
		sealer, err = storage.NewSealer(cfg.Backend.SealKey)
		if err != nil {
			return err
		}
	} else {
		log.Warn().Msg("no seal key configured, session material stored in the clear")
	}

	// --- Platform gateway and the guarded transport choke point ---
	gw := authgw.New(authgw.Config{
		BaseURL:               cfg.Backend.URL,
		AnonKey:               cfg.Backend.AnonKey,
		SessionKey:            cfg.Backend.SessionKey,
		SignOutOnRetryFailure: cfg.Backend.SignOutOnRetryFailure,
	}, sharedKV, sealer, log)

	backendURL, err := url.Parse(cfg.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend url: %w", err)
	}
	guarded := transport.NewGuarded(http.DefaultTransport, gw, sharedKV, sealer, transport.Options{
		BackendHosts: []string{backendURL.Host},
		KeyPrefixes:  cfg.Backend.KeyPrefixes,
	}, log)
	gw.SetQueryClient(&http.Client{Transport: guarded, Timeout: 30 * time.Second})

	// --- Core services ---
	store := service.NewTabStateStore(sharedKV, tabKV, log)
	guard := service.NewVisibilityGuard(cfg.Windows.Returning)
	identity := service.NewIdentityService(mongodb.NewIdentityCache(db), gw, guard,
		cfg.Windows.Freshness, cfg.Windows.LoadBound, log)
	gw.Subscribe(identity.OnAuthChange)

	reconciler := service.NewReconciler(store, guard, identity, service.NewRouteAnnouncer(store), log)

	dispatcher := queue.NewDispatcher(0, reconciler, log)
	dispatcher.Start(ctx)

	// Initial snapshot so a fresh tab is visible in shared storage at once.
	if err := store.Save(ctx, ports.SaveInput{}); err != nil {
		log.Warn().Err(err).Msg("initial snapshot not persisted")
	}

	// --- HTTP surface ---
	e := api.NewRouter(api.Deps{
		Dispatcher: dispatcher,
		Store:      store,
		Guard:      guard,
		Identity:   identity,
		Reconciler: reconciler,
		Loading:    identity.Loading,
		Mongo:      db,
		Redis:      rdb,
		AgentToken: cfg.AgentToken,
		Log:        log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(":" + cfg.Port)
	}()
	log.Info().Str("port", cfg.Port).Str("tab_id", store.ID()).Msg("session agent listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("shutting down")
	return e.Shutdown(shutdownCtx)
}
