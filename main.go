package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, cfgErr := LoadConfig()
	logger, env, err := NewAppLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	if cfgErr != nil {
		logger.Fatal("invalid configuration", "error", cfgErr)
	}
	logger.Info("app environment", "env", env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	/* ======================
	   State
	   ====================== */

	metrics := NewMetrics()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open state backend", "backend", cfg.StateBackend, "error", err)
	}
	store, err := OpenStore(ctx, backend, logger, metrics, cfg.ResetOnCorrupt)
	if err != nil {
		backend.Close()
		if errors.Is(err, ErrStateCorruption) {
			logger.Fatal("snapshot is corrupt; fix it, run state-check --quarantine, or set STATE_RESET_ON_CORRUPT=true", "error", err)
		}
		logger.Fatal("failed to open state", "error", err)
	}
	defer store.Close()

	/* ======================
	   Discord
	   ====================== */

	discord, err := NewDiscordClient(DiscordConfig{
		Token:             cfg.DiscordToken,
		ApplicationID:     cfg.ApplicationID,
		RequestsPerSecond: cfg.DiscordRateLimit,
		Logger:            logger,
	})
	if err != nil {
		logger.Fatal("failed to build discord client", "error", err)
	}
	if cfg.SyncCommands {
		if err := discord.SyncCommands(ctx, cfg.GuildID, slashCommands()); err != nil {
			logger.Warn("slash command sync failed; existing registrations stay", "error", err)
		} else {
			logger.Info("slash commands synced", "guild_id", cfg.GuildID)
		}
	}

	bot := NewBot(BotConfig{
		Store:          store,
		Chat:           discord,
		Privileges:     NewPrivileges(cfg.OwnerID, cfg.AdminRoleIDs),
		TicketCategory: cfg.TicketCategory,
		Logger:         logger,
		Metrics:        metrics,
	})
	dispatcher, err := NewDispatcher(bot, discord, cfg.PublicKey, logger)
	if err != nil {
		logger.Fatal("failed to build interaction dispatcher", "error", err)
	}

	/* ======================
	   HTTP server
	   ====================== */

	mux := http.NewServeMux()
	registerRoutes(mux, dispatcher, registry)

	server := &http.Server{
		Addr:              cfg.listenAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Fatal("failed to listen", "addr", server.Addr, "error", err)
	}
	logger.Info("listening", "addr", listener.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Annotate(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		result := bot.ReconcilePanel(gctx, panelStatusOnline)
		logger.Info("panel status reconciled", "status", panelStatusOnline, "result", result)

		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		result = bot.ReconcilePanel(shutdownCtx, panelStatusOffline)
		logger.Info("panel status reconciled", "status", panelStatusOffline, "result", result)
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
	}
	dispatcher.Wait()
	logger.Info("stopped")
}
