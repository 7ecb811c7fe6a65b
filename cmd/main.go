package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"url-status-report/internal/checker"
	"url-status-report/internal/config"
	"url-status-report/internal/report"
	"url-status-report/internal/store"
	"url-status-report/internal/web"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to the YAML config file")
		addr       = flag.String("addr", "", "Listen address, overrides server.addr")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	level, _ := cfg.LogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	chk := checker.New(logger.With(slog.String("component", "checker")), checker.Options{
		Timeout:       cfg.Checker.Timeout,
		Workers:       cfg.Checker.Workers,
		UserAgent:     cfg.Checker.UserAgent,
		DefaultScheme: cfg.Checker.DefaultScheme,
	})
	builder := report.NewBuilder(logger.With(slog.String("component", "report")), chk)

	srv, err := web.New(logger.With(slog.String("component", "web")), chk, builder, st, web.Options{
		CookieName:     cfg.Session.CookieName,
		SessionTTL:     cfg.Session.TTL,
		AppendChecks:   cfg.Results.SingleCheckMode == config.ModeAppend,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		CheckTimeout:   cfg.Checker.Timeout,
	})
	if err != nil {
		return err
	}

	go sweepSessions(ctx, logger, st, cfg.Session.TTL, cfg.Session.SweepInterval)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting...",
			slog.String("addr", cfg.Server.Addr),
			slog.String("store", cfg.Store.Driver),
			slog.String("single_check_mode", cfg.Results.SingleCheckMode),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down", slog.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// sweepSessions drops sessions idle for longer than ttl until ctx is done.
func sweepSessions(ctx context.Context, logger *slog.Logger, st store.Store, ttl, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := st.Sweep(ctx, time.Now().Add(-ttl))
			if err != nil {
				logger.WarnContext(ctx, "Session sweep failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.InfoContext(ctx, "Expired sessions removed", slog.Int("sessions", removed))
			}
		}
	}
}
