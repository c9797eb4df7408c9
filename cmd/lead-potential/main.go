// Package main runs the lead potential HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/cache"
	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/config"
	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/fetcher"
	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/graphql"
	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/metrics"
	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/scoring"
	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/server"
)

// Server timeouts. Writes must outlast a cold refresh.
const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = cache.DefaultRefreshTimeout + 30*time.Second
	serverIdleTimeout  = 60 * time.Second
	shutdownTimeout    = 15 * time.Second
)

var (
	envFile   = flag.String("env-file", ".env", "Path to a .env file (ignored if missing)")
	port      = flag.Int("port", 0, "Listen port (overrides PORT)")
	verbose   = flag.Bool("v", false, "Verbose output with debug logging")
	logFormat = flag.String("log-format", "text", "Log format: text or json")
	warm      = flag.Bool("warm", false, "Fetch leads at startup instead of on the first request")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Serves solar service-lead scores computed from the monitoring API.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  %s, %s/%s or %s, %s\n",
			config.EnvAPIURL, config.EnvAuthHeaderName, config.EnvAuthHeaderValue, config.EnvAuthFile, config.EnvServersFile)
	}
	flag.Parse()

	slog.SetDefault(newLogger(*logFormat, *verbose))

	if err := run(); err != nil {
		slog.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run() error {
	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Port = *port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	m := metrics.New()
	client, err := graphql.New(graphql.Config{
		HTTPClient:  m.InstrumentDoer(&http.Client{Timeout: cfg.HTTPTimeout}),
		Endpoint:    cfg.APIURL,
		HeaderName:  cfg.AuthHeaderName,
		HeaderValue: cfg.AuthHeaderValue,
	})
	if err != nil {
		return fmt.Errorf("create graphql client: %w", err)
	}

	src := fetcher.New(client, fetcher.Config{
		MaxRecords:    cfg.MaxRecords,
		RetryAttempts: cfg.RetryAttempts,
	})
	leads := cache.New(src, scoring.New(cfg.EmailDomain), cache.Config{
		TTL:      cfg.CacheTTL,
		Observer: m,
	})
	srv := server.New(server.Config{
		Store:       leads,
		Metrics:     m,
		CORSOrigins: cfg.CORSOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *warm {
		go func() {
			if _, err := leads.Get(ctx, false); err != nil {
				slog.WarnContext(ctx, "Startup refresh failed", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadTimeout:       serverReadTimeout,
		ReadHeaderTimeout: serverReadTimeout,
		WriteTimeout:      serverWriteTimeout,
		IdleTimeout:       serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting lead service", "addr", httpServer.Addr, "upstream", client.Endpoint(),
			"cache_ttl", cfg.CacheTTL, "max_records", cfg.MaxRecords)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
