package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/nonceguard/digestauthd/core/hashengine"
	"github.com/nonceguard/digestauthd/core/noncetable"
	"github.com/nonceguard/digestauthd/internal/config"
	"github.com/nonceguard/digestauthd/internal/credstore"
	"github.com/nonceguard/digestauthd/internal/httpdigest"
	"github.com/nonceguard/digestauthd/internal/logging"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the digest authentication gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "digestauthd.yaml", "path to the configuration file")
	return cmd
}

func runServe(configPath string) error {
	mgr := config.NewManager()
	cfg, err := mgr.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLoggerFromConfig(logging.LoggerConfig{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("configuring logger: %w", err)
	}
	if closer, ok := logger.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	store, err := openStore(cfg.Credentials)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	defer store.Close()

	algo, ok := hashengine.ParseAlgorithm(cfg.Digest.Algorithm)
	if !ok {
		return fmt.Errorf("unsupported digest algorithm %q", cfg.Digest.Algorithm)
	}

	seed, err := randomSeed(cfg.Digest.RandomSeedSize)
	if err != nil {
		return fmt.Errorf("generating random seed: %w", err)
	}

	table := noncetable.New(cfg.Digest.NonceTableSize)

	authMW := &httpdigest.Middleware{
		Realm:           cfg.Digest.Realm,
		Algorithm:       algo,
		NonceTimeoutSec: cfg.Digest.NonceTimeoutSeconds,
		Seed:            seed,
		Table:           table,
		Resolver:        httpdigest.NewCredentialResolver(store),
		Logger:          logger,
		NowMS:           nowMS,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(chiLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(authMW.Wrap)
	router.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		username, _ := httpdigest.Username(r)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "authenticated as %s\n", username)
	})

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: router,
	}

	logger.Info("starting digestauthd", logging.AddressField("listen_addr", cfg.Server.ListenAddr), logging.RealmField(cfg.Digest.Realm))

	stopSweep := make(chan struct{})
	defer close(stopSweep)
	go sweepNonceTable(table, logger, stopSweep)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", logging.StringField("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func openStore(cfg struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}) (credstore.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return credstore.NewSQLiteStore(cfg.DSN)
	case "memory":
		return credstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown credentials driver %q", cfg.Driver)
	}
}

// sweepNonceTable periodically logs nonce table occupancy at DEBUG level
// so an operator can watch for a table sized too small for its load
// without the verification path itself paying any observability cost.
func sweepNonceTable(table *noncetable.Table, logger logging.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			used, capacity, oldestAgeMS := table.Sweep(nowMS())
			logger.Debug("nonce table sweep",
				logging.OccupancyField(used, capacity),
				logging.DurationField("oldest_age", time.Duration(oldestAgeMS)*time.Millisecond),
			)
		case <-stop:
			return
		}
	}
}

// chiLogger adapts a structured logger into chi's request-logging
// middleware hook so every request is logged once, the way the
// teacher's HTTP entry points do.
func chiLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request handled",
				logging.StringField("method", r.Method),
				logging.StringField("path", r.URL.Path),
				logging.StatusField(fmt.Sprintf("%d", ww.Status())),
				logging.DurationField("elapsed", time.Since(start)),
			)
		})
	}
}
