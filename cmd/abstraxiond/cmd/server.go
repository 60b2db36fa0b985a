package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/burnt-labs/abstraxion-backend/api"
	"github.com/burnt-labs/abstraxion-backend/backend"
	"github.com/burnt-labs/abstraxion-backend/internal/config"
	"github.com/burnt-labs/abstraxion-backend/statestore"
	"github.com/burnt-labs/abstraxion-backend/storage"
	bboltstorage "github.com/burnt-labs/abstraxion-backend/storage/bbolt"
	memorystorage "github.com/burnt-labs/abstraxion-backend/storage/memory"
)

var useMemoryStorage bool

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the authorization backend server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		var adapter storage.Adapter
		if useMemoryStorage {
			adapter = memorystorage.NewAdapter()
		} else {
			if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			adapter, err = bboltstorage.NewAdapterFromFile(cfg.DataDir+"/sessions.db", nil)
			if err != nil {
				return fmt.Errorf("failed to open session storage: %w", err)
			}
		}

		var states statestore.Store
		if cfg.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			states = statestore.NewRedisStore(client)
		}

		b, err := backend.New(backend.Config{
			EncryptionKey:    cfg.EncryptionKey,
			Adapter:          adapter,
			RedirectURL:      cfg.RedirectURL,
			RPCURL:           cfg.RPCURL,
			Treasury:         cfg.Treasury,
			DashboardURL:     cfg.DashboardURL,
			SessionKeyExpiry: cfg.SessionKeyExpiry,
			RefreshThreshold: cfg.RefreshThreshold,
			StateTTL:         cfg.StateTTL,
			AuditDisabled:    !cfg.AuditEnabled,
			StateStore:       states,
			Logger:           logger,
		})
		if err != nil {
			return err
		}
		defer b.Close()

		a := api.New(b, api.WithLogger(logger))

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			if !b.HealthCheck(req.Context()) {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("OK"))
		})
		r.Mount("/api/v1", a.Router())

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	serverCmd.Flags().BoolVar(&useMemoryStorage, "memory", false, "use in-memory storage (records lost on exit)")
	rootCmd.AddCommand(serverCmd)
}
