package main

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

	"github.com/damacus/iron-archivos/internal/config"
	customMiddleware "github.com/damacus/iron-archivos/internal/middleware"
	"github.com/damacus/iron-archivos/internal/services"
	"github.com/damacus/iron-archivos/internal/storageapi"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "iron-storage-api",
		Short:        "Object-storage REST API backed by MinIO",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				slog.Error("failed to load config", "error", err)
				return err
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Logging.SlogLevel()})
			slog.SetDefault(slog.New(handler))
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	return cmd
}

func credentials(cfg *config.Config) services.Credentials {
	return services.Credentials{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Region:    cfg.MinIO.Region,
		Secure:    cfg.MinIO.Secure,
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factory := &services.RealMinioFactory{}
	creds := credentials(cfg)
	client, err := factory.NewClient(creds)
	if err != nil {
		return fmt.Errorf("minio client: %w", err)
	}
	admin, err := factory.NewAdminClient(creds)
	if err != nil {
		// Quotas and the readiness probe need the admin API; files do not.
		slog.Warn("minio admin client unavailable", "error", err)
		admin = nil
	}

	e := newServer(cfg, client, admin)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("storage api listening", "addr", cfg.StorageAPIListenAddr(), "minio", cfg.MinIO.Endpoint)
		errCh <- e.StartServer(&http.Server{
			Addr:              cfg.StorageAPIListenAddr(),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown timed out", "timeout", cfg.ShutdownTimeout(), "error", err)
		return err
	}
	slog.Info("storage api stopped gracefully")
	return nil
}

func newServer(cfg *config.Config, client services.MinioClient, admin services.MinioAdminClient) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = storageapi.ErrorHandler

	e.Use(customMiddleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.StorageAPI.MaxUploadMB)))

	storageapi.NewHandler(client, admin, storageapi.Options{
		PresignTTL: cfg.PresignTTL(),
		QuotaBytes: cfg.MinIO.BucketQuotaBytes,
		Region:     cfg.MinIO.Region,
	}).Register(e)

	return e
}
