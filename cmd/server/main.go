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
	"github.com/damacus/iron-archivos/internal/handlers"
	customMiddleware "github.com/damacus/iron-archivos/internal/middleware"
	"github.com/damacus/iron-archivos/internal/records"
	"github.com/damacus/iron-archivos/internal/renderer"
	"github.com/damacus/iron-archivos/internal/services"
	"github.com/damacus/iron-archivos/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
)

const sweepInterval = time.Minute

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "iron-archivos",
		Short:        "Web file browser for process archives",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				slog.Error("failed to load config", "error", err)
				return err
			}
			setupLogging(cfg.Logging)
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	return cmd
}

func setupLogging(cfg config.LoggingConfig) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(handler))
}

// dependencies are the long-lived services the routes are built on
type dependencies struct {
	Store      *records.Store
	Storage    storage.Client
	Sessions   *services.SessionService
	Workspaces *services.Workspaces
	Renderer   echo.Renderer
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := records.NewStore(cfg.Records.DBPath)
	if err != nil {
		return fmt.Errorf("open records: %w", err)
	}
	defer func() { _ = store.Close() }()

	if cfg.Session.Key == "" {
		slog.Warn("session.key not set, sessions will not survive a restart")
	}
	sessions, err := services.NewSessionService(cfg.Session.Key)
	if err != nil {
		return fmt.Errorf("session key: %w", err)
	}

	tmpl, err := renderer.New(cfg.Server.ViewsDir)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	client := storage.NewHTTPClient(cfg.StorageAPI.URL, cfg.StorageAPITimeout())
	workspaces := services.NewWorkspaces(client, cfg.Browser.UploadConcurrency, cfg.SessionIdleTimeout())
	go workspaces.Run(ctx, sweepInterval)

	e := newServer(cfg, dependencies{
		Store:      store,
		Storage:    client,
		Sessions:   sessions,
		Workspaces: workspaces,
		Renderer:   tmpl,
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server listening", "addr", cfg.ListenAddr(), "storage_api", cfg.StorageAPI.URL)
		errCh <- e.StartServer(&http.Server{
			Addr:              cfg.ListenAddr(),
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
	slog.Info("server stopped gracefully")
	return nil
}

func newServer(cfg *config.Config, deps dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Services
	provisioner := services.NewProvisioner(deps.Store, deps.Storage)
	processesHandler := handlers.NewProcessesHandler(deps.Store, provisioner, deps.Workspaces)
	archivosHandler := handlers.NewArchivosHandler(deps.Store, deps.Workspaces)

	// Middleware
	e.Use(customMiddleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.StorageAPI.MaxUploadMB)))
	e.Use(customMiddleware.SecurityHeaders(cfg.Server.PreviewOrigins...))
	e.Use(customMiddleware.CSRF())
	e.Use(customMiddleware.SessionMiddleware(deps.Sessions, cfg.Session.SecureCookie))

	// Template Renderer
	e.Renderer = deps.Renderer

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusSeeOther, "/procesos")
	})

	// Processes
	e.GET("/procesos", processesHandler.ListProcesses)
	e.GET("/procesos/create", processesHandler.CreateProcessModal)
	e.POST("/procesos/create", processesHandler.CreateProcess)
	e.GET("/procesos/:id/edit", processesHandler.EditProcessModal)
	e.POST("/procesos/:id/edit", processesHandler.UpdateProcess)
	e.POST("/procesos/:id/delete", processesHandler.DeleteProcess)

	// File browser
	e.GET("/procesos/:id/archivos", archivosHandler.Browse)
	e.POST("/procesos/:id/archivos/open", archivosHandler.Open)
	e.GET("/procesos/:id/archivos/folder/create", archivosHandler.CreateFolderModal)
	e.POST("/procesos/:id/archivos/folder", archivosHandler.CreateFolder)
	e.POST("/procesos/:id/archivos/upload", archivosHandler.Upload)
	e.POST("/procesos/:id/archivos/delete", archivosHandler.Delete)
	e.POST("/procesos/:id/archivos/download", archivosHandler.Download)
	e.GET("/procesos/:id/archivos/preview", archivosHandler.Preview)

	return e
}
