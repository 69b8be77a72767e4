// Package server initializes and runs the application server: it opens the
// database, runs migrations, wires the services, and serves the HTTP API
// until the process is told to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/smorozov/vaultcore/internal/logging"
	"github.com/smorozov/vaultcore/internal/server/blobstore"
	"github.com/smorozov/vaultcore/internal/server/config"
	"github.com/smorozov/vaultcore/internal/server/httpapi"
	"github.com/smorozov/vaultcore/internal/server/repositories/repomanager"
	"github.com/smorozov/vaultcore/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	api    *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	blobs := blobstore.NewS3Store(blobstore.Options{
		Region:       cfg.S3Region,
		AccessKey:    cfg.S3AccessKey,
		AccessSecret: cfg.S3AccessSecret,
		BaseEndpoint: cfg.S3BaseEndpoint,
		Bucket:       cfg.S3Bucket,
	})

	auditSvc := services.NewAuditService(db, rm, logger)
	cascadeSvc := services.NewCascadeService(db, rm, auditSvc, logger)
	separatorSvc := services.NewSeparatorService(db, rm, auditSvc, logger)
	itemSvc := services.NewItemService(db, rm, blobs, auditSvc, logger, cfg.MaxUserStorageBytes, cfg.InlineFileLimitBytes)
	shareSvc := services.NewShareService(db, rm, auditSvc, logger)
	userSvc := services.NewUserService(db, rm, cascadeSvc, auditSvc, logger, []byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)

	api := httpapi.NewServer(userSvc, separatorSvc, itemSvc, cascadeSvc, shareSvc, auditSvc,
		logger, []byte(cfg.SecretKey), cfg.ShareBaseURL)

	return &App{config: cfg, logger: logger, db: db, api: api}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.api.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, err.Error())
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
