// Package server initializes and runs the file hosting server: it opens the
// metadata database, runs migrations, builds the configured blob backend,
// wires the services, and serves HTTP until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/dropserve/internal/logging"
	"github.com/dmitrijs2005/dropserve/internal/server/config"
	"github.com/dmitrijs2005/dropserve/internal/server/httpapi"
	"github.com/dmitrijs2005/dropserve/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/dropserve/internal/server/services"
	"github.com/dmitrijs2005/dropserve/internal/server/storage"
)

type App struct {
	config          *config.Config
	logger          logging.Logger
	db              *sql.DB
	uploadService   *services.UploadService
	accessService   *services.AccessService
	deletionService *services.DeletionService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	return &App{
		config:          cfg,
		logger:          logger,
		db:              db,
		uploadService:   services.NewUploadService(db, rm, blobs, logger),
		accessService:   services.NewAccessService(db, rm, blobs, logger),
		deletionService: services.NewDeletionService(db, rm, blobs, logger),
	}, nil
}

// newBlobStore builds the backend selected by config.StorageBackend.
func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendS3:
		return storage.NewS3Store(ctx, storage.S3Options{
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	case config.StorageBackendDir:
		return storage.NewDirStore(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
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

	handler := httpapi.NewHandler(
		app.uploadService,
		app.accessService,
		app.deletionService,
		app.db,
		app.config.SecretKey,
		app.logger,
	)

	s := httpapi.NewHTTPServer(app.config.EndpointAddr, handler.Routes(), app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

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
		app.logger.Error(ctx, "closing database failed", "error", err)
	}
}
