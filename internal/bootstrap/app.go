package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"clientdocs-backend/internal/authz"
	"clientdocs-backend/internal/documents"
	"clientdocs-backend/internal/enrichment"
	"clientdocs-backend/internal/extraction"
	localextract "clientdocs-backend/internal/extraction/local"
	"clientdocs-backend/internal/queue"
	"clientdocs-backend/internal/scanner"
	"clientdocs-backend/internal/scanner/clamd"
	"clientdocs-backend/internal/shared/config"
	"clientdocs-backend/internal/shared/resilience"
	"clientdocs-backend/internal/shared/server"
	"clientdocs-backend/internal/shared/storage/db"
	"clientdocs-backend/internal/shared/storage/object"
	localstore "clientdocs-backend/internal/shared/storage/object/local"
	s3store "clientdocs-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.BlobStore
	Queue  queue.Client

	DocumentsRepo     documents.Repo
	DocumentsService  *documents.Service
	EnrichmentService *enrichment.Service
	DocumentsHandler  *documents.Handler
}

// Build prepares shared dependencies and wires routes.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}

	if err := buildServices(ctx, app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:           app.Config,
		DocumentsHandler: app.DocumentsHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.BlobStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildScanner(cfg config.Config, store object.BlobStore) (scanner.Scanner, error) {
	if strings.TrimSpace(cfg.ClamdAddr) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: CLAMD_ADDR empty; all uploads treated as clean")
			return scanner.Passthrough{}, nil
		}
		return nil, fmt.Errorf("CLAMD_ADDR is required")
	}
	return clamd.New(cfg.ClamdAddr, store)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(ctx context.Context, app *App) error {
	var docRepo documents.Repo
	if app.DB != nil {
		docRepo = &documents.PGRepo{DB: app.DB}
	} else {
		docRepo = documents.NewMemoryRepo()
	}

	scan, err := buildScanner(app.Config, app.Store)
	if err != nil {
		return err
	}

	var engine extraction.Engine = localextract.New()

	enrichSvc := &enrichment.Service{
		Repo:        docRepo,
		Store:       app.Store,
		Scanner:     scan,
		Engine:      engine,
		ScanExec:    resilience.NewExecutor(app.Config.ScanTimeout),
		ExtractExec: resilience.NewExecutor(app.Config.ExtractionTimeout),
	}

	queueClient, err := buildQueue(ctx, app.Config, enrichSvc)
	if err != nil {
		return err
	}
	app.Queue = queueClient

	docSvc := &documents.Service{
		Repo:               docRepo,
		Store:              app.Store,
		Queue:              queueClient,
		Authz:              authz.NewMemberAuthorizer(),
		AutoClassify:       app.Config.AutoClassifyEnabled,
		ExtractionEnabled:  app.Config.ExtractionEnabled,
		DownloadTTL:        app.Config.DownloadURLTTL,
		QuarantineInfected: app.Config.QuarantineOnInfected,
	}

	app.DocumentsRepo = docRepo
	app.DocumentsService = docSvc
	app.EnrichmentService = enrichSvc
	app.DocumentsHandler = documents.NewHandler(docSvc)

	if app.DocumentsHandler == nil {
		return errors.New("failed to initialize handlers")
	}
	return nil
}

// buildQueue prefers SQS when configured; otherwise stage work runs on
// an in-process dispatcher so a single binary still enriches uploads.
func buildQueue(ctx context.Context, cfg config.Config, enrichSvc *enrichment.Service) (queue.Client, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) != "" {
		return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
	}
	return queue.NewLocalDispatcher(enrichSvc.Process)
}
