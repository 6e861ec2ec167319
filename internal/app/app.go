package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/clientvault/internal/adapters/events"
	"github.com/atvirokodosprendimai/clientvault/internal/adapters/gormdb"
	"github.com/atvirokodosprendimai/clientvault/internal/adapters/gormstore"
	"github.com/atvirokodosprendimai/clientvault/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/clientvault/internal/adapters/storage"
	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"github.com/atvirokodosprendimai/clientvault/internal/core/ports"
	"github.com/atvirokodosprendimai/clientvault/internal/core/usecase"
	"github.com/atvirokodosprendimai/clientvault/migrations"
)

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func openDB(cfg Config) (*gormdb.DB, error) {
	opts := gormdb.Options{Verbose: cfg.VerboseSQL}
	switch strings.ToLower(cfg.DBDriver) {
	case DriverPostgres:
		return gormdb.OpenPostgres(cfg.DBDSN, opts)
	default:
		return gormdb.OpenSQLite(cfg.DBPath, opts)
	}
}

func migrate(ctx context.Context, db *gormdb.DB) error {
	sqlDB, err := db.WriteSQLDB()
	if err != nil {
		return fmt.Errorf("resolve writer sql db: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return migrations.Up(ctx, sqlDB, db.Dialect)
}

// Migrate applies pending migrations and exits.
func Migrate(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	return migrate(ctx, db)
}

func NewServer(ctx context.Context, cfg Config, logger *slog.Logger) (*http.Server, io.Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	root, err := storage.NewPublicRoot(cfg.PublicRoot)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := root.EnsureLayout(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	clientRepo := gormstore.NewClientRepository(db)
	fileRepo := gormstore.NewIngestedFileRepository(db)
	auditRepo := gormstore.NewAuditRepository(db)
	outboxRepo := gormstore.NewOutboxRepository(db)

	clientService := usecase.NewClientService(clientRepo, storage.NewPhotoStore(root), usecase.NewPayloadValidator())
	ingestService := usecase.NewIngestService(clientRepo, fileRepo, storage.NewStager(root, cfg.MaxUploadBytes*storage.ExpansionFactor), logger)
	auditService := usecase.NewAuditService(auditRepo)
	accessService := usecase.NewLogAccessService(gormstore.NewAccessKeyRepository(db))

	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, newPublisher(cfg, logger), usecase.OutboxDispatcherConfig{
		Interval:  cfg.DispatchInterval,
		BatchSize: 100,
		Logger:    logger,
	})
	dispatcher.Start(context.WithoutCancel(ctx))

	if cfg.AdminAPIKey != "" {
		bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 5*time.Second)
		err := accessService.Provision(bootstrapCtx, domain.AdminAccessKey, cfg.AdminAPIKey)
		bootstrapCancel()
		if err != nil {
			_ = dispatcher.Close()
			_ = db.Close()
			return nil, nil, fmt.Errorf("bootstrap admin api key: %w", err)
		}
	}

	handler := httpapi.NewHandler(clientService, ingestService, auditService, accessService, httpapi.Options{
		PublicRoot:     root.Dir(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		AuditBodyCap:   cfg.AuditBodyCap,
		ProtectLogs:    cfg.AdminAPIKey != "",
		Ping:           db.Ping,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("server configured",
		"addr", cfg.Addr,
		"db_driver", db.Dialect,
		"public_root", root.Dir(),
		"logs_protected", cfg.AdminAPIKey != "",
		"webhook", cfg.WebhookURL != "",
	)
	return server, resourceCloser{closers: []io.Closer{dispatcher, db}}, nil
}

func newPublisher(cfg Config, logger *slog.Logger) ports.EventPublisher {
	if cfg.WebhookURL != "" {
		return events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, 0)
	}
	return events.NewLogPublisher(logger)
}
