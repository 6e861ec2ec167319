package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/clientvault/internal/app"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	defaults := app.DefaultConfig()
	cmd := &cli.Command{
		Name:  "clientvault",
		Usage: "Client records, bulk archive ingestion and HTTP audit trail",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Sources: cli.EnvVars("CLIENTVAULT_CONFIG"),
				Usage:   "Optional YAML config file; explicitly set flags override it",
			},
			&cli.StringFlag{
				Name:    "addr",
				Value:   defaults.Addr,
				Sources: cli.EnvVars("CLIENTVAULT_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "db-driver",
				Value:   defaults.DBDriver,
				Sources: cli.EnvVars("CLIENTVAULT_DB_DRIVER"),
				Usage:   "Database driver: sqlite or postgres",
			},
			&cli.StringFlag{
				Name:    "db-path",
				Value:   defaults.DBPath,
				Sources: cli.EnvVars("CLIENTVAULT_DB_PATH"),
				Usage:   "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "db-dsn",
				Sources: cli.EnvVars("CLIENTVAULT_DB_DSN"),
				Usage:   "Postgres connection string",
			},
			&cli.StringFlag{
				Name:    "public-root",
				Value:   defaults.PublicRoot,
				Sources: cli.EnvVars("CLIENTVAULT_PUBLIC_ROOT"),
				Usage:   "Directory whose uploads/ tree is served under /uploads",
			},
			&cli.Int64Flag{
				Name:    "max-upload-bytes",
				Value:   defaults.MaxUploadBytes,
				Sources: cli.EnvVars("CLIENTVAULT_MAX_UPLOAD_BYTES"),
				Usage:   "Maximum multipart request size",
			},
			&cli.IntFlag{
				Name:    "audit-body-cap",
				Value:   defaults.AuditBodyCap,
				Sources: cli.EnvVars("CLIENTVAULT_AUDIT_BODY_CAP"),
				Usage:   "Bytes of each request/response body kept in the audit trail",
			},
			&cli.StringFlag{
				Name:    "admin-api-key",
				Sources: cli.EnvVars("CLIENTVAULT_ADMIN_API_KEY"),
				Usage:   "When set, /api/logs requires this key (X-API-Key or Bearer)",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("CLIENTVAULT_WEBHOOK_URL"),
				Usage:   "Outbox event webhook target URL",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("CLIENTVAULT_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("CLIENTVAULT_LOG_LEVEL"),
				Usage:   "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Sources: cli.EnvVars("CLIENTVAULT_LOG_FORMAT"),
				Usage:   "text or json",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server (default)",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit",
				Action: migrate,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, c *cli.Command) error {
	logger, err := newLogger(c.String("log-level"), c.String("log-format"))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if strings.EqualFold(c.String("log-level"), "debug") {
		cfg.VerboseSQL = true
	}

	server, closer, err := app.NewServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			logger.Error("close resources", "error", closeErr)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func migrate(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	target := cfg.DBPath
	if strings.EqualFold(cfg.DBDriver, app.DriverPostgres) {
		target = "postgres"
	}
	color.New(color.FgYellow).Fprintf(os.Stdout, "applying migrations to %s\n", target)
	if err := app.Migrate(ctx, cfg); err != nil {
		return err
	}
	color.New(color.FgGreen, color.Bold).Fprintln(os.Stdout, "migrations up to date")
	return nil
}

// loadConfig layers defaults, the optional YAML file and explicitly set flags.
func loadConfig(c *cli.Command) (app.Config, error) {
	cfg := app.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := app.LoadConfigFile(path, cfg)
		if err != nil {
			return app.Config{}, err
		}
		cfg = loaded
	}

	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}
	if c.IsSet("db-driver") {
		cfg.DBDriver = c.String("db-driver")
	}
	if c.IsSet("db-path") {
		cfg.DBPath = c.String("db-path")
	}
	if c.IsSet("db-dsn") {
		cfg.DBDSN = c.String("db-dsn")
	}
	if c.IsSet("public-root") {
		cfg.PublicRoot = c.String("public-root")
	}
	if c.IsSet("max-upload-bytes") {
		cfg.MaxUploadBytes = c.Int64("max-upload-bytes")
	}
	if c.IsSet("audit-body-cap") {
		cfg.AuditBodyCap = c.Int("audit-body-cap")
	}
	if c.IsSet("admin-api-key") {
		cfg.AdminAPIKey = c.String("admin-api-key")
	}
	if c.IsSet("webhook-url") {
		cfg.WebhookURL = c.String("webhook-url")
	}
	if c.IsSet("webhook-secret") {
		cfg.WebhookSecret = c.String("webhook-secret")
	}
	return cfg, cfg.Validate()
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
