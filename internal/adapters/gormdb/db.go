package gormdb

import (
	"context"
	"database/sql"
	"io"
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// DB holds separate reader and writer handles. For SQLite the writer pool is
// limited to one connection; for Postgres both point at the same pool.
type DB struct {
	R       *gorm.DB
	W       *gorm.DB
	Dialect string
}

type Tx struct {
	*gorm.DB
}

type cbfn func(tx *Tx) error

type Options struct {
	// Verbose raises gorm's logger from silent to warnings and slow queries.
	Verbose bool
}

func (db *DB) ReadTX(ctx context.Context, fn cbfn) error {
	return db.R.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Tx{DB: tx})
	}, &sql.TxOptions{ReadOnly: true})
}

func (db *DB) WriteTX(ctx context.Context, fn cbfn) error {
	return db.W.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Tx{DB: tx})
	})
}

func (db *DB) WriteSQLDB() (*sql.DB, error) {
	return db.W.DB()
}

func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.R.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (db *DB) Close() error {
	var firstErr error
	closeOne := func(g *gorm.DB) {
		if g == nil {
			return
		}
		if err := closeGORM(g); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	closeOne(db.R)
	if db.W != db.R {
		closeOne(db.W)
	}
	return firstErr
}

var _ io.Closer = (*DB)(nil)

func newLogger(opts Options) logger.Interface {
	level := logger.Silent
	if opts.Verbose {
		level = logger.Warn
	}
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)
}

func closeGORM(g *gorm.DB) error {
	if g == nil {
		return nil
	}
	sqlDB, err := g.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
