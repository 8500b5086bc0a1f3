package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database described by params
func Open(params *Params, opts Options) (*Manager, error) {
	if params == nil {
		return nil, fmt.Errorf("params cannot be nil")
	}
	if opts.Conn == nil {
		if err := params.Validate(); err != nil {
			return nil, err
		}
	}

	dialector, err := Dialector(params, opts.Conn)
	if err != nil {
		return nil, err
	}

	gormLogger := opts.Logger
	if gormLogger == nil {
		gormLogger = NewLogger("error")
	}
	gormConfig := &gorm.Config{
		SkipDefaultTransaction:                   opts.SkipDefaultTransaction,
		DisableForeignKeyConstraintWhenMigrating: opts.DisableForeignKeyConstraintWhenMigrating,
		PrepareStmt:                              opts.PrepareStmt,
		Logger:                                   gormLogger,
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// pool settings belong to whoever created the pool
	if opts.Conn == nil {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
		}
		if params.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(params.MaxOpenConns)
		}
		if params.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(params.MaxIdleConns)
		}
		if params.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(params.ConnMaxLifetime)
		}
	}

	return &Manager{
		params: params,
		db:     db,
		owned:  opts.Conn == nil,
	}, nil
}

// Dialector selects the GORM dialector for params, reusing conn when given
func Dialector(params *Params, conn *sql.DB) (gorm.Dialector, error) {
	switch params.Driver {
	case DriverMySQL:
		if conn != nil {
			return mysql.New(mysql.Config{Conn: conn, SkipInitializeWithVersion: true}), nil
		}
		return mysql.New(mysql.Config{DSN: params.GetDSN()}), nil
	case DriverSQLite:
		if conn != nil {
			return sqlite.New(sqlite.Config{Conn: conn}), nil
		}
		return sqlite.Open(params.GetDSN()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, params.Driver)
	}
}

// DB returns the GORM database instance
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// SqlDB returns the underlying sql.DB instance
func (m *Manager) SqlDB() (*sql.DB, error) {
	return m.db.DB()
}

// Params returns the connection parameters
func (m *Manager) Params() *Params {
	return m.params
}

// Close closes the database connection unless the pool was supplied by the caller
func (m *Manager) Close() error {
	if m.db == nil || !m.owned {
		return nil
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping tests the database connection
func (m *Manager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stats returns database connection statistics
func (m *Manager) Stats() (sql.DBStats, error) {
	sqlDB, err := m.db.DB()
	if err != nil {
		return sql.DBStats{}, err
	}
	return sqlDB.Stats(), nil
}

// NewLogger returns GORM's default logger at the named level
func NewLogger(level string) logger.Interface {
	return logger.Default.LogMode(getLogLevel(level))
}

// NewEchoLogger prints every statement to w, like a profiling echo logger
func NewEchoLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Info,
		IgnoreRecordNotFoundError: false,
		Colorful:                  false,
	})
}

func getLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Error // Default to error
	}
}
