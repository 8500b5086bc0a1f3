package db

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers after normalization
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Params holds the connection parameters of an entity manager
type Params struct {
	// Connection Settings
	Driver   string `json:"driver" yaml:"driver"` // mysql or sqlite
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	DBName   string `json:"dbname" yaml:"dbname"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Path     string `json:"path" yaml:"path"` // sqlite database file

	// MySQL Specific Settings
	Charset   string `json:"charset" yaml:"charset"`     // Default: utf8mb4
	Collation string `json:"collation" yaml:"collation"` // Default: utf8mb4_unicode_ci
	TimeZone  string `json:"timezone" yaml:"timezone"`   // Default: UTC

	// Connection Pool Settings
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// Options tune how a Manager opens its connection
type Options struct {
	// Logger receives GORM's SQL logging; defaults to the "error" level logger
	Logger logger.Interface

	// Conn reuses an existing pool instead of dialing Params
	Conn *sql.DB

	// GORM Settings
	PrepareStmt                              bool
	SkipDefaultTransaction                   bool
	DisableForeignKeyConstraintWhenMigrating bool
}

// Manager manages the database connection of one entity manager
type Manager struct {
	params *Params
	db     *gorm.DB
	// owned is false when the pool was supplied by the caller
	owned bool
}
