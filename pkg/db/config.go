package db

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// NormalizeDriver maps driver aliases (pdo_mysql, sqlite3, ...) to a supported driver
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pdo_mysql", "mysql", "mysqli":
		return DriverMySQL, nil
	case "pdo_sqlite", "sqlite", "sqlite3":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, name)
	}
}

// ParamsFromMap builds connection parameters from a flat mapping such as
// config.ConnectionConfig.ToMap
func ParamsFromMap(m map[string]string) (*Params, error) {
	driver, err := NormalizeDriver(m["driver"])
	if err != nil {
		return nil, err
	}

	p := &Params{
		Driver:    driver,
		Host:      m["host"],
		DBName:    m["dbname"],
		User:      m["user"],
		Password:  m["password"],
		Path:      m["path"],
		Charset:   m["charset"],
		Collation: m["collation"],
		TimeZone:  m["timezone"],
	}

	ints := map[string]*int{
		"port":           &p.Port,
		"max_open_conns": &p.MaxOpenConns,
		"max_idle_conns": &p.MaxIdleConns,
	}
	for key, dst := range ints {
		raw, ok := m[key]
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidParams, key, raw)
		}
		*dst = n
	}

	if raw := m["conn_max_lifetime"]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: conn_max_lifetime=%q: %v", ErrInvalidParams, raw, err)
		}
		p.ConnMaxLifetime = d
	}

	p.applyDefaults()
	return p, nil
}

func (p *Params) applyDefaults() {
	if p.Driver != DriverMySQL {
		return
	}
	if p.Port == 0 {
		p.Port = 3306
	}
	if p.Charset == "" {
		p.Charset = "utf8mb4"
	}
	if p.Collation == "" && p.Charset == "utf8mb4" {
		p.Collation = "utf8mb4_unicode_ci"
	}
}

// Validate checks if the connection parameters are usable
func (p *Params) Validate() error {
	switch p.Driver {
	case DriverMySQL:
		if p.Host == "" {
			return fmt.Errorf("%w: database host is required", ErrInvalidParams)
		}
		if p.Port < 1 || p.Port > 65535 {
			return fmt.Errorf("%w: database port must be between 1 and 65535, got %d", ErrInvalidParams, p.Port)
		}
		if p.DBName == "" {
			return fmt.Errorf("%w: database name is required", ErrInvalidParams)
		}
	case DriverSQLite:
		if p.Path == "" {
			return fmt.Errorf("%w: sqlite path is required", ErrInvalidParams)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, p.Driver)
	}

	if p.MaxIdleConns > p.MaxOpenConns && p.MaxOpenConns > 0 {
		return fmt.Errorf("%w: max_idle_conns cannot be greater than max_open_conns", ErrInvalidParams)
	}
	return nil
}

// GetDSN returns the data source name of the connection
func (p *Params) GetDSN() string {
	if p.Driver == DriverSQLite {
		return p.Path
	}

	// Use the official MySQL driver config builder for safe DSN construction
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", p.Host, p.Port)
	cfg.DBName = p.DBName
	cfg.Collation = p.Collation
	cfg.Loc = parseLocation(p.TimeZone)
	cfg.ParseTime = true
	if p.Charset != "" {
		cfg.Params = map[string]string{"charset": p.Charset}
	}
	return cfg.FormatDSN()
}

// parseLocation parses timezone string to *time.Location
func parseLocation(tz string) *time.Location {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Fallback to UTC if timezone parsing fails
		loc = time.UTC
	}
	return loc
}
