// Package database manages the MySQL warehouse connection for the crashed pipeline.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dbsmedya/crashed/internal/config"
)

// Manager owns the warehouse connection pool.
type Manager struct {
	Warehouse *sql.DB
	config    *config.DatabaseConfig

	maxRetries int
	backoff    time.Duration
}

// NewManager creates a new database manager from the warehouse configuration.
func NewManager(cfg *config.DatabaseConfig) *Manager {
	return &Manager{
		config:     cfg,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Connect establishes the warehouse connection, retrying with exponential backoff.
func (m *Manager) Connect(ctx context.Context) error {
	if m.config == nil {
		return fmt.Errorf("warehouse configuration is nil")
	}

	db, err := m.connectWithRetry(ctx, m.config)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse database: %w", err)
	}
	m.Warehouse = db
	return nil
}

// connectWithRetry doubles the wait after each failed open or ping.
func (m *Manager) connectWithRetry(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	var err error
	backoff := m.backoff

	for i := 0; i < m.maxRetries; i++ {
		var db *sql.DB
		db, err = m.connect(cfg)
		if err == nil {
			pingErr := db.PingContext(ctx)
			if pingErr == nil {
				return db, nil
			}
			db.Close()
			err = pingErr
		}

		if i < m.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", m.maxRetries, err)
}

func (m *Manager) connect(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", BuildDSN(cfg))
	if err != nil {
		return nil, err
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConnections)
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	return db, nil
}

// tlsModes maps the configured tls setting onto the driver's tls parameter.
var tlsModes = map[string]string{
	"disable":   "false",
	"required":  "true",
	"preferred": "preferred",
	"":          "preferred",
}

// BuildDSN renders the driver DSN for cfg. Table rebuilds send DROP and
// CREATE ... AS SELECT as one batch, so multiStatements is always on.
func BuildDSN(cfg *config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.MultiStatements = true
	mc.TLSConfig = tlsModes[cfg.TLS]
	return mc.FormatDSN()
}

// Close closes the warehouse connection.
func (m *Manager) Close() error {
	if m.Warehouse == nil {
		return nil
	}
	if err := m.Warehouse.Close(); err != nil {
		return fmt.Errorf("warehouse close: %w", err)
	}
	return nil
}

// Ping verifies the warehouse connection is alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.Warehouse == nil {
		return fmt.Errorf("warehouse is not connected")
	}
	if err := m.Warehouse.PingContext(ctx); err != nil {
		return fmt.Errorf("warehouse ping failed: %w", err)
	}
	return nil
}
