package database

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"device-gate/pkg/config"
)

// Manager owns the process-wide connection pool. Repositories ask it for
// the current handle on every call so a reconnect is picked up without
// rebuilding them.
type Manager struct {
	mu      sync.RWMutex
	db      *sqlx.DB
	driver  string
	dsn     string
	cfg     config.RetryConfig
	maxOpen int
	maxIdle int
	logf    LogFunc
}

func NewManager(ctx context.Context, cfg config.DBConfig, logf LogFunc) (*Manager, error) {
	m := &Manager{
		driver:  DriverName(cfg.Driver),
		dsn:     BuildDSN(cfg),
		cfg:     normalizeConfig(cfg.Retry),
		maxOpen: cfg.MaxOpen,
		maxIdle: cfg.MaxIdle,
		logf:    logf,
	}
	db, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	m.db = db
	return m, nil
}

func (m *Manager) connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := ConnectWithRetry(ctx, m.driver, m.dsn, m.cfg, m.logf)
	if err != nil {
		return nil, err
	}
	if m.maxOpen > 0 {
		db.SetMaxOpenConns(m.maxOpen)
	}
	if m.maxIdle > 0 {
		db.SetMaxIdleConns(m.maxIdle)
	}
	return db, nil
}

func (m *Manager) DB() *sqlx.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

// Ping checks the current handle; it backs the connectivity probe endpoint.
func (m *Manager) Ping(ctx context.Context) error {
	db := m.DB()
	if db == nil {
		return errClosed
	}
	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.PingTimeout)
	defer cancel()
	return db.PingContext(pingCtx)
}

func (m *Manager) Reconnect(ctx context.Context) error {
	db, err := m.connect(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	old := m.db
	m.db = db
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	db := m.db
	m.db = nil
	m.mu.Unlock()
	if db != nil {
		return db.Close()
	}
	return nil
}

func (m *Manager) MonitorAndReconnect(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Monitor)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				if m.logf != nil {
					m.logf("DB ping failed: %v", err)
				}
				if err := m.Reconnect(ctx); err != nil && m.logf != nil {
					m.logf("DB reconnect failed: %v", err)
				}
			}
		}
	}
}
