package database

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"

	"device-gate/pkg/config"
)

type LogFunc func(format string, args ...any)

// ConnectWithRetry opens and pings the database, backing off exponentially
// with jitter until it answers or cfg limits are exhausted.
func ConnectWithRetry(ctx context.Context, driver, dsn string, cfg config.RetryConfig, logf LogFunc) (*sqlx.DB, error) {
	cfg = normalizeConfig(cfg)

	start := time.Now()
	attempt := 0
	backoff := cfg.BaseDelay

	for {
		attempt++
		if cfg.MaxAttempts > 0 && attempt > cfg.MaxAttempts {
			return nil, errors.New("db connect: max attempts reached")
		}
		if cfg.MaxElapsed > 0 && time.Since(start) > cfg.MaxElapsed {
			return nil, errors.New("db connect: max elapsed time reached")
		}

		db, err := sqlx.Open(driver, dsn)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
			err = db.PingContext(pingCtx)
			cancel()
			if err == nil {
				if logf != nil {
					logf("DB connected after %d attempt(s)", attempt)
				}
				return db, nil
			}
			_ = db.Close()
		}

		if logf != nil {
			logf("DB connect attempt %d failed: %v", attempt, err)
		}

		delay := jitterDelay(backoff, cfg.Jitter)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		if backoff < cfg.MaxDelay {
			backoff *= 2
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func normalizeConfig(cfg config.RetryConfig) config.RetryConfig {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}
	if cfg.Monitor <= 0 {
		cfg.Monitor = 5 * time.Second
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Jitter > 0.5 {
		cfg.Jitter = 0.5
	}
	return cfg
}

func jitterDelay(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	factor := 1 + (rand.Float64()*2-1)*jitter
	return time.Duration(float64(base) * factor)
}
