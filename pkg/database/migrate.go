package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate"
	"github.com/golang-migrate/migrate/database"
	"github.com/golang-migrate/migrate/database/mysql"
	"github.com/golang-migrate/migrate/database/postgres"
	_ "github.com/golang-migrate/migrate/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"device-gate/pkg/config"
)

// MigrateDB applies every pending migration from cfg.Migrations.
func MigrateDB(db *sqlx.DB, cfg config.DBConfig) error {
	var (
		driver database.Driver
		err    error
	)
	if cfg.Driver == "mysql" {
		driver, err = mysql.WithInstance(db.DB, &mysql.Config{})
	} else {
		driver, err = postgres.WithInstance(db.DB, &postgres.Config{})
	}
	if err != nil {
		return fmt.Errorf("couldn't get database instance for running migrations: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", cfg.Migrations), cfg.Name, driver)
	if err != nil {
		return fmt.Errorf("couldn't create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logrus.Debug("database migration doesn't required, no changes")
			return nil
		}
		return fmt.Errorf("couldn't run database migrations: %w", err)
	}
	logrus.Info("database migration was run successfully")
	return nil
}
