package database

import (
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/stdlib"

	"device-gate/pkg/config"
)

// DriverName maps the configured dialect to the registered database/sql driver.
func DriverName(dialect string) string {
	if dialect == "mysql" {
		return "mysql"
	}
	return "pgx"
}

func BuildDSN(cfg config.DBConfig) string {
	if cfg.Driver == "mysql" {
		mc := mysql.NewConfig()
		mc.User = cfg.Username
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
		mc.DBName = cfg.Name
		mc.ParseTime = true
		mc.MultiStatements = true
		mc.ClientFoundRows = true
		return mc.FormatDSN()
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Name, cfg.Password, cfg.SSL)
}

var errClosed = errors.New("database: manager is closed")
