package database

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx"
)

const (
	pgUniqueViolation   = "23505"
	mysqlDuplicateEntry = 1062
)

// IsUniqueViolation reports whether err is a unique constraint failure
// from either supported driver.
func IsUniqueViolation(err error) bool {
	if code, ok := pgCode(err); ok {
		return code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return false
}

func pgCode(err error) (string, bool) {
	var pgErr pgx.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	var pgErrPtr *pgx.PgError
	if errors.As(err, &pgErrPtr) && pgErrPtr != nil {
		return pgErrPtr.Code, true
	}
	return "", false
}
