package resterr

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	mysqlErrDupEntry        = 1062
	mysqlErrNoReferencedRow = 1452
	pgUniqueViolation       = "23505"
	pgForeignKeyViolation   = "23503"
)

// NormalizeDriverError maps driver-specific constraint violations onto error
// kinds. Errors that are not constraint violations are returned unchanged.
func NormalizeDriverError(err error) error {
	if err == nil {
		return nil
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDupEntry:
			return New(KindConflict, "duplicate row").Wrap(err)
		case mysqlErrNoReferencedRow:
			return New(KindNotFound, "referenced row does not exist").Wrap(err)
		}
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return normalizeSQLState(pgErr.Code, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return normalizeSQLState(string(pqErr.Code), err)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return New(KindConflict, "duplicate row").Wrap(err)
		case sqlite3.ErrConstraintForeignKey:
			return New(KindNotFound, "referenced row does not exist").Wrap(err)
		}
	}
	return err
}

func normalizeSQLState(code string, err error) error {
	switch code {
	case pgUniqueViolation:
		return New(KindConflict, "duplicate row").Wrap(err)
	case pgForeignKeyViolation:
		return New(KindNotFound, "referenced row does not exist").Wrap(err)
	}
	return err
}
