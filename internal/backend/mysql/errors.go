package mysql

import (
	"context"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/prateeksaini/dbridge/internal/errs"
)

// MySQL server error numbers this adapter cares about.
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errAccessDenied    = 1045
	errUnknownDatabase = 1049
	errTooManyConns    = 1040
)

// wrapErr converts a driver error into an *errs.Error of the given kind,
// keeping the server's own message reachable through the cause chain.
// Context cancellation and connectivity failures override the caller's kind
// so they are never misreported as query or catalog errors.
func wrapErr(kind errs.Kind, msg string, err error) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindTimeout, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errAccessDenied, errUnknownDatabase, errTooManyConns:
			kind = errs.KindConnectFailed
		}
		return errs.Wrap(kind, fmt.Sprintf("%s (server error %d)", msg, mysqlErr.Number), err)
	}

	if errors.Is(err, gomysql.ErrInvalidConn) {
		return errs.Wrap(errs.KindConnectFailed, msg, err)
	}

	return errs.Wrap(kind, msg, err)
}
