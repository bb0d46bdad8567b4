package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/prateeksaini/dbridge/internal/errs"
)

// wrapErr converts a pgx / pgconn error into an *errs.Error of the given
// kind, keeping the server's own message reachable through the cause chain.
// Connection-class SQLSTATEs and context errors override the caller's kind.
func wrapErr(kind errs.Kind, msg string, err error) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindTimeout, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08": // connection exception
			kind = errs.KindConnectFailed
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "28": // invalid authorization
			kind = errs.KindConnectFailed
		case pgErr.Code == "3D000": // invalid catalog name (unknown database)
			kind = errs.KindConnectFailed
		}
		return errs.Wrap(kind, fmt.Sprintf("%s (SQLSTATE %s)", msg, pgErr.Code), err)
	}

	return errs.Wrap(kind, msg, err)
}
