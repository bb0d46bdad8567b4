package sqlite

import (
	"context"
	"errors"

	"github.com/prateeksaini/dbridge/internal/errs"
)

// wrapErr converts a driver error into an *errs.Error of the given kind.
// modernc.org/sqlite reports engine errors as plain error strings, so unlike
// the server backends there are no native codes to classify — only context
// cancellation overrides the caller's kind.
func wrapErr(kind errs.Kind, msg string, err error) *errs.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindTimeout, msg, err)
	}
	return errs.Wrap(kind, msg, err)
}
