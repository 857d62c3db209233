package connection

import (
	"github.com/tdsgo/tds/internal/errs"
)

// retryableError adapts this package's errs.Error taxonomy to a
// `Retryable() bool` method, so a database/sql layer built on this
// driver can ask "is it safe to resend this statement" without reaching
// into driver internals. It implements no interface from
// golang-sql/sqlexp; this package does not import sqlexp.
type retryableError struct {
	cause *errs.Error
}

func (r *retryableError) Error() string   { return r.cause.Error() }
func (r *retryableError) Retryable() bool { return r.cause.Kind.Retryable() }
func (r *retryableError) Unwrap() error   { return r.cause }

// asRetryable wraps err for callers that type-assert an interface with a
// `Retryable() bool` method, returning err unchanged if it isn't one of ours.
func asRetryable(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*errs.Error); ok {
		return &retryableError{cause: e}
	}
	return err
}
