package assistant

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrExchangeFailed matches every *ExchangeError via errors.Is.
var ErrExchangeFailed = errors.New("assistant exchange failed")

// ExchangeError reports a failed exchange and the upstream code to blame.
type ExchangeError struct {
	Op   string
	Code codes.Code
	Err  error
}

// Error implements the error interface.
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("assistant exchange failed during %s (%s): %v", e.Op, e.Code, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrExchangeFailed.
func (e *ExchangeError) Is(target error) bool {
	return target == ErrExchangeFailed
}

func newExchangeError(ctx context.Context, op string, err error) *ExchangeError {
	code := status.Code(err)
	if code == codes.Unknown {
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
			code = codes.DeadlineExceeded
		case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
			code = codes.Canceled
		}
	}
	return &ExchangeError{Op: op, Code: code, Err: err}
}

// CodeOf returns the upstream code carried by err, codes.OK for nil.
func CodeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		return exchangeErr.Code
	}
	return status.Code(err)
}
