package pipeline

import ierrors "github.com/hookgate/hookgate/internal/errors"

// Result carries either a step's value or the taxonomy error that ends the
// request.
type Result[T any] struct {
	value T
	err   *ierrors.IntegrationError
}

func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

func Fail[T any](err *ierrors.IntegrationError) Result[T] {
	if err == nil {
		err = ierrors.NewIntegrationInternal("An unexpected error occurred")
	}
	return Result[T]{err: err}
}

// Get returns the value and a nil error, or the zero value and the failure.
func (r Result[T]) Get() (T, *ierrors.IntegrationError) {
	return r.value, r.err
}

func (r Result[T]) Err() *ierrors.IntegrationError { return r.err }

func (r Result[T]) IsOk() bool { return r.err == nil }

// Then runs next with the value of r, or passes the failure through.
func Then[A, B any](r Result[A], next func(A) Result[B]) Result[B] {
	if r.err != nil {
		return Fail[B](r.err)
	}
	return next(r.value)
}
