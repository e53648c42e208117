package tokenguard

// Result carries either a value or an error from an Engine command.
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail wraps err. A nil err is replaced with ErrEngineNotReady so that a
// failed Result never reports success.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = ErrEngineNotReady
	}
	return Result[T]{err: err}
}

func (r Result[T]) IsSuccess() bool { return r.err == nil }

// Value returns the wrapped value; the zero value on failure.
func (r Result[T]) Value() T { return r.value }

func (r Result[T]) Err() error { return r.err }

// Unwrap returns the value and error as a Go pair.
func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.err
}
