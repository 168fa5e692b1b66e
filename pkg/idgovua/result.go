package idgovua

// Result holds either a value or an *AuthError, never both
type Result[T any] struct {
	value T
	err   *AuthError
}

func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Fail wraps err; a nil err becomes an Unknown error so a failed Result is never silent
func Fail[T any](err *AuthError) Result[T] {
	if err == nil {
		err = UnknownError(0, MessageUnexpected, nil)
	}
	return Result[T]{err: err}
}

func (r Result[T]) IsOk() bool {
	return r.err == nil
}

func (r Result[T]) Err() *AuthError {
	return r.err
}

// Get returns the value and the error in Go's usual order
func (r Result[T]) Get() (T, *AuthError) {
	return r.value, r.err
}

// Then runs next with the value of r, or propagates the failure of r without calling next
func Then[T, U any](r Result[T], next func(T) Result[U]) Result[U] {
	if r.err != nil {
		return Fail[U](r.err)
	}
	return next(r.value)
}

// MapResult transforms the value of a successful result
func MapResult[T, U any](r Result[T], f func(T) U) Result[U] {
	if r.err != nil {
		return Fail[U](r.err)
	}
	return Ok(f(r.value))
}
