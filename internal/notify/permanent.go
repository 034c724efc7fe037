package notify

import "errors"

// PermanentError marks delivery failures that must not be retried.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	if e.Err == nil {
		return "permanent delivery error"
	}
	return e.Err.Error()
}

func (e PermanentError) Unwrap() error {
	return e.Err
}

// MarkPermanent wraps error as non-retryable.
// Params: source error.
// Returns: wrapped error or nil.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return PermanentError{Err: err}
}

// IsPermanent reports whether error carries the non-retryable marker.
func IsPermanent(err error) bool {
	var marked PermanentError
	return errors.As(err, &marked)
}
