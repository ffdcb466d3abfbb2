package chathub

import "github.com/pkg/errors"

// Error kinds returned by the gateway. Every operation error wraps exactly one of them.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrForbidden      = errors.New("forbidden")
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrPersistence    = errors.New("persistence error")
	ErrNotification   = errors.New("notification error")

	// ErrShuttingDown is returned by Connect once Shutdown has started.
	ErrShuttingDown = errors.New("gateway is shutting down")
)

// opError ties an error kind to its cause so that errors.Is matches both.
type opError struct {
	kind  error
	cause error
}

func (e *opError) Error() string        { return e.kind.Error() + ": " + e.cause.Error() }
func (e *opError) Is(target error) bool { return target == e.kind }
func (e *opError) Unwrap() error        { return e.cause }

func newError(kind, cause error) error {
	return &opError{kind: kind, cause: cause}
}

func newErrorf(kind error, format string, args ...interface{}) error {
	return &opError{kind: kind, cause: errors.Errorf(format, args...)}
}

// errorKind names the kind for logs and metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrNotification):
		return "notification"
	}
	return "internal"
}

// clientMessage is the text sent back in an error event. Store failures are not detailed.
func clientMessage(err error) string {
	if errors.Is(err, ErrPersistence) {
		return ErrPersistence.Error()
	}
	return err.Error()
}
