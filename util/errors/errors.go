package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel error kinds surfaced across the server. Components wrap these with
// contextual messages; transports map them to wire responses.
var (
	ErrInvalidName      = fmt.Errorf("invalid name")
	ErrNotFound         = fmt.Errorf("not found")
	ErrAlreadyExists    = fmt.Errorf("already exists")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrConflict         = fmt.Errorf("conflict")
	ErrBadRequest       = fmt.Errorf("bad request")
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrTimeout          = fmt.Errorf("timeout")
)

// Wrap annotates a sentinel kind with a human-readable message. The result
// matches the kind under errors.Is.
func Wrap(kind error, format string, a ...interface{}) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, a...)}
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.kind }

// IsKind checks whether err matches the given sentinel kind
func IsKind(err, kind error) bool {
	return errors.Is(err, kind)
}
