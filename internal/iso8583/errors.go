package iso8583

import (
	"errors"
	"fmt"
)

var (
	ErrFieldNotFound    = errors.New("field not present")
	ErrUnknownField     = errors.New("field not defined in spec")
	ErrCapacity         = errors.New("value exceeds field capacity")
	ErrTruncated        = errors.New("buffer shorter than declared length")
	ErrInvalidCharacter = errors.New("invalid character for codec")
	ErrCodecMismatch    = errors.New("accessor does not match field codec")
	ErrNoMTI            = errors.New("message type indicator not set")
	ErrTrailingBytes    = errors.New("unexpected bytes after last field")
	ErrUnexpectedMTI    = errors.New("unexpected message type indicator")
	ErrMismatch         = errors.New("response does not match request")
)

// FieldError ties a codec or accessor failure to a data element number.
type FieldError struct {
	Field int
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("field %d: %v", e.Field, e.Err) }

func (e *FieldError) Unwrap() error { return e.Err }

func fieldErr(field int, err error) error {
	return &FieldError{Field: field, Err: err}
}
