package iso8583

import (
	"fmt"
	"strings"
)

// ExpectMTI fails unless the message carries the given MTI.
func ExpectMTI(a *Apdu, mti int) error {
	got, ok := a.MTI()
	if !ok {
		return ErrNoMTI
	}
	if got != mti {
		return fmt.Errorf("%w: got %04d, want %04d", ErrUnexpectedMTI, got, mti)
	}
	return nil
}

// RequireFields fails on the first listed field that is absent.
func RequireFields(a *Apdu, fields ...int) error {
	for _, f := range fields {
		if !a.HasField(f) {
			return fieldErr(f, ErrFieldNotFound)
		}
	}
	return nil
}

// MatchString fails unless field holds want. Fill characters of fixed
// text fields are ignored on both sides.
func MatchString(a *Apdu, field int, want string) error {
	got, err := a.GetString(field)
	if err != nil {
		return err
	}
	if strings.TrimRight(got, " ") != strings.TrimRight(want, " ") {
		return fieldErr(field, fmt.Errorf("%w: got %q, want %q", ErrMismatch, got, want))
	}
	return nil
}

// MatchInt fails unless numeric field holds want.
func MatchInt(a *Apdu, field int, want uint64) error {
	got, err := a.GetInt(field)
	if err != nil {
		return err
	}
	if got != want {
		return fieldErr(field, fmt.Errorf("%w: got %d, want %d", ErrMismatch, got, want))
	}
	return nil
}
