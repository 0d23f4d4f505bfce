package iso8583

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Apdu is one ISO8583 message body: MTI, bitmap and data elements,
// encoded per a protocol Spec. Values are kept in logical form and
// validated against the field codec when set.
//
// Wire layout: [2B MTI BCD][8B primary bitmap][8B secondary bitmap?][fields...]
type Apdu struct {
	spec   *Spec
	mti    int
	hasMTI bool
	fields map[int][]byte
	err    error
}

// New returns an empty message for building a request.
func New(spec *Spec) *Apdu {
	return &Apdu{spec: spec, fields: make(map[int][]byte)}
}

// Spec returns the field table the message is encoded with.
func (a *Apdu) Spec() *Spec { return a.spec }

// SetMTI sets the message type indicator, e.g. 200 for "0200".
func (a *Apdu) SetMTI(mti int) {
	if mti < 0 || mti > 9999 {
		a.fail(fmt.Errorf("mti %d: %w", mti, ErrCapacity))
		return
	}
	a.mti, a.hasMTI = mti, true
}

// MTI returns the message type indicator and whether it is set.
func (a *Apdu) MTI() (int, bool) { return a.mti, a.hasMTI }

// HasMTI reports whether the message type indicator is set.
func (a *Apdu) HasMTI() bool { return a.hasMTI }

// SetString sets a numeric or text field.
func (a *Apdu) SetString(field int, v string) { a.set(field, []byte(v)) }

// SetInt sets a numeric field from an unsigned integer.
func (a *Apdu) SetInt(field int, v uint64) {
	f, ok := a.spec.Field(field)
	if !ok {
		a.fail(fieldErr(field, ErrUnknownField))
		return
	}
	if f.Codec.Kind() != KindNumeric {
		a.fail(fieldErr(field, ErrCodecMismatch))
		return
	}
	a.set(field, []byte(strconv.FormatUint(v, 10)))
}

// SetBytes sets a binary or text field.
func (a *Apdu) SetBytes(field int, v []byte) { a.set(field, append([]byte(nil), v...)) }

// Unset removes a field.
func (a *Apdu) Unset(field int) { delete(a.fields, field) }

func (a *Apdu) set(field int, v []byte) {
	f, ok := a.spec.Field(field)
	if !ok {
		a.fail(fieldErr(field, ErrUnknownField))
		return
	}
	if _, err := f.Codec.Encode(v); err != nil {
		a.fail(fieldErr(field, err))
		return
	}
	a.fields[field] = normalize(f.Codec, v)
}

// normalize keeps fixed numerics in their zero-padded form so that the
// value read back after Set equals the value read back after Parse.
func normalize(c Codec, v []byte) []byte {
	if fn, ok := c.(fixedNumeric); ok && len(v) < fn.digits {
		return append(bytes.Repeat([]byte{'0'}, fn.digits-len(v)), v...)
	}
	return v
}

func (a *Apdu) fail(err error) {
	if a.err == nil {
		a.err = err
	}
}

// Err returns the first error recorded by a setter.
func (a *Apdu) Err() error { return a.err }

// HasField reports whether field is present.
func (a *Apdu) HasField(field int) bool {
	_, ok := a.fields[field]
	return ok
}

// Fields lists present field numbers in ascending order.
func (a *Apdu) Fields() []int {
	out := make([]int, 0, len(a.fields))
	for n := range a.fields {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// GetString returns a numeric or text field. Fixed numerics come back
// zero-padded to their declared width.
func (a *Apdu) GetString(field int) (string, error) {
	v, f, err := a.get(field)
	if err != nil {
		return "", err
	}
	if f.Codec.Kind() == KindBinary {
		return "", fieldErr(field, ErrCodecMismatch)
	}
	return string(v), nil
}

// GetInt returns a numeric field as an unsigned integer.
func (a *Apdu) GetInt(field int) (uint64, error) {
	v, f, err := a.get(field)
	if err != nil {
		return 0, err
	}
	if f.Codec.Kind() != KindNumeric {
		return 0, fieldErr(field, ErrCodecMismatch)
	}
	n, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0, fieldErr(field, err)
	}
	return n, nil
}

// GetBytes returns a copy of a text or binary field.
func (a *Apdu) GetBytes(field int) ([]byte, error) {
	v, f, err := a.get(field)
	if err != nil {
		return nil, err
	}
	if f.Codec.Kind() == KindNumeric {
		return nil, fieldErr(field, ErrCodecMismatch)
	}
	return append([]byte(nil), v...), nil
}

func (a *Apdu) get(field int) ([]byte, FieldSpec, error) {
	f, ok := a.spec.Field(field)
	if !ok {
		return nil, f, fieldErr(field, ErrUnknownField)
	}
	v, ok := a.fields[field]
	if !ok {
		return nil, f, fieldErr(field, ErrFieldNotFound)
	}
	return v, f, nil
}

// Pack serializes the message. A message with a recorded setter error or
// without an MTI is never serialized.
func (a *Apdu) Pack() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	if !a.hasMTI {
		return nil, ErrNoMTI
	}
	mti, err := FixedNumeric(4).Encode([]byte(fmt.Sprintf("%04d", a.mti)))
	if err != nil {
		return nil, err
	}

	var bm bitmap
	numbers := a.Fields()
	for _, n := range numbers {
		bm.set(n)
	}

	var body bytes.Buffer
	body.Write(mti)
	body.Write(bm.pack())
	for _, n := range numbers {
		f, _ := a.spec.Field(n)
		enc, err := f.Codec.Encode(a.fields[n])
		if err != nil {
			return nil, fieldErr(n, err)
		}
		body.Write(enc)
	}
	return body.Bytes(), nil
}

// Parse decodes data against spec. Truncated input, fields missing from
// spec and trailing bytes are all errors; no partial message is returned.
func Parse(spec *Spec, data []byte) (*Apdu, error) {
	a := New(spec)
	mti, off, err := FixedNumeric(4).Decode(data)
	if err != nil {
		return nil, fmt.Errorf("mti: %w", err)
	}
	n, _ := strconv.Atoi(string(mti))
	a.mti, a.hasMTI = n, true

	bm, read, err := unpackBitmap(data[off:])
	if err != nil {
		return nil, err
	}
	off += read

	for field := 2; field <= 128; field++ {
		if field == 65 || !bm.isSet(field) {
			continue
		}
		f, ok := spec.Field(field)
		if !ok {
			return nil, fieldErr(field, ErrUnknownField)
		}
		v, read, err := f.Codec.Decode(data[off:])
		if err != nil {
			return nil, fieldErr(field, err)
		}
		a.fields[field] = v
		off += read
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d", ErrTrailingBytes, len(data)-off)
	}
	return a, nil
}
