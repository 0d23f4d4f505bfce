package iso8583

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/moov-io/iso8583/encoding"
)

// Kind groups codecs by the accessors they support.
type Kind int

const (
	KindNumeric Kind = iota // GetInt, GetString
	KindText                // GetString, GetBytes
	KindBinary              // GetBytes
)

// Codec encodes and decodes one data element.
//
// Values are exchanged in their logical form: ASCII digits for numeric
// codecs, characters for text codecs and raw bytes for binary codecs.
type Codec interface {
	Kind() Kind
	// Encode returns the wire form of value.
	Encode(value []byte) ([]byte, error)
	// Decode reads one element from the head of data and reports how
	// many bytes it consumed.
	Decode(data []byte) (value []byte, read int, err error)
	String() string
}

const padNibble = 0x0F

// FixedNumeric is packed BCD of n digits in ⌈n/2⌉ bytes, right-justified
// and zero-padded.
func FixedNumeric(n int) Codec { return fixedNumeric{digits: n} }

// FixedAns is n ASCII characters right-padded with fill.
func FixedAns(n int, fill byte) Codec { return fixedAns{size: n, fill: fill} }

// FixedBinary is exactly bits/8 raw bytes.
func FixedBinary(bits int) Codec { return fixedBinary{size: bits / 8} }

// VarNumeric is a digit string with a BCD length prefix of prefixDigits
// digits. Digits are packed left-aligned; an odd count ends in an F nibble.
func VarNumeric(prefixDigits, max int) Codec {
	return packedVar{prefix: prefixDigits, max: max, kind: KindNumeric, nibble: digitNibble, char: nibbleDigit, tag: "n"}
}

// Track2 is track-2 equivalent data packed like VarNumeric, with the field
// separator ('=' or 'D') carried as a D nibble.
func Track2(prefixDigits, max int) Codec {
	return packedVar{prefix: prefixDigits, max: max, kind: KindText, nibble: track2Nibble, char: nibbleTrack2, tag: "z"}
}

// VarAns is ASCII text with a BCD length prefix counting characters.
func VarAns(prefixDigits, max int) Codec {
	return byteVar{prefix: prefixDigits, max: max, kind: KindText, enc: encoding.ASCII, tag: "ans"}
}

// VarBytes is binary data with a BCD length prefix counting bytes.
func VarBytes(prefixDigits, max int) Codec {
	return byteVar{prefix: prefixDigits, max: max, kind: KindBinary, enc: encoding.Binary, tag: "b"}
}

type fixedNumeric struct{ digits int }

func (c fixedNumeric) Kind() Kind     { return KindNumeric }
func (c fixedNumeric) String() string { return fmt.Sprintf("n%d", c.digits) }

func (c fixedNumeric) Encode(value []byte) ([]byte, error) {
	if len(value) > c.digits {
		return nil, fmt.Errorf("%w: %d digits, max %d", ErrCapacity, len(value), c.digits)
	}
	if err := checkDigits(value); err != nil {
		return nil, err
	}
	padded := append(bytes.Repeat([]byte{'0'}, c.digits-len(value)), value...)
	return encoding.BCD.Encode(padded)
}

func (c fixedNumeric) Decode(data []byte) ([]byte, int, error) {
	return decodeBCD(data, c.digits)
}

type fixedAns struct {
	size int
	fill byte
}

func (c fixedAns) Kind() Kind     { return KindText }
func (c fixedAns) String() string { return fmt.Sprintf("ans%d", c.size) }

func (c fixedAns) Encode(value []byte) ([]byte, error) {
	if len(value) > c.size {
		return nil, fmt.Errorf("%w: %d characters, max %d", ErrCapacity, len(value), c.size)
	}
	out, err := encoding.ASCII.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCharacter, err)
	}
	return append(out, bytes.Repeat([]byte{c.fill}, c.size-len(value))...), nil
}

func (c fixedAns) Decode(data []byte) ([]byte, int, error) {
	if len(data) < c.size {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, c.size, len(data))
	}
	raw, read, err := encoding.ASCII.Decode(data, c.size)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidCharacter, err)
	}
	return append([]byte(nil), bytes.TrimRight(raw, string(c.fill))...), read, nil
}

type fixedBinary struct{ size int }

func (c fixedBinary) Kind() Kind     { return KindBinary }
func (c fixedBinary) String() string { return fmt.Sprintf("b%d", c.size*8) }

func (c fixedBinary) Encode(value []byte) ([]byte, error) {
	if len(value) != c.size {
		return nil, fmt.Errorf("%w: %d bytes, want exactly %d", ErrCapacity, len(value), c.size)
	}
	return encoding.Binary.Encode(value)
}

func (c fixedBinary) Decode(data []byte) ([]byte, int, error) {
	if len(data) < c.size {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, c.size, len(data))
	}
	raw, read, err := encoding.Binary.Decode(data, c.size)
	if err != nil {
		return nil, 0, err
	}
	return append([]byte(nil), raw...), read, nil
}

type packedVar struct {
	prefix int
	max    int
	kind   Kind
	nibble func(byte) (byte, bool)
	char   func(byte) (byte, bool)
	tag    string
}

func (c packedVar) Kind() Kind     { return c.kind }
func (c packedVar) String() string { return fmt.Sprintf("%s..%d", c.tag, c.max) }

func (c packedVar) Encode(value []byte) ([]byte, error) {
	if len(value) > c.max {
		return nil, fmt.Errorf("%w: %d digits, max %d", ErrCapacity, len(value), c.max)
	}
	prefix, err := encodePrefix(c.prefix, len(value))
	if err != nil {
		return nil, err
	}
	body := make([]byte, (len(value)+1)/2)
	for i, ch := range value {
		n, ok := c.nibble(ch)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCharacter, ch)
		}
		if i%2 == 0 {
			body[i/2] = n << 4
		} else {
			body[i/2] |= n
		}
	}
	if len(value)%2 == 1 {
		body[len(body)-1] |= padNibble
	}
	return append(prefix, body...), nil
}

func (c packedVar) Decode(data []byte) ([]byte, int, error) {
	length, off, err := decodePrefix(c.prefix, data)
	if err != nil {
		return nil, 0, err
	}
	if length > c.max {
		return nil, 0, fmt.Errorf("%w: declared %d digits, max %d", ErrCapacity, length, c.max)
	}
	size := (length + 1) / 2
	if len(data)-off < size {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, size, len(data)-off)
	}
	out := make([]byte, length)
	for i := range out {
		b := data[off+i/2]
		n := b >> 4
		if i%2 == 1 {
			n = b & 0x0F
		}
		ch, ok := c.char(n)
		if !ok {
			return nil, 0, fmt.Errorf("%w: nibble %X", ErrInvalidCharacter, n)
		}
		out[i] = ch
	}
	return out, off + size, nil
}

type byteVar struct {
	prefix int
	max    int
	kind   Kind
	enc    encoding.Encoder
	tag    string
}

func (c byteVar) Kind() Kind     { return c.kind }
func (c byteVar) String() string { return fmt.Sprintf("%s..%d", c.tag, c.max) }

func (c byteVar) Encode(value []byte) ([]byte, error) {
	if len(value) > c.max {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrCapacity, len(value), c.max)
	}
	prefix, err := encodePrefix(c.prefix, len(value))
	if err != nil {
		return nil, err
	}
	body, err := c.enc.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCharacter, err)
	}
	return append(prefix, body...), nil
}

func (c byteVar) Decode(data []byte) ([]byte, int, error) {
	length, off, err := decodePrefix(c.prefix, data)
	if err != nil {
		return nil, 0, err
	}
	if length > c.max {
		return nil, 0, fmt.Errorf("%w: declared %d bytes, max %d", ErrCapacity, length, c.max)
	}
	if len(data)-off < length {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, length, len(data)-off)
	}
	raw, read, err := c.enc.Decode(data[off:], length)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidCharacter, err)
	}
	return append([]byte(nil), raw...), off + read, nil
}

func encodePrefix(digits, length int) ([]byte, error) {
	s := strconv.Itoa(length)
	if len(s) > digits {
		return nil, fmt.Errorf("%w: length %d does not fit a %d-digit prefix", ErrCapacity, length, digits)
	}
	return fixedNumeric{digits: digits}.Encode([]byte(s))
}

func decodePrefix(digits int, data []byte) (int, int, error) {
	raw, read, err := decodeBCD(data, digits)
	if err != nil {
		return 0, 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: length prefix %q", ErrInvalidCharacter, raw)
	}
	return n, read, nil
}

func decodeBCD(data []byte, digits int) ([]byte, int, error) {
	size := (digits + 1) / 2
	if len(data) < size {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, size, len(data))
	}
	raw, read, err := encoding.BCD.Decode(data[:size], digits)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidCharacter, err)
	}
	if err := checkDigits(raw); err != nil {
		return nil, 0, err
	}
	return append([]byte(nil), raw...), read, nil
}

func checkDigits(v []byte) error {
	for _, ch := range v {
		if ch < '0' || ch > '9' {
			return fmt.Errorf("%w: %q is not a digit", ErrInvalidCharacter, ch)
		}
	}
	return nil
}

func digitNibble(ch byte) (byte, bool) {
	if ch < '0' || ch > '9' {
		return 0, false
	}
	return ch - '0', true
}

func nibbleDigit(n byte) (byte, bool) {
	if n > 9 {
		return 0, false
	}
	return '0' + n, true
}

func track2Nibble(ch byte) (byte, bool) {
	if ch == '=' || ch == 'D' || ch == 'd' {
		return 0x0D, true
	}
	return digitNibble(ch)
}

func nibbleTrack2(n byte) (byte, bool) {
	if n == 0x0D {
		return '=', true
	}
	return nibbleDigit(n)
}
