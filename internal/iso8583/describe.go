package iso8583

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Describe renders a message for debug logs, one field per line.
// PAN-class fields keep only their first 6 and last 4 characters and
// redacted fields show their length only.
func Describe(a *Apdu) string {
	var sb strings.Builder
	if mti, ok := a.MTI(); ok {
		fmt.Fprintf(&sb, "MTI %04d", mti)
	} else {
		sb.WriteString("MTI ----")
	}
	if a.spec != nil {
		fmt.Fprintf(&sb, " [%s]", a.spec.Name)
	}
	for _, n := range a.Fields() {
		f, _ := a.spec.Field(n)
		v := a.fields[n]
		fmt.Fprintf(&sb, "\n  DE%03d %-28s %-8s %s", n, f.Name, f.Codec, render(f, v))
	}
	return sb.String()
}

func render(f FieldSpec, v []byte) string {
	switch f.Mask {
	case MaskRedact:
		return fmt.Sprintf("<%d bytes redacted>", len(v))
	case MaskPAN:
		return maskPAN(string(v))
	}
	if f.Codec.Kind() == KindBinary {
		return strings.ToUpper(hex.EncodeToString(v))
	}
	return fmt.Sprintf("%q", v)
}

func maskPAN(s string) string {
	if len(s) <= 10 {
		return strings.Repeat("*", len(s))
	}
	return s[:6] + strings.Repeat("*", len(s)-10) + s[len(s)-4:]
}
