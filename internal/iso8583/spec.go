package iso8583

import (
	"fmt"
	"sort"
)

// Mask controls how Describe renders a field.
type Mask int

const (
	MaskNone   Mask = iota
	MaskPAN         // keep first 6 and last 4
	MaskRedact      // never print
)

// FieldSpec describes an ISO8583 data element.
type FieldSpec struct {
	Num   int
	Name  string
	Codec Codec
	Mask  Mask
}

// Spec is the field table of one protocol family.
type Spec struct {
	Name   string
	fields map[int]FieldSpec
}

// NewSpec builds a field table. Field numbers must be unique and within 2..128.
func NewSpec(name string, fields ...FieldSpec) *Spec {
	s := &Spec{Name: name, fields: make(map[int]FieldSpec, len(fields))}
	for _, f := range fields {
		if f.Num < 2 || f.Num > 128 {
			panic(fmt.Sprintf("iso8583: %s: field number %d out of range", name, f.Num))
		}
		if _, dup := s.fields[f.Num]; dup {
			panic(fmt.Sprintf("iso8583: %s: field %d declared twice", name, f.Num))
		}
		s.fields[f.Num] = f
	}
	return s
}

// Field returns the descriptor for field n.
func (s *Spec) Field(n int) (FieldSpec, bool) {
	f, ok := s.fields[n]
	return f, ok
}

// Numbers lists the declared field numbers in ascending order.
func (s *Spec) Numbers() []int {
	out := make([]int, 0, len(s.fields))
	for n := range s.fields {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
