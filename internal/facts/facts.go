// Package facts defines the applicant fact contract supplied by the
// golden-record system. Facts are transient inputs to evaluation; this core
// never owns or mutates them.
package facts

import (
	"context"
	"time"

	id "arbiter/pkg/domain"
)

// Kind enumerates the value types a fact may carry.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindDate   Kind = "date"
)

// Value is one typed applicant fact.
type Value struct {
	Kind   Kind
	Str    string
	Num    float64
	Bool   bool
	Date   time.Time
}

// String wraps a string fact.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number wraps a numeric fact.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Bool wraps a boolean fact.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Date wraps a date fact.
func Date(t time.Time) Value { return Value{Kind: KindDate, Date: t} }

// Native returns the value as the type the expression runtime expects.
func (v Value) Native() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindDate:
		return v.Date
	}
	return nil
}

// Facts is a flat mapping of field name to typed value for one
// applicant+scheme pair.
type Facts map[string]Value

// Activation converts facts into the expression runtime input map.
func (f Facts) Activation() map[string]any {
	out := make(map[string]any, len(f))
	for name, v := range f {
		out[name] = v.Native()
	}
	return out
}

// Has reports whether the named field is present.
func (f Facts) Has(name string) bool {
	_, ok := f[name]
	return ok
}

// Provider fetches facts for one applicant+scheme pair. Implementations must
// fail explicitly (sentinel.ErrNotFound) rather than return partial data when
// the applicant or scheme is unknown.
type Provider interface {
	GetFacts(ctx context.Context, applicantID id.ApplicantID, schemeID id.SchemeID) (Facts, error)
}

// Lister enumerates applicants registered under a scheme, optionally filtered
// by district. Used by batch worklist generation.
type Lister interface {
	ListApplicants(ctx context.Context, schemeID id.SchemeID, district string) ([]id.ApplicantID, error)
}
