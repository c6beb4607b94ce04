package sweep

import (
	"fmt"

	"github.com/roach88/sweeps/internal/canonical"
)

// Kind names a sweep rule.
type Kind string

const (
	// KindConstant is a single numeric value.
	KindConstant Kind = "constant"
	// KindManual is an explicit, non-empty list of values.
	KindManual Kind = "manual"
	// KindLinspace is [start, stop, count]: count evenly spaced floats, both ends included.
	KindLinspace Kind = "linspace"
	// KindString is a single literal that is never expanded.
	KindString Kind = "string"
)

// ValidKinds lists the accepted sweep_type values.
var ValidKinds = []Kind{KindConstant, KindManual, KindLinspace, KindString}

// Rule is one parameter's sweep rule as written in the sweep document.
// Value holds decoded document values: nil, bool, int64, float64, string,
// []any or map[string]any.
type Rule struct {
	Kind  Kind
	Value any
}

// Param pairs a parameter name with its rule.
type Param struct {
	Name string
	Rule Rule
}

// Spec is a parsed sweep definition.
//
// INVARIANT: Params keeps document insertion order. Expansion order depends
// on it, so loaders must never go through a Go map.
type Spec struct {
	Params []Param
}

// Add appends a parameter. Returns a DefinitionError if name is already defined.
func (s *Spec) Add(name string, rule Rule) error {
	for _, p := range s.Params {
		if p.Name == name {
			return &DefinitionError{Param: name, Reason: "defined more than once"}
		}
	}
	s.Params = append(s.Params, Param{Name: name, Rule: rule})
	return nil
}

// Names returns the parameter names in insertion order.
func (s *Spec) Names() []string {
	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Name
	}
	return names
}

// Document returns the sweep definition as a plain map, in the shape it is
// written on disk: name -> {sweep_type, value}.
func (s *Spec) Document() map[string]any {
	doc := make(map[string]any, len(s.Params))
	for _, p := range s.Params {
		doc[p.Name] = map[string]any{
			"sweep_type": string(p.Rule.Kind),
			"value":      p.Rule.Value,
		}
	}
	return doc
}

// Fingerprint identifies the sweep definition as a whole. Key order in the
// source document does not affect it.
func (s *Spec) Fingerprint() (string, error) {
	doc, err := canonical.Marshal(s.Document())
	if err != nil {
		return "", fmt.Errorf("sweep fingerprint: %w", err)
	}
	return canonical.Fingerprint(doc), nil
}
