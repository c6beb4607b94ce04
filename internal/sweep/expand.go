package sweep

import (
	"fmt"
	"iter"

	"github.com/roach88/sweeps/internal/canonical"
)

// Run is one element of a sweep's cartesian product.
type Run struct {
	// ID is the content-addressed run folder name.
	ID string

	// Params maps every parameter name to its value for this run.
	Params map[string]any

	// Document is the canonical params.json content ID was computed from.
	Document []byte
}

// Expansion is the resolved form of a Spec. It is immutable and every call to
// All starts a fresh iteration.
type Expansion struct {
	names []string
	axes  [][]any
}

// Expand resolves every rule of spec, failing with a DefinitionError on the
// first invalid rule in insertion order. No run is produced before all rules
// have resolved.
func Expand(spec *Spec) (*Expansion, error) {
	e := &Expansion{
		names: make([]string, len(spec.Params)),
		axes:  make([][]any, len(spec.Params)),
	}
	for i, p := range spec.Params {
		values, err := Resolve(p.Name, p.Rule)
		if err != nil {
			return nil, err
		}
		e.names[i] = p.Name
		e.axes[i] = values
	}
	return e, nil
}

// Len returns the number of runs: the product of every axis length.
func (e *Expansion) Len() int {
	n := 1
	for _, axis := range e.axes {
		n *= len(axis)
	}
	return n
}

// All yields every run in a fixed order: the first parameter varies slowest,
// the last fastest, each axis in its own resolved order.
func (e *Expansion) All() iter.Seq2[Run, error] {
	return func(yield func(Run, error) bool) {
		idx := make([]int, len(e.axes))
		for {
			params := make(map[string]any, len(e.names))
			for i, name := range e.names {
				params[name] = e.axes[i][idx[i]]
			}

			id, doc, err := canonical.RunID(params)
			if err != nil {
				yield(Run{}, fmt.Errorf("expand: %w", err))
				return
			}
			if !yield(Run{ID: id, Params: params, Document: doc}, nil) {
				return
			}

			// Odometer increment, last axis fastest.
			i := len(idx) - 1
			for ; i >= 0; i-- {
				idx[i]++
				if idx[i] < len(e.axes[i]) {
					break
				}
				idx[i] = 0
			}
			if i < 0 {
				return
			}
		}
	}
}

// IDs collects every run id in expansion order.
func (e *Expansion) IDs() ([]string, error) {
	ids := make([]string, 0, e.Len())
	for run, err := range e.All() {
		if err != nil {
			return nil, err
		}
		ids = append(ids, run.ID)
	}
	return ids, nil
}
