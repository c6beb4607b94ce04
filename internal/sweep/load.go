package sweep

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Load reads a sweep definition, choosing the decoder by file extension:
// .json, .yaml/.yml or .cue.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sweep file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".cue":
		return ParseCUE(filepath.Base(path), data)
	default:
		return nil, fmt.Errorf("unsupported sweep file extension %q (want .json, .yaml, .yml or .cue)", ext)
	}
}

// ParseJSON decodes a JSON sweep document, keeping member order.
func ParseJSON(data []byte) (*Spec, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse sweep json: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("parse sweep json: top level must be an object")
	}

	spec := &Spec{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse sweep json: %w", err)
		}
		name := tok.(string)

		var entry struct {
			SweepType string          `json:"sweep_type"`
			Value     json.RawMessage `json:"value"`
		}
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("parse sweep json: parameter %q: %w", name, err)
		}

		var value any
		if len(entry.Value) > 0 {
			vdec := json.NewDecoder(bytes.NewReader(entry.Value))
			vdec.UseNumber()
			if err := vdec.Decode(&value); err != nil {
				return nil, fmt.Errorf("parse sweep json: parameter %q: %w", name, err)
			}
		}
		value, err = normalize(value)
		if err != nil {
			return nil, definitionErrorf(name, "%v", err)
		}

		if err := spec.Add(name, Rule{Kind: Kind(entry.SweepType), Value: value}); err != nil {
			return nil, err
		}
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parse sweep json: %w", err)
	}
	return spec, nil
}

// ParseYAML decodes a YAML sweep document, keeping mapping order.
func ParseYAML(data []byte) (*Spec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sweep yaml: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("parse sweep yaml: empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse sweep yaml: top level must be a mapping")
	}

	spec := &Spec{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value

		var entry struct {
			SweepType string `yaml:"sweep_type"`
			Value     any    `yaml:"value"`
		}
		if err := root.Content[i+1].Decode(&entry); err != nil {
			return nil, fmt.Errorf("parse sweep yaml: parameter %q: %w", name, err)
		}
		value, err := normalize(entry.Value)
		if err != nil {
			return nil, definitionErrorf(name, "%v", err)
		}

		if err := spec.Add(name, Rule{Kind: Kind(entry.SweepType), Value: value}); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

// ParseCUE evaluates a CUE sweep document. Parameters are taken in field
// declaration order; every field must be concrete.
func ParseCUE(filename string, data []byte) (*Spec, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("parse sweep cue: %w", err)
	}

	iter, err := value.Fields()
	if err != nil {
		return nil, fmt.Errorf("parse sweep cue: %w", err)
	}

	spec := &Spec{}
	for iter.Next() {
		name := iter.Label()
		entry := iter.Value()

		var kind string
		if st := entry.LookupPath(cue.ParsePath("sweep_type")); st.Exists() {
			kind, err = st.String()
			if err != nil {
				return nil, definitionErrorf(name, "sweep_type: %v", err)
			}
		}

		var raw any
		if v := entry.LookupPath(cue.ParsePath("value")); v.Exists() {
			raw, err = fromCUE(v)
			if err != nil {
				return nil, definitionErrorf(name, "value: %v", err)
			}
		}

		if err := spec.Add(name, Rule{Kind: Kind(kind), Value: raw}); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

func fromCUE(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind:
		return v.Float64()
	case cue.StringKind:
		return v.String()
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, err
		}
		out := []any{}
		for iter.Next() {
			elem, err := fromCUE(iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, err
		}
		out := map[string]any{}
		for iter.Next() {
			elem, err := fromCUE(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", iter.Label(), err)
			}
			out[iter.Label()] = elem
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value is not concrete (%v)", v.Kind())
	}
}

// normalize maps decoder-specific representations onto the value set the
// canonical encoder accepts: json.Number and int become int64 or float64.
func normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, int64, float64:
		return val, nil
	case int:
		return int64(val), nil
	case uint64:
		return float64(val), nil
	case json.Number:
		if !strings.ContainsAny(val.String(), ".eE") {
			if n, err := val.Int64(); err == nil {
				return n, nil
			}
		}
		return val.Float64()
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			n, err := normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			n, err := normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
