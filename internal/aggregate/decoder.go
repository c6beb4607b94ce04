package aggregate

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/golang/snappy"
)

// ResultDecoder decodes one result artifact into zero or more values.
type ResultDecoder interface {
	Decode(r io.Reader) ([]any, error)
}

// DecoderFunc adapts a function to ResultDecoder.
type DecoderFunc func(r io.Reader) ([]any, error)

// Decode implements ResultDecoder.
func (f DecoderFunc) Decode(r io.Reader) ([]any, error) { return f(r) }

// Registry maps file extensions to decoders. Lookup prefers the longest
// matching extension, so ".json.gz" wins over ".json".
type Registry struct {
	exts     []string
	decoders map[string]ResultDecoder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]ResultDecoder)}
}

// DefaultRegistry returns a registry with the built-in decoders:
//
//	.json     one JSON document
//	.ndjson   one JSON document per line
//	.json.gz  gzip-compressed JSON document
//	.json.sz  snappy-framed JSON document
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(".json", DecoderFunc(DecodeJSON))
	r.Register(".ndjson", DecoderFunc(DecodeNDJSON))
	r.Register(".json.gz", DecoderFunc(DecodeGzipJSON))
	r.Register(".json.sz", DecoderFunc(DecodeSnappyJSON))
	return r
}

// Register adds or replaces the decoder for ext (including the dot).
func (r *Registry) Register(ext string, d ResultDecoder) {
	ext = strings.ToLower(ext)
	if _, ok := r.decoders[ext]; !ok {
		r.exts = append(r.exts, ext)
		sort.Slice(r.exts, func(i, j int) bool {
			if len(r.exts[i]) != len(r.exts[j]) {
				return len(r.exts[i]) > len(r.exts[j])
			}
			return r.exts[i] < r.exts[j]
		})
	}
	r.decoders[ext] = d
}

// Lookup returns the decoder for a file name.
func (r *Registry) Lookup(name string) (ResultDecoder, bool) {
	lower := strings.ToLower(name)
	for _, ext := range r.exts {
		if strings.HasSuffix(lower, ext) && len(lower) > len(ext) {
			return r.decoders[ext], true
		}
	}
	return nil, false
}

// Extensions returns the registered extensions, longest first.
func (r *Registry) Extensions() []string {
	return append([]string(nil), r.exts...)
}

// DecodeJSON decodes exactly one JSON document. Numbers keep their literal
// form as json.Number.
func DecodeJSON(r io.Reader) ([]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decode json: trailing data after document")
	}
	return []any{v}, nil
}

// DecodeNDJSON decodes one JSON document per non-blank line.
func DecodeNDJSON(r io.Reader) ([]any, error) {
	var out []any
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		vals, err := DecodeJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, vals...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("decode ndjson: %w", err)
	}
	return out, nil
}

// DecodeGzipJSON decodes a gzip-compressed JSON document.
func DecodeGzipJSON(r io.Reader) ([]any, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("decode gzip: %w", err)
	}
	defer zr.Close()
	return DecodeJSON(zr)
}

// DecodeSnappyJSON decodes a JSON document in the snappy framing format.
func DecodeSnappyJSON(r io.Reader) ([]any, error) {
	return DecodeJSON(snappy.NewReader(r))
}
