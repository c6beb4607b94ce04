package aggregate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/sweeps/internal/canonical"
	"github.com/roach88/sweeps/internal/project"
)

// ResultsFile is the per-sweep results table written by Close.
const ResultsFile = "results.ndjson"

// Result is one decoded value found in a run folder.
type Result struct {
	RunID string `json:"run"`
	File  string `json:"file"`
	Value any    `json:"value"`
}

// ErrUnknownFormat is reported for artifacts no decoder is registered for.
var ErrUnknownFormat = errors.New("no decoder registered")

// reserved files of a run folder are never results.
var reserved = map[string]bool{
	project.ParamsFile: true,
	project.LedgerFile: true,
	project.LogFile:    true,
}

// Results yields every value decoded from the result artifacts of run id, in
// file name order. Hidden files, directories and the run folder's own
// params/ledger/log are skipped. An artifact without a registered decoder
// yields an error wrapping ErrUnknownFormat and iteration continues.
func Results(p *project.Project, id string, reg *Registry) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		entries, err := os.ReadDir(p.RunPath(id))
		if err != nil {
			yield(Result{RunID: id}, fmt.Errorf("results of %s: %w", id, err))
			return
		}

		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, ".") || reserved[name] {
				continue
			}

			dec, ok := reg.Lookup(name)
			if !ok {
				if !yield(Result{RunID: id, File: name}, fmt.Errorf("%s/%s: %w", id, name, ErrUnknownFormat)) {
					return
				}
				continue
			}

			values, err := decodeFile(filepath.Join(p.RunPath(id), name), dec)
			if err != nil {
				if !yield(Result{RunID: id, File: name}, fmt.Errorf("%s/%s: %w", id, name, err)) {
					return
				}
				continue
			}
			for _, v := range values {
				if !yield(Result{RunID: id, File: name, Value: v}, nil) {
					return
				}
			}
		}
	}
}

func decodeFile(path string, dec ResultDecoder) ([]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dec.Decode(bufio.NewReader(f))
}

// CloseResult reports what Close wrote.
type CloseResult struct {
	Fingerprint string   `json:"fingerprint"`
	Dir         string   `json:"dir"`
	Runs        []string `json:"runs"`
	Missing     []string `json:"missing"`
	Results     int      `json:"results"`
	Skipped     []string `json:"skipped"`
}

// Close aggregates a sweep into data/<sweep-fingerprint>/:
//
//	params.json     canonical map of run id to params, for runs that exist
//	results.ndjson  one Result per decoded value
//	<sweep file>    copy of the sweep definition
//
// Run ids are deduplicated. Each existing run's params.json must match the
// canonical document its id was derived from.
func Close(p *project.Project, sweepFile string, reg *Registry) (*CloseResult, error) {
	spec, exp, err := p.LoadSweep(sweepFile)
	if err != nil {
		return nil, err
	}
	fingerprint, err := spec.Fingerprint()
	if err != nil {
		return nil, err
	}

	result := &CloseResult{
		Fingerprint: fingerprint,
		Dir:         filepath.Join(p.DataPath(), fingerprint),
		Runs:        []string{},
		Missing:     []string{},
		Skipped:     []string{},
	}

	table := make(map[string]any)
	seen := make(map[string]bool)
	for run, err := range exp.All() {
		if err != nil {
			return nil, err
		}
		if seen[run.ID] {
			continue
		}
		seen[run.ID] = true

		onDisk, err := os.ReadFile(p.ParamsPath(run.ID))
		if errors.Is(err, os.ErrNotExist) {
			result.Missing = append(result.Missing, run.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("close run %s: %w", run.ID, err)
		}
		if !bytes.Equal(onDisk, run.Document) {
			return nil, fmt.Errorf("close run %s: params.json does not match its run id", run.ID)
		}
		table[run.ID] = run.Params
		result.Runs = append(result.Runs, run.ID)
	}

	if err := os.MkdirAll(result.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("close sweep: %w", err)
	}

	doc, err := canonical.Marshal(table)
	if err != nil {
		return nil, fmt.Errorf("close sweep: %w", err)
	}
	if err := os.WriteFile(filepath.Join(result.Dir, project.ParamsFile), doc, 0o644); err != nil {
		return nil, fmt.Errorf("close sweep: %w", err)
	}

	n, skipped, err := writeResults(p, filepath.Join(result.Dir, ResultsFile), result.Runs, reg)
	if err != nil {
		return nil, err
	}
	result.Results = n
	result.Skipped = skipped

	sweepCopy, err := os.ReadFile(p.Path(sweepFile))
	if err != nil {
		return nil, fmt.Errorf("close sweep: %w", err)
	}
	if err := os.WriteFile(filepath.Join(result.Dir, filepath.Base(sweepFile)), sweepCopy, 0o644); err != nil {
		return nil, fmt.Errorf("close sweep: %w", err)
	}

	slog.Info("sweep closed", "sweep", sweepFile, "fingerprint", fingerprint,
		"runs", len(result.Runs), "missing", len(result.Missing), "results", result.Results)
	return result, nil
}

// writeResults writes every decodable result of ids to path, one JSON object
// per line. Artifacts that fail to decode are logged and listed as skipped.
func writeResults(p *project.Project, path string, ids []string, reg *Registry) (int, []string, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, nil, fmt.Errorf("write results: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	n := 0
	skipped := []string{}
	for _, id := range ids {
		for res, err := range Results(p, id, reg) {
			if err != nil {
				slog.Warn("result artifact skipped", "run", id, "file", res.File, "error", err)
				skipped = append(skipped, id+"/"+res.File)
				continue
			}
			if err := enc.Encode(res); err != nil {
				return n, skipped, fmt.Errorf("write results: %w", err)
			}
			n++
		}
	}
	if err := w.Flush(); err != nil {
		return n, skipped, fmt.Errorf("write results: %w", err)
	}
	return n, skipped, f.Close()
}
