package project

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/sweeps/internal/ledger"
)

// CreateResult reports what Create did.
type CreateResult struct {
	Created  []string `json:"created"`
	Existing []string `json:"existing"`
	Archived string   `json:"archived"`
}

// Create materializes one run folder per run of sweepFile: params.json plus
// an empty ledger and log. Folders that already exist are left untouched, so
// creating the same sweep twice is a no-op. The sweep file is copied to
// history/<ts>.create<ext>.
func (p *Project) Create(sweepFile string) (*CreateResult, error) {
	if err := p.Init(); err != nil {
		return nil, err
	}
	_, exp, err := p.LoadSweep(sweepFile)
	if err != nil {
		return nil, err
	}

	result := &CreateResult{Created: []string{}, Existing: []string{}}
	for run, err := range exp.All() {
		if err != nil {
			return nil, err
		}

		if err := os.Mkdir(p.RunPath(run.ID), 0o755); err != nil {
			if errors.Is(err, os.ErrExist) {
				result.Existing = append(result.Existing, run.ID)
				continue
			}
			return nil, fmt.Errorf("create run %s: %w", run.ID, err)
		}
		if err := os.WriteFile(p.ParamsPath(run.ID), run.Document, 0o644); err != nil {
			return nil, fmt.Errorf("create run %s: %w", run.ID, err)
		}
		for _, path := range []string{p.LedgerPath(run.ID), p.LogPath(run.ID)} {
			if err := os.WriteFile(path, nil, 0o644); err != nil {
				return nil, fmt.Errorf("create run %s: %w", run.ID, err)
			}
		}
		result.Created = append(result.Created, run.ID)
	}

	archived, err := p.ArchiveCopy(p.Path(sweepFile), archiveName(p.Timestamp(), "create", sweepFile))
	if err != nil {
		return nil, err
	}
	result.Archived = archived

	slog.Info("sweep created", "sweep", sweepFile, "created", len(result.Created), "existing", len(result.Existing))
	return result, nil
}

// DeleteResult reports what Delete did.
type DeleteResult struct {
	Deleted  []string `json:"deleted"`
	Missing  []string `json:"missing"`
	Archived string   `json:"archived"`
}

// Delete removes the run folder of every run of sweepFile, results included,
// and copies the sweep file to history/<ts>.delete<ext>.
func (p *Project) Delete(sweepFile string) (*DeleteResult, error) {
	ids, err := p.SweepIDs(sweepFile)
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{Deleted: []string{}, Missing: []string{}}
	for _, id := range ids {
		if _, err := os.Stat(p.RunPath(id)); errors.Is(err, os.ErrNotExist) {
			result.Missing = append(result.Missing, id)
			continue
		}
		if err := os.RemoveAll(p.RunPath(id)); err != nil {
			return nil, fmt.Errorf("delete run %s: %w", id, err)
		}
		result.Deleted = append(result.Deleted, id)
	}

	archived, err := p.ArchiveCopy(p.Path(sweepFile), archiveName(p.Timestamp(), "delete", sweepFile))
	if err != nil {
		return nil, err
	}
	result.Archived = archived

	slog.Info("sweep deleted", "sweep", sweepFile, "deleted", len(result.Deleted), "missing", len(result.Missing))
	return result, nil
}

// ListRuns returns the run folder names under rfs/. Hidden entries are
// ignored; other non-directory entries are logged and skipped.
func (p *Project) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(p.RunsPath())
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !e.IsDir() {
			slog.Warn("entry in rfs directory is not a run folder, skipped", "entry", e.Name())
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

// Status folds the ledger of every run folder for scriptID and buckets the
// ids by state. When only is non-nil the table is restricted to those ids;
// ids without a run folder are dropped.
func (p *Project) Status(scriptID string, only []string) (ledger.Table, error) {
	ids, err := p.ListRuns()
	if err != nil {
		return nil, err
	}

	table := ledger.NewTable()
	for _, id := range ids {
		state, err := ledger.StateOf(p.LedgerPath(id), scriptID)
		if err != nil {
			return nil, fmt.Errorf("status of %s: %w", id, err)
		}
		table.Add(state, id)
	}
	table.Sort()

	if only != nil {
		return table.Restrict(only), nil
	}
	return table, nil
}
