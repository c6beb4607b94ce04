package project

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/sweeps/internal/canonical"
	"github.com/roach88/sweeps/internal/ledger"
	"github.com/roach88/sweeps/internal/sweep"
)

// Directory and file names of the on-disk layout.
const (
	BinDir     = "bin"
	RunsDir    = "rfs"
	HistoryDir = "history"
	DataDir    = "data"

	ParamsFile = "params.json"
	LedgerFile = "status.txt"
	LogFile    = "log.txt"
)

// ErrNoBinDir is returned by Init when the project has no bin/ directory.
var ErrNoBinDir = errors.New("bin directory missing, please include it and place scripts in it")

// Project is a sweep project rooted at a directory:
//
//	<root>/bin/                 scripts run by the external program
//	<root>/rfs/<id>/            one run folder per parameter assignment
//	<root>/history/             timestamped snapshots of sweeps, manifests, scripts
//	<root>/data/<fingerprint>/  aggregation output
type Project struct {
	Root string

	// Now supplies wall-clock time for timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Option configures a Project.
type Option func(*Project)

// WithClock overrides the project's wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Project) {
		p.Now = now
	}
}

// Open returns the project rooted at root. root must be an existing directory.
func Open(root string, opts ...Option) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open project: not a directory: %s", abs)
	}

	p := &Project{Root: abs, Now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Init creates rfs/, history/ and data/ if missing. The project must already
// contain bin/.
func (p *Project) Init() error {
	for _, dir := range []string{RunsDir, HistoryDir, DataDir} {
		if err := os.MkdirAll(filepath.Join(p.Root, dir), 0o755); err != nil {
			return fmt.Errorf("init project: %w", err)
		}
	}
	info, err := os.Stat(filepath.Join(p.Root, BinDir))
	if err != nil || !info.IsDir() {
		return ErrNoBinDir
	}
	return nil
}

// Timestamp returns the current wall-clock time in ledger format.
func (p *Project) Timestamp() string {
	return ledger.Timestamp(p.Now())
}

// Path resolves name against the project root unless it is absolute.
func (p *Project) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.Root, name)
}

// RunsPath returns <root>/rfs.
func (p *Project) RunsPath() string { return filepath.Join(p.Root, RunsDir) }

// HistoryPath returns <root>/history.
func (p *Project) HistoryPath() string { return filepath.Join(p.Root, HistoryDir) }

// DataPath returns <root>/data.
func (p *Project) DataPath() string { return filepath.Join(p.Root, DataDir) }

// RunPath returns the run folder of id.
func (p *Project) RunPath(id string) string { return filepath.Join(p.Root, RunsDir, id) }

// ParamsPath returns the params document of id.
func (p *Project) ParamsPath(id string) string { return filepath.Join(p.RunPath(id), ParamsFile) }

// LedgerPath returns the status ledger of id.
func (p *Project) LedgerPath(id string) string { return filepath.Join(p.RunPath(id), LedgerFile) }

// LogPath returns the execution log of id.
func (p *Project) LogPath(id string) string { return filepath.Join(p.RunPath(id), LogFile) }

// ScriptPath returns <root>/bin/<script>.
func (p *Project) ScriptPath(script string) string {
	return filepath.Join(p.Root, BinDir, script)
}

// ScriptID returns the identity <script>@<md5> of bin/<script>.
func (p *Project) ScriptID(script string) (string, error) {
	content, err := os.ReadFile(p.ScriptPath(script))
	if err != nil {
		return "", fmt.Errorf("script identity: %w", err)
	}
	return canonical.ScriptID(script, content), nil
}

// LoadSweep reads and expands a sweep file relative to the project root.
func (p *Project) LoadSweep(sweepFile string) (*sweep.Spec, *sweep.Expansion, error) {
	spec, err := sweep.Load(p.Path(sweepFile))
	if err != nil {
		return nil, nil, err
	}
	exp, err := sweep.Expand(spec)
	if err != nil {
		return nil, nil, err
	}
	return spec, exp, nil
}

// SweepIDs returns the run ids of a sweep file in expansion order.
func (p *Project) SweepIDs(sweepFile string) ([]string, error) {
	_, exp, err := p.LoadSweep(sweepFile)
	if err != nil {
		return nil, err
	}
	return exp.IDs()
}

// ArchiveCopy copies src into history/ as name and returns the new path.
func (p *Project) ArchiveCopy(src, name string) (string, error) {
	if err := os.MkdirAll(p.HistoryPath(), 0o755); err != nil {
		return "", fmt.Errorf("archive %s: %w", name, err)
	}
	dst := filepath.Join(p.HistoryPath(), name)
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("archive %s: %w", name, err)
	}
	return dst, nil
}

// ArchiveMove moves src into history/ as name and returns the new path.
func (p *Project) ArchiveMove(src, name string) (string, error) {
	if err := os.MkdirAll(p.HistoryPath(), 0o755); err != nil {
		return "", fmt.Errorf("archive %s: %w", name, err)
	}
	dst := filepath.Join(p.HistoryPath(), name)
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("archive %s: %w", name, err)
	}
	return dst, nil
}

// archiveName builds <ts>.<kind><ext> from a sweep file name.
func archiveName(ts, kind, sweepFile string) string {
	return ts + "." + kind + strings.ToLower(filepath.Ext(sweepFile))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
