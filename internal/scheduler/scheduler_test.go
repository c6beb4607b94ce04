package scheduler

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sweeps/internal/catalog"
	"github.com/roach88/sweeps/internal/ledger"
	"github.com/roach88/sweeps/internal/project"
	"github.com/roach88/sweeps/internal/supervisor"
	"github.com/roach88/sweeps/internal/testutil"
)

const twoRunSweep = `{
	"a": {"sweep_type": "constant", "value": 1},
	"b": {"sweep_type": "manual", "value": [1, 2]}
}`

var twoRunIDs = []string{"003046309895da8f", "59f34f64ff1615a2"}

// setupProject creates a project holding bin/job.sh with body and the two-run
// sweep materialized under rfs/.
func setupProject(t *testing.T, body string) *project.Project {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, project.BinDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, project.BinDir, "job.sh"), []byte(body), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sweep.json"), []byte(twoRunSweep), 0644))

	p, err := project.Open(root, project.WithClock(testutil.NewDeterministicClock().Now))
	require.NoError(t, err)
	_, err = p.Create("sweep.json")
	require.NoError(t, err)
	return p
}

func newScheduler(p *project.Project, runner Runner, opts ...Option) *Scheduler {
	opts = append([]Option{WithProcs(2), WithIDGenerator(testutil.NewFixedIDGenerator(""))}, opts...)
	return New(p, runner, opts...)
}

func stateOf(t *testing.T, p *project.Project, id string) ledger.State {
	t.Helper()
	scriptID, err := p.ScriptID("job.sh")
	require.NoError(t, err)
	state, err := ledger.StateOf(p.LedgerPath(id), scriptID)
	require.NoError(t, err)
	return state
}

func actions(t *testing.T, p *project.Project, id string) []ledger.Action {
	t.Helper()
	entries, err := ledger.ReadFile(p.LedgerPath(id))
	require.NoError(t, err)
	var out []ledger.Action
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

// countingRunner records how many attempts were requested.
type countingRunner struct {
	calls atomic.Int32
}

func (r *countingRunner) Run(ctx context.Context, a supervisor.Attempt) (supervisor.Result, error) {
	r.calls.Add(1)
	return supervisor.Result{Outcome: supervisor.OutcomeFinished}, nil
}

func TestManifestGolden(t *testing.T) {
	m := &Manifest{
		Timestamp:    "2024-01-02_03-04-05",
		InvocationID: "test-invocation",
		ScriptID:     "job.sh@dee5c46989f5ec092311188f4fe829c3",
		RerunFailed:  true,
		SweepFile:    "sweep.json",
		Procs:        4,
		Queued:       []string{"003046309895da8f", "59f34f64ff1615a2"},
		Invalid:      []string{"07ff8f7387242051"},
		InFlight:     []string{"1245bc2ea24037e9"},
	}
	assert.Equal(t, "2024-01-02_03-04-05.run", m.FileName())

	var buf bytes.Buffer
	n, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "manifest", buf.Bytes())
}

func TestRun_TwoRunsFinish(t *testing.T) {
	p := setupProject(t, "test -f \"$1/params.json\"\n")
	s := newScheduler(p, supervisor.New("/bin/sh"))

	report, err := s.Run(context.Background(), Request{Script: "job.sh", SweepFile: "sweep.json"})
	require.NoError(t, err)
	assert.Equal(t, "test-invocation", report.InvocationID)
	assert.Equal(t, twoRunIDs, report.Queued)
	assert.Equal(t, twoRunIDs, report.Finished)
	assert.Empty(t, report.Failed)
	assert.Empty(t, report.Killed)
	assert.False(t, report.Interrupted)
	assert.False(t, report.AnyFailed())

	for _, id := range twoRunIDs {
		assert.Equal(t, ledger.StateFinished, stateOf(t, p, id))
		assert.Equal(t, []ledger.Action{ledger.ActionQueued, ledger.ActionStarted, ledger.ActionFinished}, actions(t, p, id))
	}

	// Manifest, sweep file and script snapshot end up in history/.
	assert.FileExists(t, report.Manifest)
	assert.Equal(t, p.HistoryPath(), filepath.Dir(report.Manifest))
	ts := filepath.Base(report.Manifest[:len(report.Manifest)-len(".run")])
	assert.FileExists(t, filepath.Join(p.HistoryPath(), ts+".script"))
	assert.FileExists(t, filepath.Join(p.HistoryPath(), ts+".sweep.json"))
	assert.NoFileExists(t, p.Path("sweep.json"))
	assert.NoFileExists(t, p.Path(ts+".run"))

	manifest, err := os.ReadFile(report.Manifest)
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "# invocation: test-invocation")
	assert.Contains(t, string(manifest), "\n"+twoRunIDs[0]+"\n")
}

func TestRun_EmptyRunnableSetSpawnsNothing(t *testing.T) {
	p := setupProject(t, "exit 0\n")
	_, err := newScheduler(p, supervisor.New("/bin/sh")).Run(context.Background(), Request{Script: "job.sh"})
	require.NoError(t, err)

	runner := &countingRunner{}
	report, err := newScheduler(p, runner).Run(context.Background(), Request{Script: "job.sh"})
	require.NoError(t, err)
	assert.Zero(t, runner.calls.Load())
	assert.Empty(t, report.Queued)
	assert.False(t, report.AnyFailed())
	assert.FileExists(t, report.Manifest)
}

func TestRun_FailedRunsNeedRerunFlag(t *testing.T) {
	p := setupProject(t, "if [ -f \"$1/../../fail\" ]; then exit 1; fi\n")
	require.NoError(t, os.WriteFile(p.Path("fail"), nil, 0644))

	report, err := newScheduler(p, supervisor.New("/bin/sh")).Run(context.Background(), Request{Script: "job.sh"})
	require.NoError(t, err)
	assert.Equal(t, twoRunIDs, report.Failed)
	assert.True(t, report.AnyFailed())
	for _, id := range twoRunIDs {
		assert.Equal(t, ledger.StateFailed, stateOf(t, p, id))
	}

	require.NoError(t, os.Remove(p.Path("fail")))

	runner := &countingRunner{}
	report, err = newScheduler(p, runner).Run(context.Background(), Request{Script: "job.sh"})
	require.NoError(t, err)
	assert.Empty(t, report.Queued)
	assert.Zero(t, runner.calls.Load())

	report, err = newScheduler(p, supervisor.New("/bin/sh")).Run(context.Background(), Request{Script: "job.sh", RerunFailed: true})
	require.NoError(t, err)
	assert.Equal(t, twoRunIDs, report.Finished)
	for _, id := range twoRunIDs {
		assert.Equal(t, ledger.StateFinished, stateOf(t, p, id))
	}
}

func TestRun_ExcludesInFlightRuns(t *testing.T) {
	p := setupProject(t, "exit 0\n")
	scriptID, err := p.ScriptID("job.sh")
	require.NoError(t, err)
	require.NoError(t, ledger.AppendFile(p.LedgerPath(twoRunIDs[0]), ledger.ActionQueued, scriptID, nil))

	report, err := newScheduler(p, supervisor.New("/bin/sh")).Run(context.Background(), Request{Script: "job.sh"})
	require.NoError(t, err)
	assert.Equal(t, []string{twoRunIDs[1]}, report.Queued)
	assert.Equal(t, []string{twoRunIDs[0]}, report.InFlight)

	// The in-flight run is left exactly as it was.
	assert.Equal(t, []ledger.Action{ledger.ActionQueued}, actions(t, p, twoRunIDs[0]))
	assert.Equal(t, ledger.StateQueued, stateOf(t, p, twoRunIDs[0]))
	assert.Equal(t, ledger.StateFinished, stateOf(t, p, twoRunIDs[1]))
}

func TestRun_CorruptLedgerIsInvalidNotFatal(t *testing.T) {
	p := setupProject(t, "exit 0\n")
	garbage := strings.Repeat("#", 70*1024) + "\n"
	require.NoError(t, os.WriteFile(p.LedgerPath(twoRunIDs[0]), []byte(garbage), 0o644))

	runner := &countingRunner{}
	report, err := newScheduler(p, runner).Run(context.Background(), Request{Script: "job.sh"})
	require.NoError(t, err)
	assert.Equal(t, []string{twoRunIDs[0]}, report.Invalid)
	assert.Equal(t, []string{twoRunIDs[1]}, report.Queued)
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Equal(t, ledger.StateInvalid, stateOf(t, p, twoRunIDs[0]))
}

func TestRun_OnlyRestrictsRunnableSet(t *testing.T) {
	p := setupProject(t, "exit 0\n")
	runner := &countingRunner{}

	report, err := newScheduler(p, runner).Run(context.Background(), Request{
		Script:    "job.sh",
		SweepFile: "sweep.json",
		Only:      []string{twoRunIDs[1], "not-in-sweep"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{twoRunIDs[1]}, report.Queued)
	assert.EqualValues(t, 1, runner.calls.Load())
}

func TestRun_InterruptKillsQueuedAndStrandsRunning(t *testing.T) {
	p := setupProject(t, "exec sleep 30\n")
	s := newScheduler(p, supervisor.New("/bin/sh"), WithProcs(1))

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	time.AfterFunc(300*time.Millisecond, func() { cancel(&InterruptError{Signal: syscall.SIGINT}) })

	start := time.Now()
	report, err := s.Run(ctx, Request{Script: "job.sh", SweepFile: "sweep.json"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, IsInterrupt(err))
	assert.True(t, report.Interrupted)

	// One slot: the first run was started and abandoned, the second never left QUEUED.
	assert.Equal(t, []string{twoRunIDs[0]}, report.Stranded)
	assert.Equal(t, []string{twoRunIDs[1]}, report.Killed)
	assert.Equal(t, ledger.StateRunning, stateOf(t, p, twoRunIDs[0]))
	assert.Equal(t, ledger.StateNew, stateOf(t, p, twoRunIDs[1]))
	assert.Equal(t, []ledger.Action{ledger.ActionQueued, ledger.ActionKilled}, actions(t, p, twoRunIDs[1]))

	// The sweep file stays so the sweep can be resumed; the manifest is archived.
	assert.FileExists(t, p.Path("sweep.json"))
	assert.FileExists(t, report.Manifest)

	log, err := os.ReadFile(p.LogPath(twoRunIDs[0]))
	require.NoError(t, err)
	assert.Contains(t, string(log), "SIGNAL interrupt RECEIVED: TERMINATING SCRIPT")
}

func TestRun_KilledRunIsRunnableAgain(t *testing.T) {
	p := setupProject(t, "exit 0\n")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(&InterruptError{Signal: syscall.SIGTERM})

	report, err := newScheduler(p, supervisor.New("/bin/sh")).Run(ctx, Request{Script: "job.sh"})
	require.Error(t, err)
	assert.Equal(t, twoRunIDs, report.Killed)
	for _, id := range twoRunIDs {
		assert.Equal(t, ledger.StateNew, stateOf(t, p, id))
	}

	report, err = newScheduler(p, supervisor.New("/bin/sh")).Run(context.Background(), Request{Script: "job.sh"})
	require.NoError(t, err)
	assert.Equal(t, twoRunIDs, report.Queued)
	assert.Equal(t, twoRunIDs, report.Finished)
}

func TestRun_SpawnFailureReturnsRunsToNew(t *testing.T) {
	p := setupProject(t, "exit 0\n")
	s := newScheduler(p, supervisor.New(filepath.Join(t.TempDir(), "missing-interpreter")))

	report, err := s.Run(context.Background(), Request{Script: "job.sh"})
	require.NoError(t, err)
	assert.Equal(t, twoRunIDs, report.Errored)
	assert.Equal(t, twoRunIDs, report.Killed)
	assert.True(t, report.AnyFailed())
	for _, id := range twoRunIDs {
		assert.Equal(t, ledger.StateNew, stateOf(t, p, id))
	}
}

func TestRun_RecordsIntoCatalog(t *testing.T) {
	p := setupProject(t, "exit 0\n")
	cat, err := catalog.Open(filepath.Join(p.HistoryPath(), catalog.FileName))
	require.NoError(t, err)
	defer cat.Close()

	report, err := newScheduler(p, supervisor.New("/bin/sh"), WithRecorder(cat)).
		Run(context.Background(), Request{Script: "job.sh", SweepFile: "sweep.json"})
	require.NoError(t, err)

	ctx := context.Background()
	invocations, err := cat.Invocations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, invocations, 1)
	assert.Equal(t, report.InvocationID, invocations[0].ID)
	assert.Equal(t, "25dab0d23bf76c4a", invocations[0].SweepFingerprint)
	assert.Equal(t, 2, invocations[0].Queued)
	assert.Equal(t, report.Manifest, invocations[0].Manifest)

	attempts, err := cat.Attempts(ctx, report.InvocationID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	for _, a := range attempts {
		assert.Equal(t, "finished", a.Outcome)
	}
}

func TestRun_MissingScript(t *testing.T) {
	p := setupProject(t, "exit 0\n")
	_, err := newScheduler(p, &countingRunner{}).Run(context.Background(), Request{Script: "nope.sh"})
	require.Error(t, err)
}

func TestInterruptErrorExitCode(t *testing.T) {
	assert.Equal(t, 130, (&InterruptError{Signal: syscall.SIGINT}).ExitCode())
	assert.Equal(t, 143, (&InterruptError{Signal: syscall.SIGTERM}).ExitCode())
	assert.Equal(t, 131, (&InterruptError{Signal: syscall.SIGQUIT}).ExitCode())
	assert.False(t, IsInterrupt(context.Canceled))
}
