package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func testInvocation(id, startedAt string) Invocation {
	return Invocation{
		ID:               id,
		Script:           "train.py",
		ScriptID:         "train.py@0123",
		SweepFile:        "sweep.json",
		SweepFingerprint: "25dab0d23bf76c4a",
		Procs:            2,
		StartedAt:        startedAt,
	}
}

func TestOpen_IsIdempotentAndConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	for i := 0; i < 3; i++ {
		c, err := Open(path)
		require.NoError(t, err, "open iteration %d", i)
		require.NoError(t, c.Close())
	}

	c, err := Open(path)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	for name, want := range map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"user_version": fmt.Sprint(currentSchemaVersion),
	} {
		got, err := c.pragma(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, want, got, "pragma %s", name)
	}

	var index string
	require.NoError(t, c.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_attempts_run'`).Scan(&index))
	assert.Equal(t, "idx_attempts_run", index)
}

func TestInvocationLifecycle(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()

	inv := testInvocation("inv-1", "2024-01-02_03-04-05")
	require.NoError(t, c.RecordInvocation(ctx, inv))
	// Duplicate ids are ignored.
	require.NoError(t, c.RecordInvocation(ctx, inv))

	require.NoError(t, c.RecordAttempt(ctx, Attempt{InvocationID: "inv-1", RunID: "b", Seq: 2, Outcome: "failed", ExitCode: 3}))
	require.NoError(t, c.RecordAttempt(ctx, Attempt{InvocationID: "inv-1", RunID: "a", Seq: 1, Outcome: "finished"}))
	require.NoError(t, c.FinishInvocation(ctx, "inv-1", Summary{
		FinishedAt: "2024-01-02_03-05-00",
		Manifest:   "history/2024-01-02_03-04-05.run",
		Queued:     2,
	}))

	invocations, err := c.Invocations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, invocations, 1)
	got := invocations[0]
	assert.Equal(t, "2024-01-02_03-05-00", got.FinishedAt)
	assert.Equal(t, 2, got.Queued)
	assert.Empty(t, got.Signal)

	attempts, err := c.Attempts(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "a", attempts[0].RunID)
	assert.Equal(t, "b", attempts[1].RunID)
	assert.Equal(t, 3, attempts[1].ExitCode)
}

func TestFinishInvocation_Unknown(t *testing.T) {
	c := createTestCatalog(t)
	err := c.FinishInvocation(context.Background(), "missing", Summary{})
	require.Error(t, err)
}

func TestRecordAttempt_RequiresInvocation(t *testing.T) {
	c := createTestCatalog(t)
	err := c.RecordAttempt(context.Background(), Attempt{InvocationID: "missing", RunID: "a", Outcome: "finished"})
	require.Error(t, err)
}

func TestInvocations_LimitKeepsNewest(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()
	for i, ts := range []string{"2024-01-01_00-00-00", "2024-01-03_00-00-00", "2024-01-02_00-00-00"} {
		require.NoError(t, c.RecordInvocation(ctx, testInvocation(fmt.Sprintf("inv-%d", i), ts)))
	}

	got, err := c.Invocations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "inv-2", got[0].ID)
	assert.Equal(t, "inv-1", got[1].ID)

	empty := createTestCatalog(t)
	none, err := empty.Invocations(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestRunAttempts_AcrossInvocations(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.RecordInvocation(ctx, testInvocation("second", "2024-01-02_00-00-00")))
	require.NoError(t, c.RecordInvocation(ctx, testInvocation("first", "2024-01-01_00-00-00")))
	require.NoError(t, c.RecordAttempt(ctx, Attempt{InvocationID: "second", RunID: "r", Seq: 1, Outcome: "finished"}))
	require.NoError(t, c.RecordAttempt(ctx, Attempt{InvocationID: "first", RunID: "r", Seq: 1, Outcome: "failed", ExitCode: 1}))

	got, err := c.RunAttempts(ctx, "r")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].InvocationID)
	assert.Equal(t, "second", got[1].InvocationID)
}

func TestRecordAttempt_ConcurrentWriters(t *testing.T) {
	c := createTestCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.RecordInvocation(ctx, testInvocation("inv", "2024-01-01_00-00-00")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.RecordAttempt(ctx, Attempt{
				InvocationID: "inv",
				RunID:        fmt.Sprintf("run-%02d", i),
				Seq:          int64(i),
				Outcome:      "finished",
			}))
		}(i)
	}
	wg.Wait()

	got, err := c.Attempts(ctx, "inv")
	require.NoError(t, err)
	assert.Len(t, got, 20)
}
