package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// Invocation is one scheduler invocation.
type Invocation struct {
	ID               string `json:"id"`
	Script           string `json:"script"`
	ScriptID         string `json:"script_id"`
	SweepFile        string `json:"sweep_file"`
	SweepFingerprint string `json:"sweep_fingerprint"`
	Procs            int    `json:"procs"`
	StartedAt        string `json:"started_at"`

	// Set by FinishInvocation.
	FinishedAt string `json:"finished_at,omitempty"`
	Manifest   string `json:"manifest,omitempty"`
	Queued     int    `json:"queued"`
	Invalid    int    `json:"invalid"`
	InFlight   int    `json:"in_flight"`
	Signal     string `json:"signal,omitempty"`
}

// Summary is what FinishInvocation records once an invocation drains.
type Summary struct {
	FinishedAt string
	Manifest   string
	Queued     int
	Invalid    int
	InFlight   int
	Signal     string
}

// Attempt is the outcome of one run attempt within an invocation.
type Attempt struct {
	InvocationID string `json:"invocation_id"`
	RunID        string `json:"run_id"`
	Seq          int64  `json:"seq"`
	Outcome      string `json:"outcome"`
	ExitCode     int    `json:"exit_code"`
}

// RecordInvocation inserts an invocation. Duplicate ids are ignored.
func (c *Catalog) RecordInvocation(ctx context.Context, inv Invocation) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO invocations
		(id, script, script_id, sweep_file, sweep_fingerprint, procs, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		inv.ID,
		inv.Script,
		inv.ScriptID,
		inv.SweepFile,
		inv.SweepFingerprint,
		inv.Procs,
		inv.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}
	return nil
}

// FinishInvocation stores the summary of invocation id.
func (c *Catalog) FinishInvocation(ctx context.Context, id string, s Summary) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE invocations
		SET finished_at = ?, manifest = ?, queued = ?, invalid = ?, in_flight = ?, signal = ?
		WHERE id = ?
	`,
		s.FinishedAt,
		s.Manifest,
		s.Queued,
		s.Invalid,
		s.InFlight,
		nullString(s.Signal),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish invocation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish invocation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish invocation: unknown invocation %q", id)
	}
	return nil
}

// RecordAttempt inserts an attempt. The invocation must already exist. A
// second attempt for the same run in the same invocation is ignored.
func (c *Catalog) RecordAttempt(ctx context.Context, a Attempt) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO attempts
		(invocation_id, run_id, seq, outcome, exit_code)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		a.InvocationID,
		a.RunID,
		a.Seq,
		a.Outcome,
		a.ExitCode,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Invocations returns the most recent invocations, newest last. limit <= 0
// returns all of them. Returns an empty slice (not nil) when there are none.
func (c *Catalog) Invocations(ctx context.Context, limit int) ([]Invocation, error) {
	query := `
		SELECT id, script, script_id, sweep_file, sweep_fingerprint, procs, started_at,
		       finished_at, manifest, queued, invalid, in_flight, signal
		FROM (
			SELECT * FROM invocations
			ORDER BY started_at DESC, id COLLATE BINARY DESC
			LIMIT ?
		)
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	invocations := []Invocation{}
	for rows.Next() {
		var (
			inv                        Invocation
			finished, manifest, signal sql.NullString
		)
		if err := rows.Scan(
			&inv.ID, &inv.Script, &inv.ScriptID, &inv.SweepFile, &inv.SweepFingerprint, &inv.Procs, &inv.StartedAt,
			&finished, &manifest, &inv.Queued, &inv.Invalid, &inv.InFlight, &signal,
		); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		inv.FinishedAt = finished.String
		inv.Manifest = manifest.String
		inv.Signal = signal.String
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	return invocations, nil
}

// Attempts returns the attempts of one invocation in completion order.
func (c *Catalog) Attempts(ctx context.Context, invocationID string) ([]Attempt, error) {
	return c.queryAttempts(ctx, `
		SELECT invocation_id, run_id, seq, outcome, exit_code
		FROM attempts
		WHERE invocation_id = ?
		ORDER BY seq ASC, run_id COLLATE BINARY ASC
	`, invocationID)
}

// RunAttempts returns every recorded attempt of one run across invocations.
func (c *Catalog) RunAttempts(ctx context.Context, runID string) ([]Attempt, error) {
	return c.queryAttempts(ctx, `
		SELECT a.invocation_id, a.run_id, a.seq, a.outcome, a.exit_code
		FROM attempts a
		JOIN invocations i ON a.invocation_id = i.id
		WHERE a.run_id = ?
		ORDER BY i.started_at ASC, a.invocation_id COLLATE BINARY ASC
	`, runID)
}

func (c *Catalog) queryAttempts(ctx context.Context, query string, arg string) ([]Attempt, error) {
	rows, err := c.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	attempts := []Attempt{}
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.InvocationID, &a.RunID, &a.Seq, &a.Outcome, &a.ExitCode); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
