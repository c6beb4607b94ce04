package scheduler

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/roach88/sweeps/internal/project"
)

// Manifest records what one invocation decided to run, written before any
// dispatch so a crashed scheduler still leaves its intent behind.
type Manifest struct {
	Timestamp    string
	InvocationID string
	ScriptID     string
	RerunFailed  bool

	// SweepFile restricts the invocation to one sweep; empty means all runs.
	SweepFile string
	Procs     int

	Queued   []string
	Invalid  []string
	InFlight []string
}

// FileName returns <timestamp>.run.
func (m *Manifest) FileName() string {
	return m.Timestamp + ".run"
}

// WriteTo writes the manifest in its line format:
//
//	# RUN FILE FOR SWEEP GENERATED AT <ts>
//	# ...key: value header lines...
//	# ----REQUESTED RFs QUEUED TO RUN----
//	<id>
//	## ---REQUESTED RFs WITH INVALID STATUS---
//	## <id>
//	### --REQUESTED RFs QUEUED OR RUNNING--
//	### <id>
//
// Id lists are written in the order given; callers sort them.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	line := func(s string) {
		k, _ := bw.WriteString(s + "\n")
		n += int64(k)
	}

	rfs := m.SweepFile
	if rfs == "" {
		rfs = "All"
	}

	line("# RUN FILE FOR SWEEP GENERATED AT " + m.Timestamp)
	line("# invocation: " + m.InvocationID)
	line("# script: " + m.ScriptID)
	line("# rerun_failed: " + pyBool(m.RerunFailed))
	line("# rfs: " + rfs)
	line("# procs: " + strconv.Itoa(m.Procs))

	line(project.Header("REQUESTED RFs QUEUED TO RUN", "# "))
	for _, id := range m.Queued {
		line(id)
	}
	line(project.Header("REQUESTED RFs WITH INVALID STATUS", "## "))
	for _, id := range m.Invalid {
		line("## " + id)
	}
	line(project.Header("REQUESTED RFs QUEUED OR RUNNING", "### "))
	for _, id := range m.InFlight {
		line("### " + id)
	}

	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("write manifest: %w", err)
	}
	return n, nil
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
