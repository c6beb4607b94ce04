// Package scheduler decides which runs of a project to execute for a script,
// commits that decision to the run ledgers, and drives a bounded pool of
// supervisor attempts.
//
// # Admission
//
// A run is runnable when its ledger folds to NEW, or FAILED when a rerun of
// failed runs is requested. Runs folding to QUEUED or RUNNING belong to
// another (possibly dead) invocation and are only reported; recovering them
// takes an explicit KILLED or rerun decision.
//
// # Cancellation
//
// The caller cancels the context passed to Run, normally with an
// *InterruptError cause set from a signal handler. Cancellation stops new
// dispatches, kills every in-flight child, waits for the pool to drain and
// then appends KILLED to every run still QUEUED.
package scheduler
