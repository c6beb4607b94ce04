// Package project manages the on-disk layout of a sweep project: run folder
// materialization, deletion, history snapshots, script identity and status
// collection over every run folder.
//
// A run folder is created once, keyed by its run id, and afterwards only
// grows: its ledger and log are append-only and result files belong to the
// external program.
package project
