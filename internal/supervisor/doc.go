// Package supervisor runs the external program for one run folder and
// records the attempt in the run's ledger and log.
package supervisor
