// Package catalog keeps a SQLite index of past scheduler invocations and
// their attempts under history/catalog.db.
//
// The catalog is derived bookkeeping for the history command. Run state is
// always folded from the per-run ledgers; nothing here is read back to decide
// what to run.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: attempts must reference an invocation
//
// Listings are ordered deterministically: invocations by started_at then id,
// attempts by seq then run_id.
package catalog
