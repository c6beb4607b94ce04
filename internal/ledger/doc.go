// Package ledger implements the per-run status ledger: an append-only text
// file whose lines are the only record of a run's lifecycle.
//
// Each line has three fields joined by " | ":
//
//	  QUEUED | 2024-01-02_03-04-05 | script.py@5d41402abc4b2a76b9719d911017c592
//
// There is no separate state file. A run's state is recomputed on demand by
// folding its ledger for one script identity (see Fold), so the state
// survives crashes exactly as far as the appended lines do.
//
// # Critical Patterns
//
// Append-only:
//   - Writer opens with O_APPEND and syncs after each line
//   - Lines are never rewritten, reordered or truncated
//
// Script lineage:
//   - Entries whose script identity differs from the query are skipped
//   - A ledger may carry several lineages side by side
//
// Sticky INVALID:
//   - The first line with no valid transition yields INVALID
//   - No later line can leave INVALID within the same scan
package ledger
