// Package canonical produces the deterministic params documents that run
// folders are keyed by, and the MD5 fingerprints derived from them.
//
// The document layout matches a sorted-key, four-space indented, ASCII-only
// JSON rendering, so run ids stay stable across re-creation of the same sweep
// and across tools that read params.json.
//
// This package imports nothing internal.
package canonical
