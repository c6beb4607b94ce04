// Package aggregate reads what the external program left in run folders and
// collects a closed sweep into data/<sweep-fingerprint>/.
//
// Result artifacts are decoded by a ResultDecoder chosen from a Registry by
// file extension.
package aggregate
