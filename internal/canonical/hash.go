package canonical

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// FingerprintLen is the number of hex characters kept from the content hash.
const FingerprintLen = 16

// Fingerprint returns the first FingerprintLen hex characters of the MD5 of doc.
//
// The same canonical document always yields the same fingerprint; run folder
// names and the data/<fingerprint>/ directories both depend on this.
func Fingerprint(doc []byte) string {
	sum := md5.Sum(doc)
	return hex.EncodeToString(sum[:])[:FingerprintLen]
}

// RunID computes the content-addressed identity of one parameter assignment.
// Returns the id together with the canonical document it was computed from,
// which is what gets written to params.json.
func RunID(params map[string]any) (string, []byte, error) {
	doc, err := Marshal(params)
	if err != nil {
		return "", nil, fmt.Errorf("RunID: failed to marshal: %w", err)
	}
	return Fingerprint(doc), doc, nil
}

// ScriptID binds a ledger entry to an exact version of a script.
// Format: <script-filename>@<md5-hex>
func ScriptID(name string, content []byte) string {
	sum := md5.Sum(content)
	return name + "@" + hex.EncodeToString(sum[:])
}

// MustRunID is like RunID but panics on error.
// Use only in tests or when params are known to be valid.
func MustRunID(params map[string]any) string {
	id, _, err := RunID(params)
	if err != nil {
		panic(err)
	}
	return id
}
