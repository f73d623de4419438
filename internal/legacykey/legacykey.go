// Package legacykey derives the document key that user records were stored
// under before the app standardized on opaque identifiers.
//
// A legacy key is the URL-safe, unpadded base64 encoding of the email bytes.
// The key is built from the raw address bytes. Candidates adds the key of the
// lowercased, trimmed address as a fallback for case or whitespace mismatches
// between the caller's address and the one the record was stored with.
package legacykey

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Version identifies the key format produced by Encode.
const Version = 1

var encoding = base64.RawURLEncoding

// Encode returns the legacy key for email without normalizing it.
func Encode(email string) string {
	return encoding.EncodeToString([]byte(email))
}

// Decode reverses Encode.
func Decode(key string) (string, error) {
	b, err := encoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("invalid legacy key %q: %w", key, err)
	}
	return string(b), nil
}

// Normalize lowercases and trims an address for the fallback lookup.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Candidate is one possible legacy key for an address.
type Candidate struct {
	Email      string
	Key        string
	Normalized bool
}

// Candidates returns the exact-bytes key first and, when normalization changes
// the address, the key of the normalized address second.
func Candidates(email string) []Candidate {
	out := []Candidate{{Email: email, Key: Encode(email)}}
	if n := Normalize(email); n != email {
		out = append(out, Candidate{Email: n, Key: Encode(n), Normalized: true})
	}
	return out
}
