// Package token issues the opaque identifiers used as record IDs and as
// capability tokens. Possession of an organizer or response token is the
// only authorization check in TimePick.
package token

import "github.com/google/uuid"

// New returns a fresh random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}

// Valid reports whether s is a well-formed token.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}
