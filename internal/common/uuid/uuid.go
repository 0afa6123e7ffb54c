// Package uuid wraps github.com/google/uuid so the rest of the repository
// gets time-ordered (version 7) identifiers by default.
package uuid

import "github.com/google/uuid"

// UUID represents a UUID
type UUID = uuid.UUID

// Nil is the zero UUID
var Nil = uuid.Nil

// New returns a new random (version 7) UUID
func New() UUID {
	u, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return u
}

// Parse parses a UUID string
func Parse(s string) (UUID, error) {
	return uuid.Parse(s)
}

// MustParse parses a UUID string and panics on failure
func MustParse(s string) UUID {
	return uuid.MustParse(s)
}
