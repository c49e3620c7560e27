// Package uuid generates random identifiers for stored records.
package uuid

import "github.com/google/uuid"

// New returns a random (version 4) UUID string. It panics if the system
// random source fails.
func New() string {
	return uuid.NewString()
}

// NewRandom is like New but reports a random source failure as an error.
func NewRandom() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
