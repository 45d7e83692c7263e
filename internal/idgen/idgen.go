// Package idgen generates short random identifiers used to correlate log
// lines and events, backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for each kind of identifier.
const (
	SessionPrefix = "ses-"
	EventPrefix   = "evt-"
)

// Alphabet defines the character set used for the random portion of the ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
const Length = 8

// NewSessionID returns an identifier for one database session.
func NewSessionID() (string, error) {
	return withPrefix(SessionPrefix)
}

// NewEventID returns an identifier for one published event.
func NewEventID() (string, error) {
	return withPrefix(EventPrefix)
}

func withPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
