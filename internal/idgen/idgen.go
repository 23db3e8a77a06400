// Package idgen generates the short, URL-safe identifiers used for session
// tags and participant ids.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	SessionPrefix     = "ns-"
	ParticipantPrefix = "np-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// SessionTag returns a new tag for one pairing.
func SessionTag() (string, error) {
	return GenerateWithPrefix(SessionPrefix)
}

// ParticipantID returns a new id for one connected participant.
func ParticipantID() (string, error) {
	return GenerateWithPrefix(ParticipantPrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
