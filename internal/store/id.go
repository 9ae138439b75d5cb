package store

import (
	"crypto/rand"
	"encoding/base64"
)

const idBytes = 16

// generateID returns 128 random bits. rand.Read never returns an error, the
// program crashes irrecoverably if the system entropy source fails.
func generateID() [idBytes]byte {
	var b [idBytes]byte
	rand.Read(b[:])
	return b
}

func encodeID(b [idBytes]byte) string {
	return base64.RawURLEncoding.EncodeToString(b[:])
}
