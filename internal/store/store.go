package store

import (
	"encoding/json"
	"errors"
)

var (
	ErrNotFound       = errors.New("endpoint not found")
	ErrAlreadyWritten = errors.New("data has already been written to this endpoint")
	ErrNotReady       = errors.New("data has not been written to this endpoint yet")
)

// Store is the registry of ephemeral endpoints. Each endpoint accepts one
// write and one read, after which it is gone.
type Store interface {
	CreateSlot() string
	// CheckWritable reports ErrNotFound or ErrAlreadyWritten without
	// changing the slot. WriteOnce still decides concurrent writes.
	CheckWritable(id string) error
	WriteOnce(id string, payload json.RawMessage) error
	ReadAndConsume(id string) (json.RawMessage, error)
	SweepExpired() int
	Len() int
}
