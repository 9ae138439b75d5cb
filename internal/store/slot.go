package store

import (
	"encoding/json"
	"time"
)

type slotKey string

type slot struct {
	state     slotState
	payload   json.RawMessage
	createdAt time.Time
}

func (s *slot) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.createdAt) > ttl
}
