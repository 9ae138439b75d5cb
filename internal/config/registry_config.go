package config

import (
	"time"
)

const (
	DefaultSlotTTL       = 5 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
	DefaultMaxSlots      = 60000 // maximum number of endpoints to keep in memory
)

type RegistryConfig struct {
	SlotTTL       time.Duration `yaml:"slotTTL" json:"slotTTL" env:"ECHO_CALLBACK_SLOT_TTL"`
	SweepInterval time.Duration `yaml:"sweepInterval" json:"sweepInterval" env:"ECHO_CALLBACK_SWEEP_INTERVAL"`
	MaxSlots      int           `yaml:"maxSlots" json:"maxSlots" env:"ECHO_CALLBACK_MAX_SLOTS"`
}
