package broker

import "time"

// Config is the broker's borrowed configuration (spec §9 "Cyclic/back
// references": the broker holds borrowed config, not shared ownership —
// the config outlives the broker for the life of the process).
type Config struct {
	// Identity is the dealer socket identity. Empty means "generate one
	// per connection" (spec §4.1).
	Identity string

	// Interests this client subscribes with; zero means no sub socket is
	// opened at all.
	Interests uint8
	// Intents this client declares when publishing views.
	Intents uint8

	HeartbeatInterval time.Duration
	HeartbeatLiveness uint8

	ReconnectIntervalMin time.Duration
	ReconnectIntervalMax time.Duration

	RequestTimeout  time.Duration
	RequestRetries  uint8
	MaxOutstandingReq int

	ShutdownLinger time.Duration

	MetricPrefix string
}
