// Package tskp implements the time-series key package: a batch of
// (key-id, value) pairs gathered during one view's processing and flushed
// to a pluggable backend at a single timestamp, the same "collect then
// flush" shape as the teacher's internal/state.Pipeline batching routes
// before a single writer call.
package tskp

import (
	"fmt"
	"time"
)

// Backend receives a flushed key package. Publish is called once per
// Flush with parallel name/value slices (index i is key id i).
type Backend interface {
	Publish(ts time.Time, names []string, values []float64) error
}

// KeyPackage is an ordered set of named float64 slots. Keys are declared
// once via AddKey (typically at startup, one per metric x threshold
// bucket x country) and written repeatedly via Set before each Flush.
type KeyPackage struct {
	backend Backend
	names   []string
	values  []float64
	index   map[string]int
}

func New(backend Backend) *KeyPackage {
	return &KeyPackage{backend: backend, index: make(map[string]int)}
}

// AddKey registers name and returns its stable id. Registering the same
// name twice returns the existing id rather than creating a duplicate
// slot.
func (kp *KeyPackage) AddKey(name string) int {
	if id, ok := kp.index[name]; ok {
		return id
	}
	id := len(kp.names)
	kp.names = append(kp.names, name)
	kp.values = append(kp.values, 0)
	kp.index[name] = id
	return id
}

// Set writes value into slot id. Panics on an out-of-range id, matching
// the teacher's fail-fast style for programmer errors rather than
// operator-facing conditions.
func (kp *KeyPackage) Set(id int, value float64) {
	kp.values[id] = value
}

// Get returns the current value of slot id, used by consumers that need
// to read back a counter before resetting it for the next view.
func (kp *KeyPackage) Get(id int) float64 {
	return kp.values[id]
}

// Flush publishes every registered key at ts via the backend.
func (kp *KeyPackage) Flush(ts time.Time) error {
	if err := kp.backend.Publish(ts, kp.names, kp.values); err != nil {
		return fmt.Errorf("tskp: flush: %w", err)
	}
	return nil
}

// Len returns the number of registered keys.
func (kp *KeyPackage) Len() int { return len(kp.names) }
