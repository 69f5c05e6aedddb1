package view

import "time"

// MemView is a trivial in-memory View used by package tests throughout this
// repository; production views arrive over the transport substrate and are
// decoded elsewhere.
type MemView struct {
	ts     time.Time
	tuples []Tuple
	ud     *UserData
}

// NewMemView builds a MemView carrying the given tuples.
func NewMemView(ts time.Time, tuples []Tuple) *MemView {
	return &MemView{ts: ts, tuples: tuples, ud: NewUserData()}
}

func (m *MemView) Timestamp() time.Time { return m.ts }

func (m *MemView) Tuples(yield func(Tuple) bool) {
	for _, t := range m.tuples {
		if !yield(t) {
			return
		}
	}
}

func (m *MemView) UserData() *UserData { return m.ud }

func (m *MemView) Clear() { m.ud.Clear() }
