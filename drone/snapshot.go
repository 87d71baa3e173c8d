package drone

import (
	"encoding/json"
	"sort"
	"sync/atomic"
	"time"
)

// Snapshot is the latest complete set of sensor readings. A published
// snapshot is never modified; the listener replaces it as a whole.
type Snapshot struct {
	values   map[string]Value
	captured time.Time
	seq      uint64
}

// Get returns the reading for key.
func (s Snapshot) Get(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Int returns an integer reading.
func (s Snapshot) Int(key string) (int64, bool) {
	v, ok := s.values[key]
	if !ok {
		return 0, false
	}
	return v.Int(), true
}

// Float returns a floating-point reading.
func (s Snapshot) Float(key string) (float64, bool) {
	v, ok := s.values[key]
	if !ok {
		return 0, false
	}
	return v.Float(), true
}

// Keys returns the sensor names in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s Snapshot) Len() int { return len(s.values) }

// Captured is the time the broadcast behind this snapshot was received.
func (s Snapshot) Captured() time.Time { return s.captured }

// Seq counts the broadcasts applied since the session opened. Zero means no
// telemetry has arrived yet.
func (s Snapshot) Seq() uint64 { return s.seq }

// Map copies the readings into plain Go values.
func (s Snapshot) Map() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v.Any()
	}
	return out
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Captured time.Time      `json:"captured"`
		Seq      uint64         `json:"seq"`
		Values   map[string]any `json:"values"`
	}{s.captured, s.seq, s.Map()})
}

// snapshotStore hands snapshots from the single writer to any number of
// readers through an atomic pointer.
type snapshotStore struct {
	cur atomic.Pointer[Snapshot]
}

func (st *snapshotStore) load() Snapshot {
	if p := st.cur.Load(); p != nil {
		return *p
	}
	return Snapshot{}
}

// apply publishes a copy of the current snapshot with u laid over it. Keys
// absent from u keep their previous reading. Only one goroutine may call it.
func (st *snapshotStore) apply(u Update, at time.Time) Snapshot {
	prev := st.load()
	next := Snapshot{
		values:   make(map[string]Value, len(prev.values)+len(u.Values)),
		captured: at,
		seq:      prev.seq + 1,
	}
	for k, v := range prev.values {
		next.values[k] = v
	}
	for k, v := range u.Values {
		next.values[k] = v
	}
	st.cur.Store(&next)
	return next
}

func (st *snapshotStore) reset() {
	st.cur.Store(nil)
}
