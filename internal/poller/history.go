package poller

import (
	"encoding/json"
	"sync"
	"time"
)

// Record is one observed status of a remote job
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	Status    json.RawMessage `json:"status"`
}

// History is the ordered list of status snapshots seen while polling a job.
// It serializes as a plain JSON array.
type History struct {
	mu      sync.RWMutex
	records []Record
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{records: []Record{}}
}

// Append adds a snapshot observed at ts
func (h *History) Append(ts time.Time, status json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, Record{Timestamp: ts, Status: status})
}

// Len returns the number of records
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Records returns a copy of the records in observation order
func (h *History) Records() []Record {
	if h == nil {
		return []Record{}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// Last returns the most recent record
func (h *History) Last() (Record, bool) {
	if h == nil {
		return Record{}, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.records) == 0 {
		return Record{}, false
	}
	return h.records[len(h.records)-1], true
}

func (h *History) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Records())
}
