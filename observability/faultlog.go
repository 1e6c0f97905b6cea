package observability

import (
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// FaultRecord captures a single handler failure observed during dispatch.
type FaultRecord struct {
	Engine  string    `json:"engine"`
	Topic   string    `json:"topic"`
	Seq     uint64    `json:"seq"`
	Variant string    `json:"variant"`
	Error   string    `json:"error"`
	Stack   string    `json:"stack,omitempty"`
	At      time.Time `json:"at"`
}

// FaultLog stores handler faults that dispatch absorbed.
type FaultLog struct {
	mu       sync.Mutex
	capacity int
	records  []FaultRecord
}

// NewFaultLog creates a fault journal with the provided capacity. Capacity <=0 implies unbounded.
func NewFaultLog(capacity int) *FaultLog {
	log := new(FaultLog)
	log.capacity = capacity
	log.records = make([]FaultRecord, 0)
	return log
}

// Offer records a fault in the journal.
func (l *FaultLog) Offer(record FaultRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.capacity > 0 && len(l.records) >= l.capacity {
		// Drop oldest record to make space for the new one.
		copy(l.records[0:], l.records[1:])
		l.records[len(l.records)-1] = record
		return
	}
	l.records = append(l.records, record)
}

// Drain retrieves and clears all journaled faults.
func (l *FaultLog) Drain() []FaultRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	drained := make([]FaultRecord, len(l.records))
	copy(drained, l.records)
	l.records = l.records[:0]
	return drained
}

// Records returns a copy of the journal without clearing it.
func (l *FaultLog) Records() []FaultRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FaultRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of journaled faults.
func (l *FaultLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Export renders the current journal contents as JSON.
func (l *FaultLog) Export() ([]byte, error) {
	return json.Marshal(l.Records())
}
