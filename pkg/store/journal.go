package store

import (
	"sort"
	"sync"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// WriteRecord is one applied write.
type WriteRecord struct {
	Seq      uint64
	At       clock.MonoTime
	WidgetID string
	Kind     widget.Kind
	Patch    widget.Patch
	Origin   string
}

// Journal keeps write records in time order. Records from several origins
// may arrive slightly out of order; Append inserts them in place.
type Journal struct {
	mu      sync.RWMutex
	records []WriteRecord
	limit   int
}

// NewJournal creates a journal that keeps at most limit records (0 keeps
// everything). The oldest records are dropped first.
func NewJournal(limit int) *Journal {
	return &Journal{
		records: make([]WriteRecord, 0, 256),
		limit:   limit,
	}
}

// Append adds a record, keeping records ordered by At.
func (j *Journal) Append(rec WriteRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := len(j.records)
	if n == 0 || rec.At >= j.records[n-1].At {
		j.records = append(j.records, rec)
	} else {
		idx := sort.Search(n, func(i int) bool {
			return j.records[i].At > rec.At
		})
		j.records = append(j.records, WriteRecord{})
		copy(j.records[idx+1:], j.records[idx:])
		j.records[idx] = rec
	}

	if j.limit > 0 && len(j.records) > j.limit {
		j.records = append(j.records[:0], j.records[len(j.records)-j.limit:]...)
	}
}

// All returns every record in time order.
func (j *Journal) All() []WriteRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]WriteRecord, len(j.records))
	copy(out, j.records)
	return out
}

// ForWidget returns the records for one widget in time order.
func (j *Journal) ForWidget(id string) []WriteRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []WriteRecord
	for _, rec := range j.records {
		if rec.WidgetID == id {
			out = append(out, rec)
		}
	}
	return out
}

// Range returns records with start <= At < end.
func (j *Journal) Range(start, end clock.MonoTime) []WriteRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()

	lo := sort.Search(len(j.records), func(i int) bool { return j.records[i].At >= start })
	hi := sort.Search(len(j.records), func(i int) bool { return j.records[i].At >= end })
	if hi <= lo {
		return nil
	}
	out := make([]WriteRecord, hi-lo)
	copy(out, j.records[lo:hi])
	return out
}

// Last returns the most recent record, if any.
func (j *Journal) Last() (WriteRecord, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if len(j.records) == 0 {
		return WriteRecord{}, false
	}
	return j.records[len(j.records)-1], true
}

// Len returns the number of records kept.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}

// Clear drops every record.
func (j *Journal) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = j.records[:0]
}
