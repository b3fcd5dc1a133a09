package jobs

import (
	"sync"
	"time"

	"whisper-desktop/internal/domain"
)

// EntryType classifies records kept in the job feed.
type EntryType string

const (
	EntryTypeStatus EntryType = "status"
	EntryTypeLog    EntryType = "log"
	EntryTypeNotice EntryType = "notice"
	EntryTypeResult EntryType = "result"
	EntryTypeError  EntryType = "error"
)

// FeedEntry is a sequenced record of what happened to a job.
type FeedEntry struct {
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	JobID     string          `json:"jobId"`
	Type      EntryType       `json:"type"`
	Phase     domain.JobPhase `json:"phase,omitempty"`
	Message   string          `json:"message,omitempty"`
	AudioPath string          `json:"audioPath,omitempty"`
	ElapsedMs int64           `json:"elapsedMs,omitempty"`
}

// Feed stores recent entries and provides incremental reads.
type Feed struct {
	mu         sync.RWMutex
	nextSeq    int64
	maxEntries int
	entries    []FeedEntry
	notify     func(FeedEntry)
}

// NewFeed creates a bounded in-memory feed.
func NewFeed(maxEntries int) *Feed {
	if maxEntries <= 0 {
		maxEntries = 500
	}

	return &Feed{
		maxEntries: maxEntries,
		entries:    make([]FeedEntry, 0, maxEntries),
	}
}

// OnRecord registers a callback invoked after each entry is stored.
func (f *Feed) OnRecord(fn func(FeedEntry)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notify = fn
}

// Record appends one entry and assigns sequence and timestamp.
func (f *Feed) Record(entry FeedEntry) FeedEntry {
	f.mu.Lock()
	f.nextSeq++
	entry.Seq = f.nextSeq
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	f.entries = append(f.entries, entry)
	if len(f.entries) > f.maxEntries {
		trim := len(f.entries) - f.maxEntries
		f.entries = append([]FeedEntry(nil), f.entries[trim:]...)
	}
	notify := f.notify
	f.mu.Unlock()

	if notify != nil {
		notify(entry)
	}
	return entry
}

// Since returns entries with sequence strictly greater than seq.
func (f *Feed) Since(seq int64) []FeedEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.entries) == 0 {
		return nil
	}

	out := make([]FeedEntry, 0, len(f.entries))
	for _, entry := range f.entries {
		if entry.Seq > seq {
			out = append(out, entry)
		}
	}
	return out
}

// LastSeq returns the most recently assigned sequence number.
func (f *Feed) LastSeq() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nextSeq
}
