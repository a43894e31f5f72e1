package logger

import (
	"sync"
	"time"
)

// Entry is a single collected log record.
type Entry struct {
	Level    string                 `json:"level"`
	Message  string                 `json:"message"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
	Caller   string                 `json:"caller"`
	Count    int                    `json:"count"`
	LastSeen time.Time              `json:"last_seen"`
}

// Collector keeps the most recent warn/error log entries in a bounded ring.
// Repeated entries with the same level+message are coalesced by count so a
// flapping dependency does not flood the buffer.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// NewCollector creates a collector retaining at most max entries.
func NewCollector(max int) *Collector {
	if max <= 0 {
		max = 200
	}
	return &Collector{
		entries: make([]Entry, 0, max),
		max:     max,
	}
}

// Add records a log entry, coalescing with the newest entry when it matches.
func (c *Collector) Add(level, message string, fields map[string]interface{}, caller string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.entries); n > 0 {
		last := &c.entries[n-1]
		if last.Level == level && last.Message == message {
			last.Count++
			last.LastSeen = time.Now()
			last.Fields = fields
			return
		}
	}

	if len(c.entries) >= c.max {
		copy(c.entries, c.entries[1:])
		c.entries = c.entries[:len(c.entries)-1]
	}

	c.entries = append(c.entries, Entry{
		Level:    level,
		Message:  message,
		Fields:   fields,
		Caller:   caller,
		Count:    1,
		LastSeen: time.Now(),
	})
}

// Recent returns up to n entries, newest last. n <= 0 returns all.
func (c *Collector) Recent(n int) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || n > len(c.entries) {
		n = len(c.entries)
	}
	out := make([]Entry, n)
	copy(out, c.entries[len(c.entries)-n:])
	return out
}

// Len returns the number of retained entries.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
