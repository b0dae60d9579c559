package daemon

import (
	"sync"
	"time"

	"github.com/overlayd/overlayd/internal/events"
)

// LogEntry is one buffered log line, as reported by internal/logging via
// the event bus's EventLog topic.
type LogEntry struct {
	Timestamp string
	Level     string
	Message   string
	Fields    map[string]interface{}
}

// LogBuffer is a ring buffer of recent log entries plus a fan-out point
// for live tailing, backing the control socket's "logs" query (§6.1):
// subscribers fed straight from the bus rather than by re-parsing
// zerolog's JSON stream.
type LogBuffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	maxSize  int
	writeIdx int
	count    int

	subMu       sync.RWMutex
	subscribers map[int]chan LogEntry
	nextSubID   int
}

// NewLogBuffer creates a log buffer with the given capacity.
func NewLogBuffer(maxSize int) *LogBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &LogBuffer{
		entries:     make([]LogEntry, maxSize),
		maxSize:     maxSize,
		subscribers: make(map[int]chan LogEntry),
	}
}

// AttachToBus subscribes the buffer to bus's EventLog topic and copies every
// events.LogEvent value it receives into the buffer. It returns nothing to
// detach with: the copying goroutine ends when the bus is closed.
func (lb *LogBuffer) AttachToBus(bus *events.Bus) {
	ch := bus.Subscribe(events.EventLog)
	go func() {
		for evt := range ch {
			logEvt, ok := evt.(events.LogEvent)
			if !ok {
				continue
			}
			lb.add(LogEntry{
				Timestamp: logEvt.Time.Format(time.RFC3339Nano),
				Level:     logEvt.Level.String(),
				Message:   logEvt.Message,
				Fields:    logEvt.Fields,
			})
		}
	}()
}

func (lb *LogBuffer) add(entry LogEntry) {
	lb.mu.Lock()
	lb.entries[lb.writeIdx] = entry
	lb.writeIdx = (lb.writeIdx + 1) % lb.maxSize
	if lb.count < lb.maxSize {
		lb.count++
	}
	lb.mu.Unlock()

	lb.subMu.RLock()
	for _, ch := range lb.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
	lb.subMu.RUnlock()
}

// Recent returns the most recent n log entries, oldest first.
func (lb *LogBuffer) Recent(n int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if n <= 0 || lb.count == 0 {
		return nil
	}
	if n > lb.count {
		n = lb.count
	}

	result := make([]LogEntry, n)
	startIdx := (lb.writeIdx - n + lb.maxSize) % lb.maxSize
	for i := 0; i < n; i++ {
		result[i] = lb.entries[(startIdx+i)%lb.maxSize]
	}
	return result
}

// Subscribe opens a channel of every entry added from now on. Callers
// must call Unsubscribe with the returned id when done.
func (lb *LogBuffer) Subscribe() (int, <-chan LogEntry) {
	lb.subMu.Lock()
	defer lb.subMu.Unlock()

	lb.nextSubID++
	id := lb.nextSubID
	ch := make(chan LogEntry, 100)
	lb.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and removes a subscription.
func (lb *LogBuffer) Unsubscribe(id int) {
	lb.subMu.Lock()
	defer lb.subMu.Unlock()
	if ch, ok := lb.subscribers[id]; ok {
		close(ch)
		delete(lb.subscribers, id)
	}
}
