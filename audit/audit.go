// Package audit implements the bounded FIFO event buffer of spec §4.2,
// grounded on original_source/.../audit/mod.rs's AuditTracker. Eviction
// must follow strict insertion order, so the log is backed by
// container/list rather than github.com/hashicorp/golang-lru: that cache's
// Get bumps an entry's recency, which would turn "oldest inserted" into
// "least recently read" and violate the FIFO contract spec §4.2 requires.
package audit

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/vault-custody/custody-engine/log"
	"github.com/vault-custody/custody-engine/metrics"
)

// EventType enumerates the finite, tagged set of audit event kinds, per
// spec §3 and §9 ("Tagged variants instead of dynamic dispatch").
type EventType int

const (
	Keygen EventType = iota
	Signing
	Aggregation
	Verification
	DidRotation
	DidRevocation
	EventError
)

func (k EventType) String() string {
	switch k {
	case Keygen:
		return "Keygen"
	case Signing:
		return "Signing"
	case Aggregation:
		return "Aggregation"
	case Verification:
		return "Verification"
	case DidRotation:
		return "DidRotation"
	case DidRevocation:
		return "DidRevocation"
	case EventError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is a single audit record, per spec §3's AuditEvent.
type Event struct {
	Kind          EventType
	SessionID     string
	ParticipantID *uint8
	Message       string
	Timestamp     string // RFC-3339
}

// Text renders the event in the spec §6 textual format:
// "AUDIT [{kind}] {session_id}[ (P#{id})] :: {message}"
func (e Event) Text() string {
	participant := ""
	if e.ParticipantID != nil {
		participant = fmt.Sprintf(" (P#%d)", *e.ParticipantID)
	}
	return fmt.Sprintf("AUDIT [%s] %s%s :: %s", e.Kind, e.SessionID, participant, e.Message)
}

// Log is a thread-safe, bounded FIFO audit buffer.
type Log struct {
	mu         sync.Mutex
	entries    *list.List
	maxEntries int
	logger     log.Logger
}

// New constructs a Log with the given capacity. maxEntries must be
// positive; config.Config.AuditMaxEntries is validated to guarantee this.
func New(maxEntries int, logger log.Logger) *Log {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Log{
		entries:    list.New(),
		maxEntries: maxEntries,
		logger:     logger.Named("audit"),
	}
}

// LogEvent appends event, evicting the oldest entry if the log is full.
// Never blocks longer than the mutex acquisition, per spec §4.2.
func (l *Log) LogEvent(e Event) {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	l.mu.Lock()
	if l.entries.Len() >= l.maxEntries {
		l.entries.Remove(l.entries.Front())
	}
	l.entries.PushBack(e)
	l.mu.Unlock()

	metrics.AuditEventsEmitted.WithLabelValues(e.Kind.String()).Inc()
	l.logger.Infow(e.Text(), "kind", e.Kind.String(), "session_id", e.SessionID)
}

// Recent returns a snapshot of up to n most-recent events, newest first.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, 0, n)
	for el := l.entries.Back(); el != nil && len(out) < n; el = el.Prev() {
		out = append(out, el.Value.(Event))
	}
	return out
}

// Len reports the current number of buffered events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries.Len()
}
