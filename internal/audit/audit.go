// Package audit records a structured trail of put/get/fetch outcomes. The
// disk-backed FileStore remains the sole source of truth for blob content;
// audit records are an observability trail only, threading the caller's
// optional JobID through for provenance (spec.md's "accept and discard the
// JobID on the wire but SHOULD record it" guidance).
package audit

import (
	"sync"
	"time"
)

// EventType identifies which cache operation an event describes.
type EventType string

const (
	EventTypePut   EventType = "put"
	EventTypeGet   EventType = "get"
	EventTypeFetch EventType = "fetch" // proxy read-through download
	EventTypeWipe  EventType = "wipe"
)

// AuditEvent represents a single audit log event.
type AuditEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	EventType EventType     `json:"event_type"`
	Role      string        `json:"role"` // "server" or "proxy"
	Key       string        `json:"key,omitempty"`
	JobID     string        `json:"job_id,omitempty"`
	RemoteAddr string       `json:"remote_addr,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ms"`
	Bytes     int64         `json:"bytes,omitempty"`
}

// Logger is the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(event *AuditEvent) error

	// LogPut logs a put operation (local or network, either role).
	LogPut(role, key, jobID, remoteAddr string, bytes int64, success bool, err error, duration time.Duration)

	// LogGet logs a get operation (local or network, either role).
	LogGet(role, key, remoteAddr string, bytes int64, success bool, err error, duration time.Duration)

	// LogFetch logs a proxy read-through download from the server.
	LogFetch(key string, bytes int64, success bool, err error, duration time.Duration)

	// GetEvents returns all audit events (for testing/querying).
	GetEvents() []*AuditEvent

	// Close closes the logger and its underlying writer.
	Close() error
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	mu        sync.Mutex
	events    []*AuditEvent
	maxEvents int
	writer    EventWriter
}

// EventWriter is an interface for writing audit events.
type EventWriter interface {
	WriteEvent(event *AuditEvent) error
}

// NewLogger creates a new audit logger. A nil writer defaults to stdout.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	if writer == nil {
		writer = &StdoutSink{}
	}
	return &auditLogger{
		events:    make([]*AuditEvent, 0, maxEvents),
		maxEvents: maxEvents,
		writer:    writer,
	}
}

// Log logs an audit event, writing it through the configured sink and
// retaining it in a bounded in-memory ring for GetEvents.
func (l *auditLogger) Log(event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var writeErr error
	if l.writer != nil {
		writeErr = l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}

	return writeErr
}

// Close closes the logger's underlying writer.
func (l *auditLogger) Close() error {
	if closer, ok := l.writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// LogPut logs a put operation.
func (l *auditLogger) LogPut(role, key, jobID, remoteAddr string, bytes int64, success bool, err error, duration time.Duration) {
	event := &AuditEvent{
		Timestamp:  time.Now(),
		EventType:  EventTypePut,
		Role:       role,
		Key:        key,
		JobID:      jobID,
		RemoteAddr: remoteAddr,
		Success:    success,
		Duration:   duration,
		Bytes:      bytes,
	}
	if err != nil {
		event.Error = err.Error()
	}
	_ = l.Log(event)
}

// LogGet logs a get operation.
func (l *auditLogger) LogGet(role, key, remoteAddr string, bytes int64, success bool, err error, duration time.Duration) {
	event := &AuditEvent{
		Timestamp:  time.Now(),
		EventType:  EventTypeGet,
		Role:       role,
		Key:        key,
		RemoteAddr: remoteAddr,
		Success:    success,
		Duration:   duration,
		Bytes:      bytes,
	}
	if err != nil {
		event.Error = err.Error()
	}
	_ = l.Log(event)
}

// LogFetch logs a proxy read-through download.
func (l *auditLogger) LogFetch(key string, bytes int64, success bool, err error, duration time.Duration) {
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeFetch,
		Role:      "proxy",
		Key:       key,
		Success:   success,
		Duration:  duration,
		Bytes:     bytes,
	}
	if err != nil {
		event.Error = err.Error()
	}
	_ = l.Log(event)
}

// GetEvents returns a copy of the retained events, most recent last.
func (l *auditLogger) GetEvents() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*AuditEvent, len(l.events))
	copy(events, l.events)
	return events
}
