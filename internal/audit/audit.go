// Package audit declares the AuditEvent record and the Sink interface
// the core emits them to. Grounded on
// bundoc/security/audit.go's AuditEvent (timestamped, typed, with a
// free-form details map) and AuditLogger, split here into an interface
// (Sink) plus two in-core implementations (NopSink, ChannelSink);
// file-backed persistence and rotation are an external collaborator,
// not core's job.
package audit

import "time"

// EventType categorizes one audit record.
type EventType string

const (
	EventDocumentInserted   EventType = "document_inserted"
	EventDocumentUpdated    EventType = "document_updated"
	EventDocumentDeleted    EventType = "document_deleted"
	EventCollectionCreated  EventType = "collection_created"
	EventCollectionDropped  EventType = "collection_dropped"
	EventTransactionBegan   EventType = "transaction_began"
	EventTransactionEnded   EventType = "transaction_ended"
	EventAuthenticated      EventType = "authenticated"
	EventAuthenticationFail EventType = "authentication_failed"
)

// AuditEvent is one record of a security- or data-relevant action.
type AuditEvent struct {
	Timestamp  time.Time
	Type       EventType
	Actor      string
	Collection string
	DocID      string
	Details    map[string]any
}

// Sink receives AuditEvent records. Implementations must not block the
// caller for long; a slow external sink should buffer internally.
type Sink interface {
	Record(event AuditEvent)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Record(AuditEvent) {}

// ChannelSink delivers events onto a buffered channel, for tests and for
// in-process subscribers that want to drain events themselves. A full
// channel drops the event rather than blocking the caller.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink builds a ChannelSink with the given channel capacity.
func NewChannelSink(capacity int) *ChannelSink {
	return &ChannelSink{events: make(chan AuditEvent, capacity)}
}

// Record enqueues event, dropping it silently if the channel is full.
func (s *ChannelSink) Record(event AuditEvent) {
	select {
	case s.events <- event:
	default:
	}
}

// Events exposes the receive side of the channel for draining.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}
