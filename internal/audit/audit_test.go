package audit

import (
	"testing"
	"time"
)

func TestNopSinkDiscardsEvents(t *testing.T) {
	var s Sink = NopSink{}
	s.Record(AuditEvent{Type: EventDocumentInserted})
}

func TestChannelSinkDeliversEvents(t *testing.T) {
	sink := NewChannelSink(4)
	sink.Record(AuditEvent{Type: EventDocumentInserted, Collection: "people", DocID: "1", Timestamp: time.Now()})

	select {
	case evt := <-sink.Events():
		if evt.Type != EventDocumentInserted || evt.Collection != "people" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	default:
		t.Fatalf("expected an event to be queued")
	}
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Record(AuditEvent{Type: EventDocumentInserted})
	sink.Record(AuditEvent{Type: EventDocumentDeleted}) // dropped, channel full

	if len(sink.Events()) != 1 {
		t.Fatalf("expected the channel to hold exactly 1 event, got %d", len(sink.Events()))
	}
	evt := <-sink.Events()
	if evt.Type != EventDocumentInserted {
		t.Fatalf("expected the first event to survive, got %v", evt.Type)
	}
}
