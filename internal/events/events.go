package events

import (
	"context"
	"sync"
	"time"
)

// Streams
const (
	StreamEscrow    = "events:escrow"
	StreamAgreement = "events:agreement"
	StreamProperty  = "events:property"
	StreamProtocol  = "events:protocol"
)

var AllStreams = []string{StreamEscrow, StreamAgreement, StreamProperty, StreamProtocol}

// Event types
const (
	EventProtocolInitialized = "protocol_initialized"
	EventConfigUpdated       = "config_updated"
	EventPausedChanged       = "paused_changed"

	EventEscrowCreated   = "escrow_created"
	EventEscrowFunded    = "escrow_funded"
	EventEscrowReleased  = "escrow_released"
	EventEscrowRefunded  = "escrow_refunded"
	EventEscrowDisputed  = "escrow_disputed"
	EventDisputeResolved = "dispute_resolved"

	EventAgreementCreated    = "agreement_created"
	EventAgreementSigned     = "agreement_signed"
	EventAgreementActivated  = "agreement_activated"
	EventRentPaid            = "rent_paid"
	EventAgreementTerminated = "agreement_terminated"
	EventAgreementCompleted  = "agreement_completed"
	EventAgreementCancelled  = "agreement_cancelled"
	EventAgreementDisputed   = "agreement_disputed"

	EventPropertyRegistered = "property_registered"
	EventPropertyVerified   = "property_verified"
)

type Event struct {
	Type string `json:"type"`
	// Parties are the addresses the event concerns; live feeds route on them.
	Parties   []string       `json:"parties,omitempty"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Concerns reports whether addr is one of the event's parties.
func (e Event) Concerns(addr string) bool {
	for _, p := range e.Parties {
		if p == addr {
			return true
		}
	}
	return false
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events map[string][]Event
}

func NewRecorder() *Recorder {
	return &Recorder{events: make(map[string][]Event)}
}

func (r *Recorder) Publish(_ context.Context, stream string, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[stream] = append(r.events[stream], event)
	return nil
}

// Events returns a copy of what was published on stream.
func (r *Recorder) Events(stream string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events[stream]...)
}

// Types lists the event types published on stream in order.
func (r *Recorder) Types(stream string) []string {
	var types []string
	for _, e := range r.Events(stream) {
		types = append(types, e.Type)
	}
	return types
}
