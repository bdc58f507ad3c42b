package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventConcerns(t *testing.T) {
	e := Event{Type: EventEscrowFunded, Parties: []string{"D", "B", "A"}}
	assert.True(t, e.Concerns("B"))
	assert.False(t, e.Concerns("X"))
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()
	_ = r.Publish(ctx, StreamEscrow, Event{Type: EventEscrowCreated})
	_ = r.Publish(ctx, StreamEscrow, Event{Type: EventEscrowFunded})
	_ = r.Publish(ctx, StreamAgreement, Event{Type: EventRentPaid})

	assert.Equal(t, []string{EventEscrowCreated, EventEscrowFunded}, r.Types(StreamEscrow))
	assert.Len(t, r.Events(StreamAgreement), 1)
	assert.Empty(t, r.Events(StreamProperty))
}
