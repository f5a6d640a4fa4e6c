package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nilayparikh/loanflow/loan"
)

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubPublishFanOut(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	first, cancelFirst := hub.Subscribe()
	second, cancelSecond := hub.Subscribe()
	defer cancelFirst()
	defer cancelSecond()
	assert.Equal(t, 2, hub.SubscriberCount())

	hub.Publish(Event{Type: EventEscalated, Record: newTestRecord("APP-2024-003")})

	for _, ch := range []<-chan Event{first, second} {
		ev := recvEvent(t, ch)
		assert.Equal(t, EventEscalated, ev.Type)
		assert.Equal(t, "APP-2024-003", ev.Record.ApplicantID)
		assert.False(t, ev.Timestamp.IsZero(), "Publish must stamp the event")
	}
}

func TestHubCancelStopsDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	stay, cancelStay := hub.Subscribe()
	defer cancelStay()
	gone, cancelGone := hub.Subscribe()

	cancelGone()
	cancelGone() // safe to call twice
	assert.Equal(t, 1, hub.SubscriberCount())

	hub.Publish(Event{Type: EventDecided})

	ev := recvEvent(t, stay)
	assert.Equal(t, EventDecided, ev.Type)

	if _, ok := <-gone; ok {
		t.Error("cancelled channel delivered an event")
	}
}

func TestHubSlowSubscriberDrops(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Close()

	ch, cancel := hub.Subscribe()
	defer cancel()

	// Overfill the buffer without draining. Publish must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultSubscriberBuffer+8; i++ {
			hub.Publish(Event{Type: EventEscalated})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	var delivered int
	for {
		select {
		case <-ch:
			delivered++
			continue
		default:
		}
		break
	}
	assert.Equal(t, defaultSubscriberBuffer, delivered)
}

func TestHubClose(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ch, cancel := hub.Subscribe()

	hub.Close()
	hub.Close() // idempotent

	if _, ok := <-ch; ok {
		t.Error("subscriber channel left open after Close")
	}
	assert.Equal(t, 0, hub.SubscriberCount())
	cancel() // still safe after Close

	// A closed hub hands out closed channels and drops publishes.
	late, lateCancel := hub.Subscribe()
	defer lateCancel()
	hub.Publish(Event{Type: EventEscalated})
	if _, ok := <-late; ok {
		t.Error("closed hub delivered an event")
	}
}

func TestNotifyingStorePublishesLifecycle(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(zap.NewNop())
	defer hub.Close()
	store := NewNotifyingStore(NewMemoryStore(), hub)

	ch, cancel := hub.Subscribe()
	defer cancel()

	rec := newTestRecord("APP-2024-003")
	require.NoError(t, store.Add(ctx, rec))

	ev := recvEvent(t, ch)
	assert.Equal(t, EventEscalated, ev.Type)
	assert.Equal(t, rec.ID, ev.Record.ID, "event must carry the assigned id")
	assert.Equal(t, loan.ReviewPending, ev.Record.Status)

	decided, err := store.Decide(ctx, rec.ID, loan.ReviewApproved, "reviewer", "")
	require.NoError(t, err)

	ev = recvEvent(t, ch)
	assert.Equal(t, EventDecided, ev.Type)
	assert.Equal(t, loan.ReviewApproved, ev.Record.Status)
	assert.Equal(t, decided.DecidedBy, ev.Record.DecidedBy)
}

func TestNotifyingStoreSilentOnFailure(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(zap.NewNop())
	defer hub.Close()
	store := NewNotifyingStore(NewMemoryStore(), hub)

	ch, cancel := hub.Subscribe()
	defer cancel()

	require.Error(t, store.Add(ctx, &loan.EscalationRecord{}))
	_, err := store.Decide(ctx, "missing", loan.ReviewApproved, "reviewer", "")
	require.Error(t, err)

	select {
	case ev := <-ch:
		t.Errorf("failed operation published %s event", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifyingStoreConformance(t *testing.T) {
	runStoreConformance(t, func(t *testing.T) Store {
		hub := NewHub(zap.NewNop())
		t.Cleanup(hub.Close)
		return NewNotifyingStore(NewMemoryStore(), hub)
	})
}
