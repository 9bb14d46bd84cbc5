package broadcast

import (
	"errors"
	"sync"
	"testing"

	"carelink/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureAddress struct {
	mu       sync.Mutex
	got      []Notification
	failWith error
}

func (a *captureAddress) Deliver(n Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWith != nil {
		return a.failWith
	}
	a.got = append(a.got, n)
	return nil
}

func (a *captureAddress) delivered() []Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Notification, len(a.got))
	copy(out, a.got)
	return out
}

type staticLister struct {
	addrs map[string][]Address
}

func (l *staticLister) AddressesFor(sessionID string) []Address {
	return l.addrs[sessionID]
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	a1 := &captureAddress{}
	a2 := &captureAddress{}
	engine := NewEngine(&staticLister{addrs: map[string][]Address{
		"s1": {a1, a2},
	}})

	snap := model.Session{ID: "s1", Status: model.CallConnected, StateVersion: 2}
	engine.Publish("s1", snap, model.EventCallAnswered)

	for _, a := range []*captureAddress{a1, a2} {
		got := a.delivered()
		require.Len(t, got, 1)
		assert.Equal(t, model.EventCallAnswered, got[0].Event)
		assert.Equal(t, int64(2), got[0].StateVersion)
		assert.Equal(t, model.CallConnected, got[0].Session.Status)
		assert.False(t, got[0].DeliveredAt.IsZero())
	}
}

func TestFailedDeliveryDoesNotBlockOthers(t *testing.T) {
	bad := &captureAddress{failWith: errors.New("socket gone")}
	good := &captureAddress{}
	engine := NewEngine(&staticLister{addrs: map[string][]Address{
		"s1": {bad, good},
	}})

	engine.Publish("s1", model.Session{ID: "s1", StateVersion: 3}, model.EventStatusUpdate)

	assert.Len(t, good.delivered(), 1)
}

func TestPublishToSessionWithoutSubscribers(t *testing.T) {
	engine := NewEngine(&staticLister{addrs: map[string][]Address{}})
	// Must not panic or block.
	engine.Publish("unknown", model.Session{ID: "unknown"}, model.EventCallEnded)
}

func TestDeliverToSingleRecipient(t *testing.T) {
	a := &captureAddress{}
	engine := NewEngine(&staticLister{addrs: map[string][]Address{}})

	engine.DeliverTo(a, model.Session{ID: "s1", StateVersion: 5}, model.EventSnapshot)

	got := a.delivered()
	require.Len(t, got, 1)
	assert.Equal(t, model.EventSnapshot, got[0].Event)
	assert.Equal(t, int64(5), got[0].StateVersion)
}
