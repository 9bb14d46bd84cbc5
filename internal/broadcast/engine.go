package broadcast

import (
	"log"
	"time"

	"carelink/internal/model"
)

// Notification is the envelope delivered to every observer. Each delivery is
// self-sufficient: it carries the full snapshot plus its StateVersion, so an
// observer can discard anything not newer than what it already applied.
type Notification struct {
	Event        model.EventType `json:"event"`
	Session      model.Session   `json:"session"`
	StateVersion int64           `json:"stateVersion"`
	DeliveredAt  time.Time       `json:"deliveredAt"`
}

// Address is a delivery endpoint for one observer. Concrete transports
// (the WebSocket hub in production, capturing fakes in tests) implement it;
// the engine never depends on a transport's addressing scheme. Deliver must
// not block.
type Address interface {
	Deliver(n Notification) error
}

// SubscriberLister enumerates the current addresses watching a session
// (avoids an import cycle with the subscriber directory).
type SubscriberLister interface {
	AddressesFor(sessionID string) []Address
}

// Engine fans a state-change notification out to every current subscriber of
// a session, synchronously with respect to the mutation that produced it.
type Engine struct {
	subs SubscriberLister
}

// NewEngine creates a broadcast engine over the given subscriber source.
func NewEngine(subs SubscriberLister) *Engine {
	return &Engine{subs: subs}
}

// Publish delivers snap to every subscriber listed for sessionID at the
// instant of the call. Delivery is fire-and-forget per recipient: one failed
// send is logged and never blocks other recipients or the triggering
// mutation.
func (e *Engine) Publish(sessionID string, snap model.Session, event model.EventType) {
	n := Notification{
		Event:        event,
		Session:      snap,
		StateVersion: snap.StateVersion,
		DeliveredAt:  time.Now(),
	}
	for _, addr := range e.subs.AddressesFor(sessionID) {
		if err := addr.Deliver(n); err != nil {
			log.Printf("broadcast: dropped %s delivery for session %s: %v", event, sessionID, err)
		}
	}
}

// DeliverTo is the single-recipient path used to push an immediate snapshot
// to a freshly joined observer.
func (e *Engine) DeliverTo(addr Address, snap model.Session, event model.EventType) {
	n := Notification{
		Event:        event,
		Session:      snap,
		StateVersion: snap.StateVersion,
		DeliveredAt:  time.Now(),
	}
	if err := addr.Deliver(n); err != nil {
		log.Printf("broadcast: dropped %s delivery for session %s: %v", event, snap.ID, err)
	}
}
