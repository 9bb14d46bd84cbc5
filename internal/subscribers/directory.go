package subscribers

import (
	"sync"

	"carelink/internal/broadcast"
)

// Directory maps (sessionID, observerID) to a delivery address. Its entries
// live independently of the session's own lifetime, but the registry tears a
// session's set down as part of conclusion. Re-joining replaces the address;
// the inner map is deallocated on the last leave and recreated lazily.
type Directory struct {
	mu   sync.RWMutex
	subs map[string]map[string]broadcast.Address
}

// NewDirectory creates an empty subscriber directory.
func NewDirectory() *Directory {
	return &Directory{
		subs: make(map[string]map[string]broadcast.Address),
	}
}

// Join upserts the delivery address for observerID on sessionID.
func (d *Directory) Join(sessionID, observerID string, addr broadcast.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subs[sessionID] == nil {
		d.subs[sessionID] = make(map[string]broadcast.Address)
	}
	d.subs[sessionID][observerID] = addr
}

// Leave removes the observer's entry; no-op if absent.
func (d *Directory) Leave(sessionID, observerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.subs[sessionID]
	if !ok {
		return
	}
	delete(set, observerID)
	if len(set) == 0 {
		delete(d.subs, sessionID)
	}
}

// TearDown drops the whole subscriber set for a concluded session.
func (d *Directory) TearDown(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, sessionID)
}

// AddressesFor snapshots the current addresses watching sessionID
// (implements broadcast.SubscriberLister).
func (d *Directory) AddressesFor(sessionID string) []broadcast.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()
	set, ok := d.subs[sessionID]
	if !ok {
		return nil
	}
	out := make([]broadcast.Address, 0, len(set))
	for _, addr := range set {
		out = append(out, addr)
	}
	return out
}

// CountFor reports the current subscriber count for diagnostics.
func (d *Directory) CountFor(sessionID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[sessionID])
}
