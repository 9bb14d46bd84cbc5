package ws

import (
	"encoding/json"
	"errors"
	"sync"

	"carelink/internal/broadcast"
)

// Connection is one observer's WebSocket delivery address. It implements
// broadcast.Address; the engine hands it notifications and the write pump
// drains them to the socket.
type Connection struct {
	SessionID  string
	ObserverID string

	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newConnection(sessionID, observerID string) *Connection {
	return &Connection{
		SessionID:  sessionID,
		ObserverID: observerID,
		send:       make(chan []byte, 256),
	}
}

// Deliver queues a notification for the socket without blocking. A full
// buffer or a closed connection is reported as an error for the engine to
// log; it never stalls the mutation path.
func (c *Connection) Deliver(n broadcast.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
