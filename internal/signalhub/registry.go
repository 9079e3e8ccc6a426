package signalhub

import (
	"sync"

	"github.com/rs/zerolog"

	"speakmatch/backend/internal/models"
)

// Registry maps live transport IDs to their outbound channel.
// It is the only component that pushes events to clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	log     zerolog.Logger
}

// NewRegistry creates an empty transport registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		log:     log.With().Str("component", "registry").Logger(),
	}
}

// Register binds a transport ID to the client. An existing binding for the
// same ID is replaced and its client closed.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := c.GetTransportID()
	if old, ok := r.clients[id]; ok && old != c {
		old.Close()
	}
	r.clients[id] = c
	r.log.Debug().Str("transport_id", id).Str("user_id", c.GetUserID()).Msg("transport registered")
}

// Unregister removes the binding and closes the client's send channel.
// It reports whether the transport was registered.
func (r *Registry) Unregister(transportID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[transportID]
	if !ok {
		return false
	}
	delete(r.clients, transportID)
	c.Close()
	r.log.Debug().Str("transport_id", transportID).Msg("transport unregistered")
	return true
}

// Send pushes an event to a transport without blocking.
// A missing transport returns ErrTransportNotFound. A full buffer returns
// ErrTransportBusy and evicts the client, never panics.
func (r *Registry) Send(transportID string, evt models.Event) error {
	// The read lock also keeps Unregister from closing the channel mid-send.
	r.mu.RLock()
	c, ok := r.clients[transportID]
	if !ok {
		r.mu.RUnlock()
		r.log.Debug().Str("transport_id", transportID).Str("event", evt.Type).Msg("send to unregistered transport dropped")
		return ErrTransportNotFound
	}

	select {
	case c.GetSendChannel() <- evt:
		r.mu.RUnlock()
		return nil
	default:
	}
	r.mu.RUnlock()

	r.evict(transportID, c, evt.Type)
	return ErrTransportBusy
}

// evict drops a client that stopped draining its buffer. Closing it ends the
// connection, and the read pump then runs the disconnect path.
func (r *Registry) evict(transportID string, c Client, eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clients[transportID] != c {
		return
	}
	delete(r.clients, transportID)
	c.Close()
	r.log.Warn().Str("transport_id", transportID).Str("event", eventType).Msg("send buffer full, client evicted")
}

// Has reports whether the transport is registered.
func (r *Registry) Has(transportID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[transportID]
	return ok
}

// UserID returns the user bound to a registered transport.
func (r *Registry) UserID(transportID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[transportID]
	if !ok {
		return "", false
	}
	return c.GetUserID(), true
}

// Count returns the number of registered transports.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
