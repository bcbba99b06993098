package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
)

// ClientInfo describes one currently-connected client, surfaced in the
// INFO command's "# Clients" section.
type ClientInfo struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time
}

// ClientRegistry tracks live TCP connections under a per-connection uuid.
// The acceptor registers a connection right after
// the ACL check and unregisters it when handleConn returns; INFO and the
// Prometheus exposition both read a consistent snapshot through this type
// rather than touching the listener's internal state.
type ClientRegistry struct {
	mu      sync.Mutex
	clients map[string]ClientInfo
	total   atomic.Int64
}

// NewClientRegistry builds an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]ClientInfo)}
}

// Register allocates a new client id for remoteAddr and records it as
// connected. Falls back to remoteAddr itself if uuid generation fails
// (exhausted entropy source), since a duplicate id here only degrades the
// INFO listing, never correctness of the data path.
func (r *ClientRegistry) Register(remoteAddr string) string {
	id, err := uuid.NewV4()
	idStr := remoteAddr
	if err == nil {
		idStr = id.String()
	}
	r.mu.Lock()
	r.clients[idStr] = ClientInfo{ID: idStr, RemoteAddr: remoteAddr, ConnectedAt: time.Now()}
	r.mu.Unlock()
	r.total.Add(1)
	return idStr
}

// Unregister removes id from the connected set.
func (r *ClientRegistry) Unregister(id string) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()
}

// Snapshot returns every currently-connected client.
func (r *ClientRegistry) Snapshot() []ClientInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ClientInfo, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Counts reports the currently-connected count and the lifetime total
// accepted, matching the shape metrics.Source and dispatchInfo need.
func (r *ClientRegistry) Counts() (connected, total int64) {
	r.mu.Lock()
	connected = int64(len(r.clients))
	r.mu.Unlock()
	return connected, r.total.Load()
}
