package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConnectionStatus of a station link.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// Transport is the live handle a station is reachable through.
type Transport interface {
	WriteText(payload []byte) error
	Close(code int, reason string) error
}

// ConnectionContext tracks one station link. At most one live context exists
// per identity at any time.
type ConnectionContext struct {
	Identity      string
	Transport     Transport
	ConnectedAt   time.Time
	LastMessageAt time.Time
	Status        ConnectionStatus
	StationID     string
}

// Presence receives best-effort online/offline notifications for identities.
type Presence interface {
	Online(identity string)
	Offline(identity string)
}

// Registry maps station identities to live transports. Lookups by transport
// handle are kept in a second map that must be cleaned on disconnect so dead
// entries do not accumulate.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*ConnectionContext
	byTransport map[Transport]string
	presence    Presence
	logger      *zap.Logger
}

// New builds a registry. presence may be nil.
func New(presence Presence, logger *zap.Logger) *Registry {
	return &Registry{
		connections: make(map[string]*ConnectionContext),
		byTransport: make(map[Transport]string),
		presence:    presence,
		logger:      logger,
	}
}

// Register installs a transport for identity. An existing connection for the
// same identity is closed with code 1012 before being replaced; a previously
// bound station id survives the replacement.
func (r *Registry) Register(identity string, transport Transport) *ConnectionContext {
	now := time.Now().UTC()

	r.mu.Lock()
	existing := r.connections[identity]
	if existing != nil {
		delete(r.byTransport, existing.Transport)
	}

	context := &ConnectionContext{
		Identity:      identity,
		Transport:     transport,
		ConnectedAt:   now,
		LastMessageAt: now,
		Status:        StatusConnected,
	}
	if existing != nil {
		context.StationID = existing.StationID
	}

	r.connections[identity] = context
	r.byTransport[transport] = identity
	r.mu.Unlock()

	if existing != nil {
		r.logger.Info("replacing existing connection", zap.String("identity", identity))
		if err := existing.Transport.Close(1012, "Replaced by a new connection"); err != nil {
			r.logger.Debug("closing previous transport failed", zap.String("identity", identity), zap.Error(err))
		}
	}

	if r.presence != nil {
		r.presence.Online(identity)
	}

	return context
}

// AssociateStation binds identity to a durable station id. Idempotent; unknown
// identities are a no-op.
func (r *Registry) AssociateStation(identity, stationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if context, ok := r.connections[identity]; ok {
		context.StationID = stationID
	}
}

// UpdateActivity bumps lastMessageAt and marks the link connected.
func (r *Registry) UpdateActivity(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if context, ok := r.connections[identity]; ok {
		context.LastMessageAt = time.Now().UTC()
		context.Status = StatusConnected
	}
}

// GetContext returns the context for identity.
func (r *Registry) GetContext(identity string) (*ConnectionContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	context, ok := r.connections[identity]
	return context, ok
}

// IdentityByTransport resolves the identity a transport handle belongs to.
func (r *Registry) IdentityByTransport(transport Transport) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.byTransport[transport]
	return identity, ok
}

// MarkDisconnected flags the context owning transport as DISCONNECTED and
// drops the transport mapping. The context itself is kept for inspection.
// Unknown transports are a no-op.
func (r *Registry) MarkDisconnected(transport Transport, reason string) {
	r.mu.Lock()
	identity, ok := r.byTransport[transport]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byTransport, transport)

	context := r.connections[identity]
	if context == nil || context.Transport != transport {
		r.mu.Unlock()
		return
	}
	context.Status = StatusDisconnected
	context.LastMessageAt = time.Now().UTC()
	r.mu.Unlock()

	r.logger.Info("station disconnected", zap.String("identity", identity), zap.String("reason", reason))

	if r.presence != nil {
		r.presence.Offline(identity)
	}
}

// ListConnections returns a snapshot of all contexts.
func (r *Registry) ListConnections() []ConnectionContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	contexts := make([]ConnectionContext, 0, len(r.connections))
	for _, context := range r.connections {
		contexts = append(contexts, *context)
	}
	return contexts
}

// Shutdown closes every live transport with code 1001 and clears all state.
// Called once during process teardown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	contexts := make([]*ConnectionContext, 0, len(r.connections))
	for _, context := range r.connections {
		contexts = append(contexts, context)
	}
	r.connections = make(map[string]*ConnectionContext)
	r.byTransport = make(map[Transport]string)
	r.mu.Unlock()

	r.logger.Info("closing active connections", zap.Int("count", len(contexts)))
	for _, context := range contexts {
		if context.Status != StatusConnected {
			continue
		}
		if err := context.Transport.Close(1001, "Server shutdown"); err != nil {
			r.logger.Debug("closing transport failed", zap.String("identity", context.Identity), zap.Error(err))
		}
		if r.presence != nil {
			r.presence.Offline(context.Identity)
		}
	}
}
