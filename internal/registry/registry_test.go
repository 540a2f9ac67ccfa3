package registry

import (
	"sync"
	"testing"

	"go.uber.org/zap"
)

type fakeTransport struct {
	mu         sync.Mutex
	written    [][]byte
	closeCode  int
	closeText  string
	closeCalls int
}

func (f *fakeTransport) WriteText(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, append([]byte{}, payload...))
	return nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.closeCode = code
	f.closeText = reason
	return nil
}

func (f *fakeTransport) closed() (int, string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode, f.closeText, f.closeCalls
}

type fakePresence struct {
	mu      sync.Mutex
	online  []string
	offline []string
}

func (f *fakePresence) Online(identity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, identity)
}

func (f *fakePresence) Offline(identity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, identity)
}

func TestRegisterReplacesExistingConnection(t *testing.T) {
	registry := New(nil, zap.NewNop())

	first := &fakeTransport{}
	registry.Register("CP-001", first)
	registry.AssociateStation("CP-001", "station-uuid-1")

	second := &fakeTransport{}
	registry.Register("CP-001", second)

	code, reason, calls := first.closed()
	if calls != 1 {
		t.Fatalf("expected previous transport closed once, got %d", calls)
	}
	if code != 1012 {
		t.Fatalf("expected close code 1012, got %d", code)
	}
	if reason != "Replaced by a new connection" {
		t.Fatalf("unexpected close reason: %q", reason)
	}

	context, ok := registry.GetContext("CP-001")
	if !ok {
		t.Fatalf("context missing after replacement")
	}
	if context.Transport != second {
		t.Fatalf("context must point at the replacing transport")
	}
	if context.StationID != "station-uuid-1" {
		t.Fatalf("station binding must survive replacement, got %q", context.StationID)
	}

	if _, ok := registry.IdentityByTransport(first); ok {
		t.Fatalf("replaced transport must not resolve to an identity")
	}
	if identity, ok := registry.IdentityByTransport(second); !ok || identity != "CP-001" {
		t.Fatalf("expected second transport to resolve to CP-001, got %q ok=%v", identity, ok)
	}
}

func TestMarkDisconnectedKeepsContext(t *testing.T) {
	registry := New(nil, zap.NewNop())
	transport := &fakeTransport{}
	registry.Register("CP-002", transport)

	registry.MarkDisconnected(transport, "socket closed")

	context, ok := registry.GetContext("CP-002")
	if !ok {
		t.Fatalf("context must be kept for inspection after disconnect")
	}
	if context.Status != StatusDisconnected {
		t.Fatalf("expected DISCONNECTED, got %s", context.Status)
	}
	if _, ok := registry.IdentityByTransport(transport); ok {
		t.Fatalf("transport mapping must be dropped on disconnect")
	}

	// Unknown transports are a no-op.
	registry.MarkDisconnected(&fakeTransport{}, "socket closed")
}

func TestMarkDisconnectedIgnoresStaleTransport(t *testing.T) {
	registry := New(nil, zap.NewNop())
	first := &fakeTransport{}
	registry.Register("CP-003", first)
	second := &fakeTransport{}
	registry.Register("CP-003", second)

	// The replaced goroutine reporting its own death must not flip the
	// live replacement connection.
	registry.MarkDisconnected(first, "socket closed")

	context, ok := registry.GetContext("CP-003")
	if !ok || context.Status != StatusConnected {
		t.Fatalf("live connection flipped by stale disconnect: ok=%v status=%s", ok, context.Status)
	}
}

func TestShutdownClosesAllConnections(t *testing.T) {
	registry := New(nil, zap.NewNop())
	transports := []*fakeTransport{{}, {}, {}}
	registry.Register("CP-A", transports[0])
	registry.Register("CP-B", transports[1])
	registry.Register("CP-C", transports[2])

	registry.Shutdown()

	for i, transport := range transports {
		code, reason, calls := transport.closed()
		if calls != 1 {
			t.Fatalf("transport %d: expected one close, got %d", i, calls)
		}
		if code != 1001 {
			t.Fatalf("transport %d: expected close code 1001, got %d", i, code)
		}
		if reason != "Server shutdown" {
			t.Fatalf("transport %d: unexpected reason %q", i, reason)
		}
	}

	if got := len(registry.ListConnections()); got != 0 {
		t.Fatalf("expected empty registry after shutdown, got %d contexts", got)
	}
}

func TestPresenceNotifications(t *testing.T) {
	presence := &fakePresence{}
	registry := New(presence, zap.NewNop())

	transport := &fakeTransport{}
	registry.Register("CP-010", transport)
	registry.MarkDisconnected(transport, "socket closed")

	presence.mu.Lock()
	defer presence.mu.Unlock()
	if len(presence.online) != 1 || presence.online[0] != "CP-010" {
		t.Fatalf("expected online notification for CP-010, got %v", presence.online)
	}
	if len(presence.offline) != 1 || presence.offline[0] != "CP-010" {
		t.Fatalf("expected offline notification for CP-010, got %v", presence.offline)
	}
}

func TestUpdateActivityBumpsTimestamp(t *testing.T) {
	registry := New(nil, zap.NewNop())
	registry.Register("CP-020", &fakeTransport{})

	before, _ := registry.GetContext("CP-020")
	stamp := before.LastMessageAt

	registry.UpdateActivity("CP-020")

	after, _ := registry.GetContext("CP-020")
	if after.LastMessageAt.Before(stamp) {
		t.Fatalf("lastMessageAt went backwards")
	}
	if after.Status != StatusConnected {
		t.Fatalf("expected CONNECTED after activity, got %s", after.Status)
	}

	// Unknown identities are a no-op.
	registry.UpdateActivity("CP-missing")
}
