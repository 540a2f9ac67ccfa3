package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const pingTimeout = 3 * time.Second

// Pinger is the durable-store health probe.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Monitor tracks durable-store connectivity on an independent timer. Callers
// check Connected per operation instead of awaiting the monitor; subscribers
// are notified on transitions. On failure the probe retries every interval.
type Monitor struct {
	pinger      Pinger
	interval    time.Duration
	logger      *zap.Logger
	mu          sync.Mutex
	connected   bool
	subscribers []func(connected bool)
}

// NewMonitor builds a monitor that starts disconnected until the first
// successful probe.
func NewMonitor(pinger Pinger, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		pinger:   pinger,
		interval: interval,
		logger:   logger,
	}
}

// Connected reports the last observed connectivity. Cheap; safe per-operation.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Subscribe registers a connectivity-transition callback.
func (m *Monitor) Subscribe(fn func(connected bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Start probes immediately, then on every interval tick until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := m.pinger.PingContext(pingCtx)
	cancel()

	connected := err == nil

	m.mu.Lock()
	changed := connected != m.connected
	m.connected = connected
	subscribers := make([]func(bool), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	if !changed {
		return
	}

	if connected {
		m.logger.Info("durable store reachable")
	} else {
		m.logger.Warn("durable store unreachable, running in-memory", zap.Error(err))
	}

	for _, fn := range subscribers {
		fn(connected)
	}
}
