package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type connectorKey struct {
	stationID   string
	connectorID int
}

// MemoryStore keeps equivalent state in process memory while the durable store
// is unreachable. Meter samples are acknowledged but never stored. Fallback
// transaction ids are process-local, monotonically increasing from 1.
type MemoryStore struct {
	mu                sync.Mutex
	stationsByID      map[string]*Station
	stationByIdentity map[string]string
	connectors        map[connectorKey]Connector
	transactions      map[int64]*Transaction
	nextTransactionID int64
	queues            map[string][]*QueuedMessage
}

// NewMemoryStore returns an empty fallback store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stationsByID:      make(map[string]*Station),
		stationByIdentity: make(map[string]string),
		connectors:        make(map[connectorKey]Connector),
		transactions:      make(map[int64]*Transaction),
		nextTransactionID: 1,
		queues:            make(map[string][]*QueuedMessage),
	}
}

func (s *MemoryStore) getOrCreateLocked(identity string) *Station {
	if id, ok := s.stationByIdentity[identity]; ok {
		return s.stationsByID[id]
	}
	station := &Station{
		ID:              uuid.NewString(),
		OCPPIdentity:    identity,
		LastHeartbeatAt: time.Now().UTC(),
		Status:          StationAvailable,
	}
	s.stationsByID[station.ID] = station
	s.stationByIdentity[identity] = station.ID
	return station
}

func (s *MemoryStore) UpsertStation(_ context.Context, upsert StationUpsert) (Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	station := s.getOrCreateLocked(upsert.OCPPIdentity)
	station.Vendor = upsert.Vendor
	station.Model = upsert.Model
	station.SerialNumber = upsert.SerialNumber
	station.FirmwareVersion = upsert.FirmwareVersion
	station.Endpoint = upsert.Endpoint
	station.LastHeartbeatAt = upsert.LastHeartbeatAt
	station.Status = upsert.Status
	return *station, nil
}

func (s *MemoryStore) EnsureStation(_ context.Context, identity string) (Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.getOrCreateLocked(identity), nil
}

func (s *MemoryStore) TouchHeartbeat(_ context.Context, stationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if station, ok := s.stationsByID[stationID]; ok {
		station.LastHeartbeatAt = at
	}
	return nil
}

func (s *MemoryStore) UpdateStationStatus(_ context.Context, stationID string, status StationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if station, ok := s.stationsByID[stationID]; ok {
		station.Status = status
	}
	return nil
}

func (s *MemoryStore) UpsertConnector(_ context.Context, connector Connector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectors[connectorKey{connector.StationID, connector.OCPPConnectorID}] = connector
	return nil
}

func (s *MemoryStore) ListConnectors(_ context.Context, stationID string) ([]Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var connectors []Connector
	for key, connector := range s.connectors {
		if key.stationID == stationID {
			connectors = append(connectors, connector)
		}
	}
	return connectors, nil
}

func (s *MemoryStore) CreateTransaction(_ context.Context, tx Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx.ID = s.nextTransactionID
	s.nextTransactionID++
	tx.Status = TransactionStarted
	s.transactions[tx.ID] = &tx
	return tx.ID, nil
}

func (s *MemoryStore) FindTransaction(_ context.Context, id int64) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return *tx, nil
}

func (s *MemoryStore) CompleteTransaction(_ context.Context, id int64, meterStop float64, stoppedAt time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return ErrNotFound
	}
	tx.Status = TransactionCompleted
	tx.MeterStop = &meterStop
	tx.StoppedAt = &stoppedAt
	tx.Reason = reason
	return nil
}

// InsertMeterSamples acknowledges without storing: meter data is best-effort
// while the durable store is unreachable.
func (s *MemoryStore) InsertMeterSamples(_ context.Context, _ []MeterSample) error {
	return nil
}

// RecordStationEvent is a no-op; the audit trail only exists durably.
func (s *MemoryStore) RecordStationEvent(_ context.Context, _ string, _ EventType, _, _ interface{}) error {
	return nil
}

func (s *MemoryStore) EnqueueMessage(_ context.Context, message QueuedMessage) (QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	message.Status = MessagePending
	message.CreatedAt = time.Now().UTC()
	stored := message
	s.queues[message.StationID] = append(s.queues[message.StationID], &stored)
	return stored, nil
}

func (s *MemoryStore) ListPendingMessages(_ context.Context, stationID string) ([]QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var pending []QueuedMessage
	for _, message := range s.queues[stationID] {
		if message.Status != MessagePending {
			continue
		}
		if message.AvailableAt != nil && message.AvailableAt.After(now) {
			continue
		}
		pending = append(pending, *message)
	}
	return pending, nil
}

func (s *MemoryStore) MarkMessageDispatched(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, queue := range s.queues {
		for _, message := range queue {
			if message.ID == id {
				now := time.Now().UTC()
				message.Status = MessageDispatched
				message.SentAt = &now
				return nil
			}
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) MarkMessageFailed(_ context.Context, id string, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, queue := range s.queues {
		for _, message := range queue {
			if message.ID == id {
				message.Status = MessageFailed
				message.ErrorDetails = details
				return nil
			}
		}
	}
	return ErrNotFound
}

var _ Store = (*MemoryStore)(nil)
