package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// StationStatus is the aggregate status of a charging station.
type StationStatus string

const (
	StationAvailable   StationStatus = "AVAILABLE"
	StationCharging    StationStatus = "CHARGING"
	StationFaulted     StationStatus = "FAULTED"
	StationUnavailable StationStatus = "UNAVAILABLE"
)

// ConnectorStatus mirrors the OCPP 1.6 connector status enumeration.
type ConnectorStatus string

const (
	ConnectorAvailable     ConnectorStatus = "AVAILABLE"
	ConnectorPreparing     ConnectorStatus = "PREPARING"
	ConnectorCharging      ConnectorStatus = "CHARGING"
	ConnectorSuspendedEV   ConnectorStatus = "SUSPENDEDEV"
	ConnectorSuspendedEVSE ConnectorStatus = "SUSPENDEDEVSE"
	ConnectorFinishing     ConnectorStatus = "FINISHING"
	ConnectorReserved      ConnectorStatus = "RESERVED"
	ConnectorUnavailable   ConnectorStatus = "UNAVAILABLE"
	ConnectorFaulted       ConnectorStatus = "FAULTED"
)

// TransactionStatus of a charging transaction.
type TransactionStatus string

const (
	TransactionStarted   TransactionStatus = "STARTED"
	TransactionCompleted TransactionStatus = "COMPLETED"
)

// MessageStatus of a queued station-bound message. A message transitions
// PENDING to DISPATCHED or FAILED exactly once and is never re-queued.
type MessageStatus string

const (
	MessagePending    MessageStatus = "PENDING"
	MessageDispatched MessageStatus = "DISPATCHED"
	MessageFailed     MessageStatus = "FAILED"
)

// EventType of an audit log entry.
type EventType string

const (
	EventBootNotification   EventType = "BOOT_NOTIFICATION"
	EventHeartbeat          EventType = "HEARTBEAT"
	EventStatusNotification EventType = "STATUS_NOTIFICATION"
	EventStartTransaction   EventType = "START_TRANSACTION"
	EventStopTransaction    EventType = "STOP_TRANSACTION"
	EventMeterValues        EventType = "METER_VALUES"
)

// ErrNotFound is returned for lookups of unknown records.
var ErrNotFound = errors.New("storage: not found")

// Station is the durable station record. OCPPIdentity is the stable business
// key; ID is owned by the store and opaque to callers.
type Station struct {
	ID              string
	OCPPIdentity    string
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	Endpoint        string
	LastHeartbeatAt time.Time
	Status          StationStatus
}

// StationUpsert carries the fields BootNotification writes.
type StationUpsert struct {
	OCPPIdentity    string
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	Endpoint        string
	LastHeartbeatAt time.Time
	Status          StationStatus
}

// Connector is keyed by (stationId, ocppConnectorId); connector 0 denotes the
// station-level master connector.
type Connector struct {
	StationID       string
	OCPPConnectorID int
	Status          ConnectorStatus
	ErrorCode       string
	Info            string
	VendorErrorCode string
	StatusTimestamp time.Time
}

// Transaction records one charging session.
type Transaction struct {
	ID              int64
	StationID       string
	OCPPConnectorID int
	IdTag           string
	MeterStart      float64
	StartedAt       time.Time
	ReservationID   *int
	Status          TransactionStatus
	MeterStop       *float64
	StoppedAt       *time.Time
	Reason          string
}

// MeterSample is one append-only metered reading.
type MeterSample struct {
	StationID     string
	ConnectorID   int
	TransactionID *int64
	SampledAt     time.Time
	Value         float64
	Context       string
	Format        string
	Measurand     string
	Phase         string
	Location      string
	Unit          string
}

// QueuedMessage is a station-bound command awaiting delivery.
type QueuedMessage struct {
	ID            string
	StationID     string
	Action        string
	Payload       json.RawMessage
	UniqueID      string
	TransactionID *int64
	Status        MessageStatus
	AvailableAt   *time.Time
	SentAt        *time.Time
	ErrorDetails  string
	CreatedAt     time.Time
}

// Store is the storage capability the domain service and message queue run
// against. The durable and in-memory implementations must produce observably
// equivalent results.
type Store interface {
	UpsertStation(ctx context.Context, upsert StationUpsert) (Station, error)
	// EnsureStation resolves the station behind a live identity. The durable
	// store returns ErrNotFound for identities that never completed a
	// BootNotification; the fallback store creates a placeholder so stations
	// that booted before an outage keep operating.
	EnsureStation(ctx context.Context, identity string) (Station, error)
	TouchHeartbeat(ctx context.Context, stationID string, at time.Time) error
	UpdateStationStatus(ctx context.Context, stationID string, status StationStatus) error

	UpsertConnector(ctx context.Context, connector Connector) error
	ListConnectors(ctx context.Context, stationID string) ([]Connector, error)

	CreateTransaction(ctx context.Context, tx Transaction) (int64, error)
	FindTransaction(ctx context.Context, id int64) (Transaction, error)
	CompleteTransaction(ctx context.Context, id int64, meterStop float64, stoppedAt time.Time, reason string) error

	InsertMeterSamples(ctx context.Context, samples []MeterSample) error

	RecordStationEvent(ctx context.Context, stationID string, event EventType, payload, metadata interface{}) error

	EnqueueMessage(ctx context.Context, message QueuedMessage) (QueuedMessage, error)
	ListPendingMessages(ctx context.Context, stationID string) ([]QueuedMessage, error)
	MarkMessageDispatched(ctx context.Context, id string) error
	MarkMessageFailed(ctx context.Context, id string, details string) error
}

// Dual selects between the durable and fallback stores per call, gated by a
// cheap connectivity check. Callers never branch on mode themselves.
type Dual struct {
	durable   Store
	fallback  Store
	connected func() bool
}

// NewDual builds the selector.
func NewDual(durable, fallback Store, connected func() bool) *Dual {
	return &Dual{durable: durable, fallback: fallback, connected: connected}
}

func (d *Dual) pick() Store {
	if d.connected() {
		return d.durable
	}
	return d.fallback
}

func (d *Dual) UpsertStation(ctx context.Context, upsert StationUpsert) (Station, error) {
	return d.pick().UpsertStation(ctx, upsert)
}

func (d *Dual) EnsureStation(ctx context.Context, identity string) (Station, error) {
	return d.pick().EnsureStation(ctx, identity)
}

func (d *Dual) TouchHeartbeat(ctx context.Context, stationID string, at time.Time) error {
	return d.pick().TouchHeartbeat(ctx, stationID, at)
}

func (d *Dual) UpdateStationStatus(ctx context.Context, stationID string, status StationStatus) error {
	return d.pick().UpdateStationStatus(ctx, stationID, status)
}

func (d *Dual) UpsertConnector(ctx context.Context, connector Connector) error {
	return d.pick().UpsertConnector(ctx, connector)
}

func (d *Dual) ListConnectors(ctx context.Context, stationID string) ([]Connector, error) {
	return d.pick().ListConnectors(ctx, stationID)
}

func (d *Dual) CreateTransaction(ctx context.Context, tx Transaction) (int64, error) {
	return d.pick().CreateTransaction(ctx, tx)
}

func (d *Dual) FindTransaction(ctx context.Context, id int64) (Transaction, error) {
	return d.pick().FindTransaction(ctx, id)
}

func (d *Dual) CompleteTransaction(ctx context.Context, id int64, meterStop float64, stoppedAt time.Time, reason string) error {
	return d.pick().CompleteTransaction(ctx, id, meterStop, stoppedAt, reason)
}

func (d *Dual) InsertMeterSamples(ctx context.Context, samples []MeterSample) error {
	return d.pick().InsertMeterSamples(ctx, samples)
}

func (d *Dual) RecordStationEvent(ctx context.Context, stationID string, event EventType, payload, metadata interface{}) error {
	return d.pick().RecordStationEvent(ctx, stationID, event, payload, metadata)
}

func (d *Dual) EnqueueMessage(ctx context.Context, message QueuedMessage) (QueuedMessage, error) {
	return d.pick().EnqueueMessage(ctx, message)
}

func (d *Dual) ListPendingMessages(ctx context.Context, stationID string) ([]QueuedMessage, error) {
	return d.pick().ListPendingMessages(ctx, stationID)
}

func (d *Dual) MarkMessageDispatched(ctx context.Context, id string) error {
	return d.pick().MarkMessageDispatched(ctx, id)
}

func (d *Dual) MarkMessageFailed(ctx context.Context, id string, details string) error {
	return d.pick().MarkMessageFailed(ctx, id, details)
}
