package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
	defaultConnLifetime = time.Hour
	defaultConnIdleTime = 30 * time.Minute
)

// NewPostgresDB creates a pgx/stdlib backed *sql.DB pool. The connection is
// not validated here; the connectivity monitor owns that.
func NewPostgresDB(dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("storage: empty DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnLifetime)
	db.SetConnMaxIdleTime(defaultConnIdleTime)

	return db, nil
}

// PostgresStore is the durable Store implementation.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns the durable store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) UpsertStation(ctx context.Context, upsert StationUpsert) (Station, error) {
	const query = `
		INSERT INTO charging_stations
			(id, ocpp_identity, vendor, model, serial_number, firmware_version, endpoint, last_heartbeat_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (ocpp_identity) DO UPDATE SET
			vendor = EXCLUDED.vendor,
			model = EXCLUDED.model,
			serial_number = EXCLUDED.serial_number,
			firmware_version = EXCLUDED.firmware_version,
			endpoint = EXCLUDED.endpoint,
			last_heartbeat_at = EXCLUDED.last_heartbeat_at,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING id
	`
	station := Station{
		OCPPIdentity:    upsert.OCPPIdentity,
		Vendor:          upsert.Vendor,
		Model:           upsert.Model,
		SerialNumber:    upsert.SerialNumber,
		FirmwareVersion: upsert.FirmwareVersion,
		Endpoint:        upsert.Endpoint,
		LastHeartbeatAt: upsert.LastHeartbeatAt,
		Status:          upsert.Status,
	}
	err := s.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		upsert.OCPPIdentity,
		upsert.Vendor,
		upsert.Model,
		upsert.SerialNumber,
		upsert.FirmwareVersion,
		upsert.Endpoint,
		upsert.LastHeartbeatAt,
		upsert.Status,
	).Scan(&station.ID)
	if err != nil {
		return Station{}, fmt.Errorf("storage: upsert station: %w", err)
	}
	return station, nil
}

func (s *PostgresStore) EnsureStation(ctx context.Context, identity string) (Station, error) {
	const query = `
		SELECT id, ocpp_identity, vendor, model, serial_number, firmware_version, endpoint, last_heartbeat_at, status
		FROM charging_stations
		WHERE ocpp_identity = $1
	`
	var station Station
	err := s.db.QueryRowContext(ctx, query, identity).Scan(
		&station.ID,
		&station.OCPPIdentity,
		&station.Vendor,
		&station.Model,
		&station.SerialNumber,
		&station.FirmwareVersion,
		&station.Endpoint,
		&station.LastHeartbeatAt,
		&station.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Station{}, ErrNotFound
	}
	if err != nil {
		return Station{}, fmt.Errorf("storage: find station: %w", err)
	}
	return station, nil
}

func (s *PostgresStore) TouchHeartbeat(ctx context.Context, stationID string, at time.Time) error {
	const query = `
		UPDATE charging_stations
		SET last_heartbeat_at = $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, stationID, at)
	return err
}

func (s *PostgresStore) UpdateStationStatus(ctx context.Context, stationID string, status StationStatus) error {
	const query = `
		UPDATE charging_stations
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, stationID, status)
	return err
}

func (s *PostgresStore) UpsertConnector(ctx context.Context, connector Connector) error {
	const query = `
		INSERT INTO charging_connectors
			(station_id, ocpp_connector_id, status, error_code, info, vendor_error_code, status_timestamp, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (station_id, ocpp_connector_id) DO UPDATE SET
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			info = EXCLUDED.info,
			vendor_error_code = EXCLUDED.vendor_error_code,
			status_timestamp = EXCLUDED.status_timestamp,
			updated_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query,
		connector.StationID,
		connector.OCPPConnectorID,
		connector.Status,
		connector.ErrorCode,
		connector.Info,
		connector.VendorErrorCode,
		connector.StatusTimestamp,
	)
	return err
}

func (s *PostgresStore) ListConnectors(ctx context.Context, stationID string) ([]Connector, error) {
	const query = `
		SELECT station_id, ocpp_connector_id, status, error_code, info, vendor_error_code, status_timestamp
		FROM charging_connectors
		WHERE station_id = $1
		ORDER BY ocpp_connector_id
	`
	rows, err := s.db.QueryContext(ctx, query, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var connectors []Connector
	for rows.Next() {
		var connector Connector
		if err := rows.Scan(
			&connector.StationID,
			&connector.OCPPConnectorID,
			&connector.Status,
			&connector.ErrorCode,
			&connector.Info,
			&connector.VendorErrorCode,
			&connector.StatusTimestamp,
		); err != nil {
			return nil, err
		}
		connectors = append(connectors, connector)
	}
	return connectors, rows.Err()
}

func (s *PostgresStore) CreateTransaction(ctx context.Context, tx Transaction) (int64, error) {
	const query = `
		INSERT INTO transactions
			(station_id, ocpp_connector_id, id_tag, meter_start, started_at, reservation_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id
	`
	var id int64
	err := s.db.QueryRowContext(ctx, query,
		tx.StationID,
		tx.OCPPConnectorID,
		tx.IdTag,
		tx.MeterStart,
		tx.StartedAt,
		tx.ReservationID,
		TransactionStarted,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("storage: create transaction: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) FindTransaction(ctx context.Context, id int64) (Transaction, error) {
	const query = `
		SELECT id, station_id, ocpp_connector_id, id_tag, meter_start, started_at, status,
		       meter_stop, stopped_at, COALESCE(reason, '')
		FROM transactions
		WHERE id = $1
	`
	var tx Transaction
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&tx.ID,
		&tx.StationID,
		&tx.OCPPConnectorID,
		&tx.IdTag,
		&tx.MeterStart,
		&tx.StartedAt,
		&tx.Status,
		&tx.MeterStop,
		&tx.StoppedAt,
		&tx.Reason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("storage: find transaction: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) CompleteTransaction(ctx context.Context, id int64, meterStop float64, stoppedAt time.Time, reason string) error {
	const query = `
		UPDATE transactions
		SET status = $2, meter_stop = $3, stopped_at = $4, reason = NULLIF($5, '')
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, id, TransactionCompleted, meterStop, stoppedAt, reason)
	return err
}

func (s *PostgresStore) InsertMeterSamples(ctx context.Context, samples []MeterSample) error {
	if len(samples) == 0 {
		return nil
	}

	const query = `
		INSERT INTO meter_values
			(station_id, connector_id, transaction_id, sampled_at, value, context, format, measurand, phase, location, unit, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NOW())
	`
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	for _, sample := range samples {
		if _, err := dbTx.ExecContext(ctx, query,
			sample.StationID,
			sample.ConnectorID,
			sample.TransactionID,
			sample.SampledAt,
			sample.Value,
			sample.Context,
			sample.Format,
			sample.Measurand,
			sample.Phase,
			sample.Location,
			sample.Unit,
		); err != nil {
			return fmt.Errorf("storage: insert meter sample: %w", err)
		}
	}
	return dbTx.Commit()
}

func (s *PostgresStore) RecordStationEvent(ctx context.Context, stationID string, event EventType, payload, metadata interface{}) error {
	const query = `
		INSERT INTO station_event_log (station_id, event_type, payload, metadata, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var metadataJSON []byte
	if metadata != nil {
		if metadataJSON, err = json.Marshal(metadata); err != nil {
			return err
		}
	}
	_, err = s.db.ExecContext(ctx, query, stationID, event, payloadJSON, metadataJSON)
	return err
}

func (s *PostgresStore) EnqueueMessage(ctx context.Context, message QueuedMessage) (QueuedMessage, error) {
	const query = `
		INSERT INTO station_messages
			(id, station_id, action, payload, unique_id, transaction_id, status, available_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	message.Status = MessagePending
	err := s.db.QueryRowContext(ctx, query,
		message.ID,
		message.StationID,
		message.Action,
		[]byte(message.Payload),
		message.UniqueID,
		message.TransactionID,
		message.Status,
		message.AvailableAt,
	).Scan(&message.CreatedAt)
	if err != nil {
		return QueuedMessage{}, fmt.Errorf("storage: enqueue message: %w", err)
	}
	return message, nil
}

func (s *PostgresStore) ListPendingMessages(ctx context.Context, stationID string) ([]QueuedMessage, error) {
	const query = `
		SELECT id, station_id, action, payload, unique_id, transaction_id, status, available_at, sent_at, COALESCE(error_details, ''), created_at
		FROM station_messages
		WHERE station_id = $1
		  AND status = $2
		  AND (available_at IS NULL OR available_at <= NOW())
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, stationID, MessagePending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []QueuedMessage
	for rows.Next() {
		var message QueuedMessage
		var payload []byte
		if err := rows.Scan(
			&message.ID,
			&message.StationID,
			&message.Action,
			&payload,
			&message.UniqueID,
			&message.TransactionID,
			&message.Status,
			&message.AvailableAt,
			&message.SentAt,
			&message.ErrorDetails,
			&message.CreatedAt,
		); err != nil {
			return nil, err
		}
		message.Payload = payload
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) MarkMessageDispatched(ctx context.Context, id string) error {
	const query = `
		UPDATE station_messages
		SET status = $2, sent_at = NOW()
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, id, MessageDispatched)
	return err
}

func (s *PostgresStore) MarkMessageFailed(ctx context.Context, id string, details string) error {
	const query = `
		UPDATE station_messages
		SET status = $2, error_details = $3
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, id, MessageFailed, details)
	return err
}

var _ Store = (*PostgresStore)(nil)
