package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"chargelink/internal/ocpp"
	"chargelink/internal/ocpp/protocol"
	"chargelink/internal/storage"
)

const noError = "NoError"

// connectorStatusMap translates OCPP status strings into connector statuses.
// Unrecognized strings map to UNAVAILABLE with a warning.
var connectorStatusMap = map[string]storage.ConnectorStatus{
	"Available":     storage.ConnectorAvailable,
	"Preparing":     storage.ConnectorPreparing,
	"Charging":      storage.ConnectorCharging,
	"SuspendedEV":   storage.ConnectorSuspendedEV,
	"SuspendedEVSE": storage.ConnectorSuspendedEVSE,
	"Finishing":     storage.ConnectorFinishing,
	"Reserved":      storage.ConnectorReserved,
	"Unavailable":   storage.ConnectorUnavailable,
	"Faulted":       storage.ConnectorFaulted,
}

// StationService is the charging-station state machine. All state passes
// through the Store; whether that hits the durable or the in-memory
// implementation is decided per call by the storage selector.
type StationService struct {
	store             storage.Store
	heartbeatInterval int
	logger            *zap.Logger
}

// NewStationService builds the domain service.
func NewStationService(store storage.Store, heartbeatIntervalSeconds int, logger *zap.Logger) *StationService {
	return &StationService{
		store:             store,
		heartbeatInterval: heartbeatIntervalSeconds,
		logger:            logger,
	}
}

// BootResult is the outcome of a BootNotification.
type BootResult struct {
	StationID string
	Response  protocol.BootNotificationResponse
}

// HandleBootNotification upserts the station keyed by identity and accepts
// the registration.
func (s *StationService) HandleBootNotification(ctx context.Context, identity string, req *protocol.BootNotificationRequest, endpoint string) (BootResult, error) {
	now := time.Now().UTC()

	serialNumber := req.ChargePointSerialNumber
	if serialNumber == "" {
		serialNumber = req.ChargeBoxSerialNumber
	}
	if serialNumber == "" {
		serialNumber = req.MeterSerialNumber
	}

	station, err := s.store.UpsertStation(ctx, storage.StationUpsert{
		OCPPIdentity:    identity,
		Vendor:          req.ChargePointVendor,
		Model:           req.ChargePointModel,
		SerialNumber:    serialNumber,
		FirmwareVersion: req.FirmwareVersion,
		Endpoint:        endpoint,
		LastHeartbeatAt: now,
		Status:          storage.StationAvailable,
	})
	if err != nil {
		return BootResult{}, err
	}

	s.recordEvent(ctx, station.ID, storage.EventBootNotification,
		map[string]interface{}{"payload": req, "endpoint": endpoint},
		map[string]interface{}{"receivedAt": protocol.FormatTimestamp(now)},
	)

	return BootResult{
		StationID: station.ID,
		Response: protocol.BootNotificationResponse{
			Status:      protocol.RegistrationAccepted,
			CurrentTime: protocol.FormatTimestamp(now),
			Interval:    s.heartbeatInterval,
		},
	}, nil
}

// HandleHeartbeat updates lastHeartbeatAt and returns server time.
func (s *StationService) HandleHeartbeat(ctx context.Context, identity string) (protocol.HeartbeatResponse, error) {
	now := time.Now().UTC()

	station, err := s.ensureStation(ctx, identity)
	if err != nil {
		return protocol.HeartbeatResponse{}, err
	}

	if err := s.store.TouchHeartbeat(ctx, station.ID, now); err != nil {
		return protocol.HeartbeatResponse{}, err
	}

	s.recordEvent(ctx, station.ID, storage.EventHeartbeat,
		map[string]interface{}{"receivedAt": protocol.FormatTimestamp(now)}, nil)

	return protocol.HeartbeatResponse{CurrentTime: protocol.FormatTimestamp(now)}, nil
}

// HandleStatusNotification upserts the connector and recomputes the station's
// aggregate status.
func (s *StationService) HandleStatusNotification(ctx context.Context, identity string, req *protocol.StatusNotificationRequest) error {
	connectorStatus := s.resolveConnectorStatus(req.Status)
	statusTimestamp := req.Timestamp
	if statusTimestamp.IsZero() {
		statusTimestamp = time.Now().UTC()
	}

	station, err := s.ensureStation(ctx, identity)
	if err != nil {
		return err
	}

	if err := s.store.UpsertConnector(ctx, storage.Connector{
		StationID:       station.ID,
		OCPPConnectorID: req.ConnectorID,
		Status:          connectorStatus,
		ErrorCode:       req.ErrorCode,
		Info:            req.Info,
		VendorErrorCode: req.VendorErrorCode,
		StatusTimestamp: statusTimestamp,
	}); err != nil {
		return err
	}

	if err := s.recomputeStationStatus(ctx, station.ID); err != nil {
		return err
	}

	s.recordEvent(ctx, station.ID, storage.EventStatusNotification, map[string]interface{}{
		"connectorId":     req.ConnectorID,
		"status":          req.Status,
		"errorCode":       req.ErrorCode,
		"info":            req.Info,
		"vendorErrorCode": req.VendorErrorCode,
		"timestamp":       protocol.FormatTimestamp(statusTimestamp),
	}, nil)

	return nil
}

// HandleStartTransaction creates a transaction and moves the target connector
// to CHARGING.
func (s *StationService) HandleStartTransaction(ctx context.Context, identity string, req *protocol.StartTransactionRequest) (protocol.StartTransactionResponse, error) {
	station, err := s.ensureStation(ctx, identity)
	if err != nil {
		return protocol.StartTransactionResponse{}, err
	}

	if err := s.store.UpsertConnector(ctx, storage.Connector{
		StationID:       station.ID,
		OCPPConnectorID: req.ConnectorID,
		Status:          storage.ConnectorCharging,
		ErrorCode:       noError,
		StatusTimestamp: req.Timestamp,
	}); err != nil {
		return protocol.StartTransactionResponse{}, err
	}

	transactionID, err := s.store.CreateTransaction(ctx, storage.Transaction{
		StationID:       station.ID,
		OCPPConnectorID: req.ConnectorID,
		IdTag:           req.IdTag,
		MeterStart:      req.MeterStart,
		StartedAt:       req.Timestamp,
		ReservationID:   req.ReservationID,
	})
	if err != nil {
		return protocol.StartTransactionResponse{}, err
	}

	if err := s.recomputeStationStatus(ctx, station.ID); err != nil {
		return protocol.StartTransactionResponse{}, err
	}

	s.recordEvent(ctx, station.ID, storage.EventStartTransaction, map[string]interface{}{
		"transactionId": strconv.FormatInt(transactionID, 10),
		"connectorId":   req.ConnectorID,
		"idTag":         req.IdTag,
		"meterStart":    req.MeterStart,
		"startedAt":     protocol.FormatTimestamp(req.Timestamp),
	}, nil)

	return protocol.StartTransactionResponse{
		TransactionID: transactionID,
		IdTagInfo:     protocol.IdTagInfo{Status: protocol.RegistrationAccepted},
	}, nil
}

// HandleStopTransaction completes the transaction and returns its connector
// to AVAILABLE.
func (s *StationService) HandleStopTransaction(ctx context.Context, req *protocol.StopTransactionRequest) error {
	tx, err := s.store.FindTransaction(ctx, req.TransactionID)
	if errors.Is(err, storage.ErrNotFound) {
		return ocpp.NewCallErrorf(ocpp.ErrCodePropertyConstraintViolation,
			"Transaction %d could not be found", req.TransactionID)
	}
	if err != nil {
		return err
	}

	if err := s.store.CompleteTransaction(ctx, tx.ID, req.MeterStop, req.Timestamp, req.Reason); err != nil {
		return err
	}

	if err := s.store.UpsertConnector(ctx, storage.Connector{
		StationID:       tx.StationID,
		OCPPConnectorID: tx.OCPPConnectorID,
		Status:          storage.ConnectorAvailable,
		ErrorCode:       noError,
		StatusTimestamp: req.Timestamp,
	}); err != nil {
		return err
	}

	if err := s.recomputeStationStatus(ctx, tx.StationID); err != nil {
		return err
	}

	s.recordEvent(ctx, tx.StationID, storage.EventStopTransaction, map[string]interface{}{
		"transactionId": strconv.FormatInt(tx.ID, 10),
		"meterStop":     req.MeterStop,
		"reason":        req.Reason,
		"stoppedAt":     protocol.FormatTimestamp(req.Timestamp),
	}, nil)

	return nil
}

// HandleMeterValues flattens every (entry, sampledValue) pair into one sample
// row and persists the batch. The fallback store acknowledges without storing.
func (s *StationService) HandleMeterValues(ctx context.Context, identity string, req *protocol.MeterValuesRequest) error {
	station, err := s.ensureStation(ctx, identity)
	if err != nil {
		return err
	}

	samples := make([]storage.MeterSample, 0, len(req.MeterValue))
	for _, entry := range req.MeterValue {
		for _, sampled := range entry.SampledValue {
			value, err := strconv.ParseFloat(sampled.Value, 64)
			if err != nil {
				return ocpp.NewCallErrorf(ocpp.ErrCodeTypeConstraintViolation,
					"sampledValue value %q is not numeric", sampled.Value)
			}
			samples = append(samples, storage.MeterSample{
				StationID:     station.ID,
				ConnectorID:   req.ConnectorID,
				TransactionID: req.TransactionID,
				SampledAt:     entry.Timestamp,
				Value:         value,
				Context:       sampled.Context,
				Format:        sampled.Format,
				Measurand:     sampled.Measurand,
				Phase:         sampled.Phase,
				Location:      sampled.Location,
				Unit:          sampled.Unit,
			})
		}
	}

	if err := s.store.InsertMeterSamples(ctx, samples); err != nil {
		return err
	}

	s.recordEvent(ctx, station.ID, storage.EventMeterValues, map[string]interface{}{
		"connectorId":   req.ConnectorID,
		"transactionId": req.TransactionID,
		"samples":       len(samples),
	}, nil)

	return nil
}

func (s *StationService) ensureStation(ctx context.Context, identity string) (storage.Station, error) {
	station, err := s.store.EnsureStation(ctx, identity)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Station{}, ocpp.NewCallErrorf(ocpp.ErrCodeSecurityError,
			"Station %s has not completed a BootNotification", identity)
	}
	if err != nil {
		return storage.Station{}, err
	}
	return station, nil
}

func (s *StationService) recomputeStationStatus(ctx context.Context, stationID string) error {
	connectors, err := s.store.ListConnectors(ctx, stationID)
	if err != nil {
		return err
	}
	return s.store.UpdateStationStatus(ctx, stationID, DeriveStationStatus(connectors))
}

func (s *StationService) resolveConnectorStatus(raw string) storage.ConnectorStatus {
	if status, ok := connectorStatusMap[raw]; ok {
		return status
	}
	s.logger.Warn("unknown connector status received", zap.String("status", raw))
	return storage.ConnectorUnavailable
}

// recordEvent persists an audit entry best-effort. Failures are logged and
// swallowed; they must never block protocol replies.
func (s *StationService) recordEvent(ctx context.Context, stationID string, event storage.EventType, payload, metadata interface{}) {
	if err := s.store.RecordStationEvent(ctx, stationID, event, payload, metadata); err != nil {
		s.logger.Warn("failed to persist station event",
			zap.String("station_id", stationID),
			zap.String("event", string(event)),
			zap.Error(err))
	}
}
