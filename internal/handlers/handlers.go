// Package handlers binds each supported OCPP action to its validator and the
// matching domain-service call.
package handlers

import (
	"context"
	"encoding/json"

	"chargelink/internal/ocpp"
	"chargelink/internal/ocpp/protocol"
	"chargelink/internal/service"
)

// Register attaches every supported action to the router.
func Register(router *ocpp.Router, stations *service.StationService) {
	router.Register(protocol.ActionBootNotification, NewBootNotificationHandler(stations))
	router.Register(protocol.ActionHeartbeat, NewHeartbeatHandler(stations))
	router.Register(protocol.ActionStatusNotification, NewStatusNotificationHandler(stations))
	router.Register(protocol.ActionStartTransaction, NewStartTransactionHandler(stations))
	router.Register(protocol.ActionStopTransaction, NewStopTransactionHandler(stations))
	router.Register(protocol.ActionMeterValues, NewMeterValuesHandler(stations))
}

// NewBootNotificationHandler upserts the station; the result signals the
// transport to bind the identity and drain the offline queue.
func NewBootNotificationHandler(stations *service.StationService) ocpp.HandlerFunc {
	return func(ctx context.Context, caller ocpp.Caller, payload json.RawMessage) (ocpp.Result, error) {
		req, err := protocol.ParseBootNotification(payload)
		if err != nil {
			return ocpp.Result{}, err
		}

		boot, err := stations.HandleBootNotification(ctx, caller.Identity, req, caller.Endpoint)
		if err != nil {
			return ocpp.Result{}, err
		}

		return ocpp.Result{
			Payload:      boot.Response,
			StationID:    boot.StationID,
			FlushPending: true,
		}, nil
	}
}

// NewHeartbeatHandler acks with server time.
func NewHeartbeatHandler(stations *service.StationService) ocpp.HandlerFunc {
	return func(ctx context.Context, caller ocpp.Caller, _ json.RawMessage) (ocpp.Result, error) {
		resp, err := stations.HandleHeartbeat(ctx, caller.Identity)
		if err != nil {
			return ocpp.Result{}, err
		}
		return ocpp.Result{Payload: resp}, nil
	}
}

// NewStatusNotificationHandler updates connector and station status.
func NewStatusNotificationHandler(stations *service.StationService) ocpp.HandlerFunc {
	return func(ctx context.Context, caller ocpp.Caller, payload json.RawMessage) (ocpp.Result, error) {
		req, err := protocol.ParseStatusNotification(payload)
		if err != nil {
			return ocpp.Result{}, err
		}
		if err := stations.HandleStatusNotification(ctx, caller.Identity, req); err != nil {
			return ocpp.Result{}, err
		}
		return ocpp.Result{}, nil
	}
}

// NewStartTransactionHandler opens a charging transaction.
func NewStartTransactionHandler(stations *service.StationService) ocpp.HandlerFunc {
	return func(ctx context.Context, caller ocpp.Caller, payload json.RawMessage) (ocpp.Result, error) {
		req, err := protocol.ParseStartTransaction(payload)
		if err != nil {
			return ocpp.Result{}, err
		}
		resp, err := stations.HandleStartTransaction(ctx, caller.Identity, req)
		if err != nil {
			return ocpp.Result{}, err
		}
		return ocpp.Result{Payload: resp}, nil
	}
}

// NewStopTransactionHandler completes a charging transaction.
func NewStopTransactionHandler(stations *service.StationService) ocpp.HandlerFunc {
	return func(ctx context.Context, _ ocpp.Caller, payload json.RawMessage) (ocpp.Result, error) {
		req, err := protocol.ParseStopTransaction(payload)
		if err != nil {
			return ocpp.Result{}, err
		}
		if err := stations.HandleStopTransaction(ctx, req); err != nil {
			return ocpp.Result{}, err
		}
		return ocpp.Result{
			Payload: protocol.StopTransactionResponse{
				IdTagInfo: protocol.IdTagInfo{Status: protocol.RegistrationAccepted},
			},
		}, nil
	}
}

// NewMeterValuesHandler persists sampled readings.
func NewMeterValuesHandler(stations *service.StationService) ocpp.HandlerFunc {
	return func(ctx context.Context, caller ocpp.Caller, payload json.RawMessage) (ocpp.Result, error) {
		req, err := protocol.ParseMeterValues(payload)
		if err != nil {
			return ocpp.Result{}, err
		}
		if err := stations.HandleMeterValues(ctx, caller.Identity, req); err != nil {
			return ocpp.Result{}, err
		}
		return ocpp.Result{}, nil
	}
}
