package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chargelink/internal/storage"
)

// QueueInput describes a station-bound command to enqueue.
type QueueInput struct {
	StationID     string
	Action        string
	Payload       interface{}
	TransactionID *int64
	AvailableAt   *time.Time
	UniqueID      string
}

// MessageQueue stores station-bound commands until the station is reachable.
// Drain order is FIFO by creation time; a message leaves PENDING exactly once.
type MessageQueue struct {
	store  storage.Store
	logger *zap.Logger
}

// NewMessageQueue builds the queue service.
func NewMessageQueue(store storage.Store, logger *zap.Logger) *MessageQueue {
	return &MessageQueue{store: store, logger: logger}
}

// Enqueue stores a PENDING message, generating a uniqueId when absent.
func (q *MessageQueue) Enqueue(ctx context.Context, input QueueInput) (storage.QueuedMessage, error) {
	uniqueID := input.UniqueID
	if uniqueID == "" {
		uniqueID = uuid.NewString()
	}

	payload, err := json.Marshal(input.Payload)
	if err != nil {
		return storage.QueuedMessage{}, err
	}

	message, err := q.store.EnqueueMessage(ctx, storage.QueuedMessage{
		StationID:     input.StationID,
		Action:        input.Action,
		Payload:       payload,
		UniqueID:      uniqueID,
		TransactionID: input.TransactionID,
		AvailableAt:   input.AvailableAt,
	})
	if err != nil {
		return storage.QueuedMessage{}, err
	}

	q.logger.Debug("queued station message",
		zap.String("station_id", input.StationID),
		zap.String("action", input.Action),
		zap.String("unique_id", uniqueID))

	return message, nil
}

// ListPending returns PENDING messages for the station whose availableAt is
// unset or in the past, ordered by creation time ascending.
func (q *MessageQueue) ListPending(ctx context.Context, stationID string) ([]storage.QueuedMessage, error) {
	return q.store.ListPendingMessages(ctx, stationID)
}

// MarkDispatched transitions a message to its DISPATCHED terminal state.
func (q *MessageQueue) MarkDispatched(ctx context.Context, id string) error {
	return q.store.MarkMessageDispatched(ctx, id)
}

// MarkFailed transitions a message to its FAILED terminal state with a
// serialized error description.
func (q *MessageQueue) MarkFailed(ctx context.Context, id string, cause error) error {
	details := "unknown error"
	if cause != nil {
		details = cause.Error()
	}
	return q.store.MarkMessageFailed(ctx, id, details)
}
