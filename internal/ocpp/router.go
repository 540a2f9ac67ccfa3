package ocpp

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Caller identifies the station a message arrived from.
type Caller struct {
	Identity string
	Endpoint string
}

// Result is what a handler produced for a CALL. StationID and FlushPending
// are only set by BootNotification: the transport binds the identity to the
// station and drains the offline queue.
type Result struct {
	Payload      interface{}
	StationID    string
	FlushPending bool
}

// HandlerFunc validates and applies one action's payload.
type HandlerFunc func(ctx context.Context, caller Caller, payload json.RawMessage) (Result, error)

// Outcome of a fully handled message.
type Outcome struct {
	Reply        []byte
	StationID    string
	FlushPending bool
}

// Router dispatches OCPP actions through a handler table. Adding an action
// means adding one table entry.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter returns an empty router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Register attaches a handler to an action.
func (r *Router) Register(action string, handler HandlerFunc) {
	r.handlers[action] = handler
}

// HandleMessage runs the envelope state machine for one raw text message:
// parse, dispatch, build the CALLRESULT. Any failure is returned as-is; the
// transport converts it into a CALLERROR envelope.
func (r *Router) HandleMessage(ctx context.Context, caller Caller, raw []byte) (Outcome, error) {
	call, err := ParseCall(raw)
	if err != nil {
		r.logger.Warn("rejected incoming message",
			zap.String("identity", caller.Identity), zap.Error(err))
		return Outcome{}, err
	}

	handler, ok := r.handlers[call.Action]
	if !ok {
		r.logger.Warn("unsupported action received",
			zap.String("identity", caller.Identity), zap.String("action", call.Action))
		return Outcome{}, NewCallError(ErrCodeNotImplemented, "Requested OCPP action is not supported")
	}

	result, err := handler(ctx, caller, call.Payload)
	if err != nil {
		return Outcome{}, err
	}

	reply, err := BuildCallResult(call.UniqueID, result.Payload)
	if err != nil {
		return Outcome{}, NewCallError(ErrCodeInternalError, err.Error())
	}

	return Outcome{
		Reply:        reply,
		StationID:    result.StationID,
		FlushPending: result.FlushPending,
	}, nil
}
