package ocpp

import (
	"encoding/json"
	"errors"
)

// MessageType values as per OCPP-J spec.
const (
	MessageTypeCall       = 2
	MessageTypeCallResult = 3
	MessageTypeCallError  = 4
)

// Call represents a parsed CALL envelope.
type Call struct {
	UniqueID string
	Action   string
	Payload  json.RawMessage
}

// ParseCall decodes raw text into a Call, enforcing the envelope state machine:
// invalid JSON, non-array or short array, non-CALL type, and non-string uniqueId
// each map onto their own protocol error code.
func ParseCall(raw []byte) (*Call, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		if !json.Valid(raw) {
			return nil, NewCallError(ErrCodeFormationViolation, "Message is not valid JSON")
		}
		return nil, NewCallError(ErrCodeProtocolError, "Message is not a valid CALL")
	}

	if len(elements) < 3 {
		return nil, NewCallError(ErrCodeProtocolError, "Message is not a valid CALL")
	}

	// The first element must equal 2 by value; any other value of any type
	// is an unsupported message type, not a malformed envelope.
	var messageType interface{}
	if err := json.Unmarshal(elements[0], &messageType); err != nil {
		return nil, NewCallError(ErrCodeProtocolError, "Message is not a valid CALL")
	}
	if number, ok := messageType.(float64); !ok || number != MessageTypeCall {
		return nil, NewCallError(ErrCodeNotSupported, "Only CALL messages are supported")
	}

	call := &Call{}
	if err := json.Unmarshal(elements[1], &call.UniqueID); err != nil {
		return nil, NewCallError(ErrCodeProtocolError, "Message is not a valid CALL")
	}
	if err := json.Unmarshal(elements[2], &call.Action); err != nil {
		return nil, NewCallError(ErrCodeProtocolError, "Message is not a valid CALL")
	}

	if len(elements) > 3 {
		call.Payload = elements[3]
	} else {
		call.Payload = json.RawMessage(`{}`)
	}

	return call, nil
}

// BuildCallResult builds a CALLRESULT envelope.
func BuildCallResult(uniqueID string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]interface{}{MessageTypeCallResult, uniqueID, json.RawMessage(body)})
}

// BuildCall builds a server-to-station CALL envelope.
func BuildCall(uniqueID, action string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{MessageTypeCall, uniqueID, action, payload})
}

// BuildCallErrorFrom converts any dispatch failure into a CALLERROR envelope
// addressed to the uniqueId recovered from the raw text. It returns false when
// no uniqueId can be recovered, in which case the caller should close the
// connection instead of replying.
func BuildCallErrorFrom(raw []byte, dispatchErr error) ([]byte, bool) {
	uniqueID, ok := recoverUniqueID(raw)
	if !ok {
		return nil, false
	}

	var callErr *CallError
	if !errors.As(dispatchErr, &callErr) {
		callErr = NewCallError(ErrCodeInternalError, dispatchErr.Error())
	}

	details := callErr.Details
	if details == nil {
		details = map[string]interface{}{}
	}

	frame, err := json.Marshal([]interface{}{
		MessageTypeCallError,
		uniqueID,
		callErr.Code,
		callErr.Description,
		details,
	})
	if err != nil {
		return nil, false
	}
	return frame, true
}

// recoverUniqueID extracts the second array element from the raw text even if
// envelope parsing failed elsewhere.
func recoverUniqueID(raw []byte) (string, bool) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil || len(elements) < 2 {
		return "", false
	}
	var uniqueID string
	if err := json.Unmarshal(elements[1], &uniqueID); err != nil || uniqueID == "" {
		return "", false
	}
	return uniqueID, true
}
