package ocpp

import (
	"encoding/json"
	"errors"
	"testing"
)

func callErrorCode(t *testing.T, err error) string {
	t.Helper()

	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected *CallError, got %T: %v", err, err)
	}
	return callErr.Code
}

func TestParseCallValid(t *testing.T) {
	call, err := ParseCall([]byte(`[2,"msg-1","BootNotification",{"chargePointVendor":"OpenAI"}]`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if call.UniqueID != "msg-1" {
		t.Fatalf("expected uniqueId msg-1, got %q", call.UniqueID)
	}
	if call.Action != "BootNotification" {
		t.Fatalf("expected action BootNotification, got %q", call.Action)
	}

	var payload map[string]string
	if err := json.Unmarshal(call.Payload, &payload); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if payload["chargePointVendor"] != "OpenAI" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestParseCallMissingPayloadDefaultsToEmptyObject(t *testing.T) {
	call, err := ParseCall([]byte(`[2,"msg-2","Heartbeat"]`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if string(call.Payload) != "{}" {
		t.Fatalf("expected empty object payload, got %s", call.Payload)
	}
}

func TestParseCallErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		code string
	}{
		{"invalid json", `{not json`, ErrCodeFormationViolation},
		{"truncated array", `[2,"msg-1"`, ErrCodeFormationViolation},
		{"json object", `{"a":1}`, ErrCodeProtocolError},
		{"json string", `"hello"`, ErrCodeProtocolError},
		{"json null", `null`, ErrCodeProtocolError},
		{"short array", `[2,"msg-3"]`, ErrCodeProtocolError},
		{"string message type", `["2","msg-4","Heartbeat",{}]`, ErrCodeNotSupported},
		{"callresult type", `[3,"msg-5",{}]`, ErrCodeNotSupported},
		{"callerror type", `[4,"msg-6","GenericError","",{}]`, ErrCodeNotSupported},
		{"non string uniqueId", `[2,42,"Heartbeat",{}]`, ErrCodeProtocolError},
		{"non string action", `[2,"msg-7",{},{}]`, ErrCodeProtocolError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCall([]byte(tc.raw))
			if err == nil {
				t.Fatalf("expected error for %s", tc.raw)
			}
			if code := callErrorCode(t, err); code != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, code)
			}
		})
	}
}

func TestBuildCallResult(t *testing.T) {
	reply, err := BuildCallResult("msg-8", map[string]interface{}{"currentTime": "2024-01-01T00:00:00.000Z"})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(reply, &elements); err != nil {
		t.Fatalf("reply is not a JSON array: %v", err)
	}
	if len(elements) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(elements))
	}
	if string(elements[0]) != "3" {
		t.Fatalf("expected message type 3, got %s", elements[0])
	}
	if string(elements[1]) != `"msg-8"` {
		t.Fatalf("expected uniqueId msg-8, got %s", elements[1])
	}
}

func TestBuildCallResultNilPayload(t *testing.T) {
	reply, err := BuildCallResult("msg-9", nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(reply, &elements); err != nil {
		t.Fatalf("reply is not a JSON array: %v", err)
	}
	if string(elements[2]) != "{}" {
		t.Fatalf("expected empty object payload, got %s", elements[2])
	}
}

func TestBuildCallErrorFrom(t *testing.T) {
	raw := []byte(`[2,"msg-10","BootNotification",{}]`)
	frame, ok := BuildCallErrorFrom(raw, NewCallError(ErrCodeSecurityError, "Station CP-1 has not completed a BootNotification"))
	if !ok {
		t.Fatalf("expected an envelope")
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(frame, &elements); err != nil {
		t.Fatalf("frame is not a JSON array: %v", err)
	}
	if len(elements) != 5 {
		t.Fatalf("expected 5 elements, got %d", len(elements))
	}
	if string(elements[0]) != "4" {
		t.Fatalf("expected message type 4, got %s", elements[0])
	}
	if string(elements[1]) != `"msg-10"` {
		t.Fatalf("expected recovered uniqueId, got %s", elements[1])
	}
	if string(elements[2]) != `"SecurityError"` {
		t.Fatalf("expected SecurityError code, got %s", elements[2])
	}
	if string(elements[4]) != "{}" {
		t.Fatalf("expected empty details object, got %s", elements[4])
	}
}

func TestBuildCallErrorFromWrapsPlainErrors(t *testing.T) {
	raw := []byte(`[2,"msg-11","Heartbeat",{}]`)
	frame, ok := BuildCallErrorFrom(raw, errors.New("db write failed"))
	if !ok {
		t.Fatalf("expected an envelope")
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(frame, &elements); err != nil {
		t.Fatalf("frame is not a JSON array: %v", err)
	}
	if string(elements[2]) != `"InternalError"` {
		t.Fatalf("plain errors must map to InternalError, got %s", elements[2])
	}
}

func TestBuildCallErrorFromUnrecoverableUniqueID(t *testing.T) {
	cases := [][]byte{
		[]byte(`{not json`),
		[]byte(`[2]`),
		[]byte(`[2,42,"Heartbeat",{}]`),
		[]byte(`[2,"","Heartbeat",{}]`),
	}

	for _, raw := range cases {
		if _, ok := BuildCallErrorFrom(raw, errors.New("boom")); ok {
			t.Fatalf("expected no envelope for %s", raw)
		}
	}
}
