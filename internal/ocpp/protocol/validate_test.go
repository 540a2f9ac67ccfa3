package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"chargelink/internal/ocpp"
)

func asCallError(t *testing.T, err error) *ocpp.CallError {
	t.Helper()

	var callErr *ocpp.CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected *ocpp.CallError, got %T: %v", err, err)
	}
	return callErr
}

func TestParseBootNotification(t *testing.T) {
	req, err := ParseBootNotification(json.RawMessage(`{
		"chargePointVendor": "OpenAI",
		"chargePointModel": "Virtual",
		"chargeBoxSerialNumber": "CB-42",
		"firmwareVersion": "1.2.3"
	}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.ChargePointVendor != "OpenAI" || req.ChargePointModel != "Virtual" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.ChargeBoxSerialNumber != "CB-42" {
		t.Fatalf("optional field lost: %+v", req)
	}
}

func TestParseBootNotificationRequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		field   string
	}{
		{"missing vendor", `{"chargePointModel":"Virtual"}`, "chargePointVendor"},
		{"empty vendor", `{"chargePointVendor":"  ","chargePointModel":"Virtual"}`, "chargePointVendor"},
		{"non string model", `{"chargePointVendor":"OpenAI","chargePointModel":7}`, "chargePointModel"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseBootNotification(json.RawMessage(tc.payload))
			callErr := asCallError(t, err)
			if callErr.Code != ocpp.ErrCodeTypeConstraintViolation {
				t.Fatalf("expected TypeConstraintViolation, got %s", callErr.Code)
			}
			if !strings.Contains(callErr.Description, tc.field) {
				t.Fatalf("error must name %s, got %q", tc.field, callErr.Description)
			}
		})
	}
}

func TestParseBootNotificationNonObject(t *testing.T) {
	_, err := ParseBootNotification(json.RawMessage(`[1,2,3]`))
	callErr := asCallError(t, err)
	if callErr.Code != ocpp.ErrCodeTypeConstraintViolation {
		t.Fatalf("expected TypeConstraintViolation, got %s", callErr.Code)
	}
}

func TestParseStatusNotificationTimestampOptional(t *testing.T) {
	req, err := ParseStatusNotification(json.RawMessage(`{
		"connectorId": 1,
		"errorCode": "NoError",
		"status": "Available"
	}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !req.Timestamp.IsZero() {
		t.Fatalf("absent timestamp must stay zero, got %v", req.Timestamp)
	}
}

func TestTimestampNormalization(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  time.Time
	}{
		{"zulu", "2024-06-01T10:30:00Z", time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)},
		{"no offset treated as utc", "2024-06-01T10:30:00", time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)},
		{"fractional seconds", "2024-06-01T10:30:00.500Z", time.Date(2024, 6, 1, 10, 30, 0, 500000000, time.UTC)},
		{"explicit offset", "2024-06-01T12:30:00+02:00", time.Date(2024, 6, 1, 12, 30, 0, 0, time.FixedZone("", 2*3600))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := `{"connectorId":1,"errorCode":"NoError","status":"Available","timestamp":"` + tc.value + `"}`
			req, err := ParseStatusNotification(json.RawMessage(payload))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if !req.Timestamp.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, req.Timestamp)
			}
		})
	}
}

func TestTimestampRejected(t *testing.T) {
	cases := []string{
		"yesterday",
		"2024-13-01T10:30:00Z",
		"2024-06-01",
		"10:30:00",
	}

	for _, value := range cases {
		payload := `{"connectorId":1,"errorCode":"NoError","status":"Available","timestamp":"` + value + `"}`
		_, err := ParseStatusNotification(json.RawMessage(payload))
		callErr := asCallError(t, err)
		if callErr.Code != ocpp.ErrCodePropertyConstraintViolation {
			t.Fatalf("%q: expected PropertyConstraintViolation, got %s", value, callErr.Code)
		}
	}
}

func TestParseStartTransaction(t *testing.T) {
	req, err := ParseStartTransaction(json.RawMessage(`{
		"connectorId": 2,
		"idTag": "TAG-1",
		"meterStart": 1200.5,
		"timestamp": "2024-06-01T10:30:00Z",
		"reservationId": 9
	}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.ConnectorID != 2 || req.IdTag != "TAG-1" || req.MeterStart != 1200.5 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.ReservationID == nil || *req.ReservationID != 9 {
		t.Fatalf("reservationId lost: %+v", req.ReservationID)
	}
}

func TestParseStartTransactionRejectsNonNumericMeterStart(t *testing.T) {
	_, err := ParseStartTransaction(json.RawMessage(`{
		"connectorId": 2,
		"idTag": "TAG-1",
		"meterStart": "1200",
		"timestamp": "2024-06-01T10:30:00Z"
	}`))
	callErr := asCallError(t, err)
	if callErr.Code != ocpp.ErrCodeTypeConstraintViolation {
		t.Fatalf("expected TypeConstraintViolation, got %s", callErr.Code)
	}
	if !strings.Contains(callErr.Description, "meterStart") {
		t.Fatalf("error must name meterStart, got %q", callErr.Description)
	}
}

func TestParseStopTransaction(t *testing.T) {
	req, err := ParseStopTransaction(json.RawMessage(`{
		"transactionId": 17,
		"meterStop": 2400,
		"timestamp": "2024-06-01T11:30:00Z",
		"reason": "Local"
	}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.TransactionID != 17 || req.MeterStop != 2400 || req.Reason != "Local" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestParseMeterValues(t *testing.T) {
	req, err := ParseMeterValues(json.RawMessage(`{
		"connectorId": 1,
		"transactionId": 17,
		"meterValue": [
			{
				"timestamp": "2024-06-01T10:31:00Z",
				"sampledValue": [
					{"value": "1250.7", "measurand": "Energy.Active.Import.Register", "unit": "Wh"},
					{"value": "16.2", "measurand": "Current.Import"}
				]
			}
		]
	}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.TransactionID == nil || *req.TransactionID != 17 {
		t.Fatalf("transactionId lost: %+v", req.TransactionID)
	}
	if len(req.MeterValue) != 1 || len(req.MeterValue[0].SampledValue) != 2 {
		t.Fatalf("unexpected shape: %+v", req.MeterValue)
	}
	if req.MeterValue[0].SampledValue[1].Value != "16.2" {
		t.Fatalf("unexpected sample: %+v", req.MeterValue[0].SampledValue[1])
	}
}

func TestParseMeterValuesEmptyArrays(t *testing.T) {
	_, err := ParseMeterValues(json.RawMessage(`{"connectorId":1,"meterValue":[]}`))
	callErr := asCallError(t, err)
	if !strings.Contains(callErr.Description, "meterValue") {
		t.Fatalf("error must name meterValue, got %q", callErr.Description)
	}

	_, err = ParseMeterValues(json.RawMessage(`{
		"connectorId": 1,
		"meterValue": [{"timestamp":"2024-06-01T10:31:00Z","sampledValue":[]}]
	}`))
	callErr = asCallError(t, err)
	if !strings.Contains(callErr.Description, "sampledValue") {
		t.Fatalf("error must name sampledValue, got %q", callErr.Description)
	}
}

func TestParseMeterValuesIndexQualifiedErrors(t *testing.T) {
	_, err := ParseMeterValues(json.RawMessage(`{
		"connectorId": 1,
		"meterValue": [
			{"timestamp":"2024-06-01T10:31:00Z","sampledValue":[{"value":"1"}]},
			"not an object"
		]
	}`))
	callErr := asCallError(t, err)
	if !strings.Contains(callErr.Description, "meterValue[1]") {
		t.Fatalf("error must point at the failing element, got %q", callErr.Description)
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	if got := FormatTimestamp(ts); got != "2024-06-01T10:30:00.000Z" {
		t.Fatalf("expected UTC millisecond form, got %q", got)
	}
}
