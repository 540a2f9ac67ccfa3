package protocol

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"chargelink/internal/ocpp"
)

// Validators are pure, synchronous functions, one per supported action. Every
// required field must be present with the correct primitive type; strings must
// be non-empty after trimming; array elements are validated independently with
// index-qualified error messages.

var (
	isoTimestampPattern = regexp.MustCompile(
		`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?$`,
	)
	explicitOffsetPattern = regexp.MustCompile(`[+-]\d{2}:\d{2}$`)
)

func ensureObject(raw json.RawMessage, context string) (map[string]interface{}, error) {
	var data map[string]interface{}
	if len(raw) == 0 || json.Unmarshal(raw, &data) != nil || data == nil {
		return nil, ocpp.NewCallErrorf(ocpp.ErrCodeTypeConstraintViolation, "Expected object for %s", context)
	}
	return data, nil
}

func ensureString(data map[string]interface{}, field string) (string, error) {
	value, ok := data[field].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", ocpp.NewCallErrorf(ocpp.ErrCodeTypeConstraintViolation, "%s must be a non-empty string", field)
	}
	return value, nil
}

func ensureOptionalString(data map[string]interface{}, field string) (string, error) {
	raw, present := data[field]
	if !present || raw == nil {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", ocpp.NewCallErrorf(ocpp.ErrCodeTypeConstraintViolation, "%s must be a string", field)
	}
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	return value, nil
}

func ensureNumber(data map[string]interface{}, field string) (float64, error) {
	value, ok := data[field].(float64)
	if !ok || math.IsNaN(value) {
		return 0, ocpp.NewCallErrorf(ocpp.ErrCodeTypeConstraintViolation, "%s must be a number", field)
	}
	return value, nil
}

func ensureInt(data map[string]interface{}, field string) (int, error) {
	value, err := ensureNumber(data, field)
	if err != nil {
		return 0, err
	}
	return int(value), nil
}

// ensureTimestamp validates an ISO-8601 string and normalizes it to carry an
// explicit offset: values without one are treated as UTC and suffixed with Z.
func ensureTimestamp(data map[string]interface{}, field string) (time.Time, error) {
	value, err := ensureString(data, field)
	if err != nil {
		return time.Time{}, err
	}
	return parseTimestamp(value, field)
}

func parseTimestamp(value, field string) (time.Time, error) {
	if !isoTimestampPattern.MatchString(value) {
		return time.Time{}, ocpp.NewCallErrorf(ocpp.ErrCodePropertyConstraintViolation, "%s must be an ISO-8601 timestamp", field)
	}
	if !strings.HasSuffix(value, "Z") && !explicitOffsetPattern.MatchString(value) {
		value += "Z"
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, ocpp.NewCallErrorf(ocpp.ErrCodePropertyConstraintViolation, "%s must be an ISO-8601 timestamp", field)
	}
	return ts, nil
}

// ParseBootNotification validates a BootNotification payload.
func ParseBootNotification(raw json.RawMessage) (*BootNotificationRequest, error) {
	data, err := ensureObject(raw, ActionBootNotification)
	if err != nil {
		return nil, err
	}

	req := &BootNotificationRequest{}
	if req.ChargePointVendor, err = ensureString(data, "chargePointVendor"); err != nil {
		return nil, err
	}
	if req.ChargePointModel, err = ensureString(data, "chargePointModel"); err != nil {
		return nil, err
	}
	if req.ChargePointSerialNumber, err = ensureOptionalString(data, "chargePointSerialNumber"); err != nil {
		return nil, err
	}
	if req.ChargeBoxSerialNumber, err = ensureOptionalString(data, "chargeBoxSerialNumber"); err != nil {
		return nil, err
	}
	if req.FirmwareVersion, err = ensureOptionalString(data, "firmwareVersion"); err != nil {
		return nil, err
	}
	if req.ICCID, err = ensureOptionalString(data, "iccid"); err != nil {
		return nil, err
	}
	if req.IMSI, err = ensureOptionalString(data, "imsi"); err != nil {
		return nil, err
	}
	if req.MeterSerialNumber, err = ensureOptionalString(data, "meterSerialNumber"); err != nil {
		return nil, err
	}
	if req.MeterType, err = ensureOptionalString(data, "meterType"); err != nil {
		return nil, err
	}
	return req, nil
}

// ParseStatusNotification validates a StatusNotification payload.
func ParseStatusNotification(raw json.RawMessage) (*StatusNotificationRequest, error) {
	data, err := ensureObject(raw, ActionStatusNotification)
	if err != nil {
		return nil, err
	}

	req := &StatusNotificationRequest{}
	if req.ConnectorID, err = ensureInt(data, "connectorId"); err != nil {
		return nil, err
	}
	if req.ErrorCode, err = ensureString(data, "errorCode"); err != nil {
		return nil, err
	}
	if req.Status, err = ensureString(data, "status"); err != nil {
		return nil, err
	}
	if _, present := data["timestamp"]; present && data["timestamp"] != nil {
		if req.Timestamp, err = ensureTimestamp(data, "timestamp"); err != nil {
			return nil, err
		}
	}
	if req.Info, err = ensureOptionalString(data, "info"); err != nil {
		return nil, err
	}
	if req.VendorID, err = ensureOptionalString(data, "vendorId"); err != nil {
		return nil, err
	}
	if req.VendorErrorCode, err = ensureOptionalString(data, "vendorErrorCode"); err != nil {
		return nil, err
	}
	return req, nil
}

// ParseStartTransaction validates a StartTransaction payload.
func ParseStartTransaction(raw json.RawMessage) (*StartTransactionRequest, error) {
	data, err := ensureObject(raw, ActionStartTransaction)
	if err != nil {
		return nil, err
	}

	req := &StartTransactionRequest{}
	if req.ConnectorID, err = ensureInt(data, "connectorId"); err != nil {
		return nil, err
	}
	if req.IdTag, err = ensureString(data, "idTag"); err != nil {
		return nil, err
	}
	if req.MeterStart, err = ensureNumber(data, "meterStart"); err != nil {
		return nil, err
	}
	if req.Timestamp, err = ensureTimestamp(data, "timestamp"); err != nil {
		return nil, err
	}
	if _, present := data["reservationId"]; present {
		reservation, err := ensureInt(data, "reservationId")
		if err != nil {
			return nil, err
		}
		req.ReservationID = &reservation
	}
	return req, nil
}

// ParseStopTransaction validates a StopTransaction payload.
func ParseStopTransaction(raw json.RawMessage) (*StopTransactionRequest, error) {
	data, err := ensureObject(raw, ActionStopTransaction)
	if err != nil {
		return nil, err
	}

	req := &StopTransactionRequest{}
	transactionID, err := ensureNumber(data, "transactionId")
	if err != nil {
		return nil, err
	}
	req.TransactionID = int64(transactionID)
	if req.MeterStop, err = ensureNumber(data, "meterStop"); err != nil {
		return nil, err
	}
	if req.Timestamp, err = ensureTimestamp(data, "timestamp"); err != nil {
		return nil, err
	}
	if req.IdTag, err = ensureOptionalString(data, "idTag"); err != nil {
		return nil, err
	}
	if req.Reason, err = ensureOptionalString(data, "reason"); err != nil {
		return nil, err
	}
	return req, nil
}

// ParseMeterValues validates a MeterValues payload. Failure on any element
// aborts the whole payload.
func ParseMeterValues(raw json.RawMessage) (*MeterValuesRequest, error) {
	data, err := ensureObject(raw, ActionMeterValues)
	if err != nil {
		return nil, err
	}

	req := &MeterValuesRequest{}
	if req.ConnectorID, err = ensureInt(data, "connectorId"); err != nil {
		return nil, err
	}
	if _, present := data["transactionId"]; present {
		transactionID, err := ensureNumber(data, "transactionId")
		if err != nil {
			return nil, err
		}
		id := int64(transactionID)
		req.TransactionID = &id
	}

	entries, ok := data["meterValue"].([]interface{})
	if !ok || len(entries) == 0 {
		return nil, ocpp.NewCallError(ocpp.ErrCodeTypeConstraintViolation, "meterValue must be a non-empty array")
	}
	for i, rawEntry := range entries {
		entry, err := parseMeterValueEntry(rawEntry, i)
		if err != nil {
			return nil, err
		}
		req.MeterValue = append(req.MeterValue, entry)
	}
	return req, nil
}

func parseMeterValueEntry(raw interface{}, index int) (MeterValueEntry, error) {
	data, ok := raw.(map[string]interface{})
	if !ok {
		return MeterValueEntry{}, ocpp.NewCallErrorf(ocpp.ErrCodeTypeConstraintViolation, "Expected object for meterValue[%d]", index)
	}

	entry := MeterValueEntry{}
	var err error
	if entry.Timestamp, err = ensureTimestamp(data, "timestamp"); err != nil {
		return MeterValueEntry{}, err
	}

	samples, ok := data["sampledValue"].([]interface{})
	if !ok || len(samples) == 0 {
		return MeterValueEntry{}, ocpp.NewCallError(ocpp.ErrCodeTypeConstraintViolation, "sampledValue must be a non-empty array")
	}
	for i, rawSample := range samples {
		sample, err := parseSampledValue(rawSample, i)
		if err != nil {
			return MeterValueEntry{}, err
		}
		entry.SampledValue = append(entry.SampledValue, sample)
	}
	return entry, nil
}

func parseSampledValue(raw interface{}, index int) (SampledValue, error) {
	data, ok := raw.(map[string]interface{})
	if !ok {
		return SampledValue{}, ocpp.NewCallErrorf(ocpp.ErrCodeTypeConstraintViolation, "Expected object for sampledValue[%d]", index)
	}

	sample := SampledValue{}
	var err error
	if sample.Value, err = ensureString(data, "value"); err != nil {
		return SampledValue{}, err
	}
	if sample.Context, err = ensureOptionalString(data, "context"); err != nil {
		return SampledValue{}, err
	}
	if sample.Format, err = ensureOptionalString(data, "format"); err != nil {
		return SampledValue{}, err
	}
	if sample.Measurand, err = ensureOptionalString(data, "measurand"); err != nil {
		return SampledValue{}, err
	}
	if sample.Phase, err = ensureOptionalString(data, "phase"); err != nil {
		return SampledValue{}, err
	}
	if sample.Location, err = ensureOptionalString(data, "location"); err != nil {
		return SampledValue{}, err
	}
	if sample.Unit, err = ensureOptionalString(data, "unit"); err != nil {
		return SampledValue{}, err
	}
	return sample, nil
}

// FormatTimestamp renders a time as the ISO-8601 UTC form used on the wire.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
