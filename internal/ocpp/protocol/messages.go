package protocol

import "time"

// Actions handled by the engine. Anything else gets a NotImplemented CALLERROR.
const (
	ActionBootNotification   = "BootNotification"
	ActionHeartbeat          = "Heartbeat"
	ActionStatusNotification = "StatusNotification"
	ActionStartTransaction   = "StartTransaction"
	ActionStopTransaction    = "StopTransaction"
	ActionMeterValues        = "MeterValues"
)

// Registration status values.
const (
	RegistrationAccepted = "Accepted"
	RegistrationRejected = "Rejected"
)

// BootNotificationRequest payload.
type BootNotificationRequest struct {
	ChargePointVendor       string
	ChargePointModel        string
	ChargePointSerialNumber string
	ChargeBoxSerialNumber   string
	FirmwareVersion         string
	ICCID                   string
	IMSI                    string
	MeterSerialNumber       string
	MeterType               string
}

// BootNotificationResponse payload.
type BootNotificationResponse struct {
	Status      string `json:"status"`
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
}

// HeartbeatResponse returns server time.
type HeartbeatResponse struct {
	CurrentTime string `json:"currentTime"`
}

// StatusNotificationRequest payload.
type StatusNotificationRequest struct {
	ConnectorID     int
	ErrorCode       string
	Status          string
	Timestamp       time.Time // zero when the station sent none
	Info            string
	VendorID        string
	VendorErrorCode string
}

// StartTransactionRequest payload.
type StartTransactionRequest struct {
	ConnectorID   int
	IdTag         string
	MeterStart    float64
	Timestamp     time.Time
	ReservationID *int
}

// StartTransactionResponse payload.
type StartTransactionResponse struct {
	TransactionID int64     `json:"transactionId"`
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
}

// IdTagInfo authorization result.
type IdTagInfo struct {
	Status string `json:"status"`
}

// StopTransactionRequest payload.
type StopTransactionRequest struct {
	TransactionID int64
	MeterStop     float64
	Timestamp     time.Time
	IdTag         string
	Reason        string
}

// StopTransactionResponse payload.
type StopTransactionResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

// SampledValue is one metered reading inside a meter value entry.
type SampledValue struct {
	Value     string
	Context   string
	Format    string
	Measurand string
	Phase     string
	Location  string
	Unit      string
}

// MeterValueEntry groups sampled values taken at one instant.
type MeterValueEntry struct {
	Timestamp    time.Time
	SampledValue []SampledValue
}

// MeterValuesRequest payload.
type MeterValuesRequest struct {
	ConnectorID   int
	TransactionID *int64
	MeterValue    []MeterValueEntry
}
