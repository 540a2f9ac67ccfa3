package service

import "chargelink/internal/storage"

// StationStatusFor maps one connector status onto the station-level status.
func StationStatusFor(status storage.ConnectorStatus) storage.StationStatus {
	switch status {
	case storage.ConnectorCharging:
		return storage.StationCharging
	case storage.ConnectorFaulted:
		return storage.StationFaulted
	case storage.ConnectorUnavailable:
		return storage.StationUnavailable
	default:
		return storage.StationAvailable
	}
}

// DeriveStationStatus computes a station's aggregate status from the full
// connector set. The master connector (id 0) wins when present; otherwise
// CHARGING wins over everything, FAULTED is sticky unless a connector is
// charging, and the default is AVAILABLE. Every call site that mutates a
// connector recomputes through this one function.
func DeriveStationStatus(connectors []storage.Connector) storage.StationStatus {
	for _, connector := range connectors {
		if connector.OCPPConnectorID == 0 {
			return StationStatusFor(connector.Status)
		}
	}

	status := storage.StationAvailable
	for _, connector := range connectors {
		switch connector.Status {
		case storage.ConnectorCharging:
			return storage.StationCharging
		case storage.ConnectorFaulted:
			status = storage.StationFaulted
		}
	}
	return status
}
