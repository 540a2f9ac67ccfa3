package service

import (
	"testing"

	"chargelink/internal/storage"
)

func TestDeriveStationStatusMasterConnectorWins(t *testing.T) {
	connectors := []storage.Connector{
		{OCPPConnectorID: 1, Status: storage.ConnectorCharging},
		{OCPPConnectorID: 0, Status: storage.ConnectorFaulted},
	}
	if got := DeriveStationStatus(connectors); got != storage.StationFaulted {
		t.Fatalf("master connector must win, got %s", got)
	}
}

func TestDeriveStationStatusChargingWins(t *testing.T) {
	connectors := []storage.Connector{
		{OCPPConnectorID: 1, Status: storage.ConnectorFaulted},
		{OCPPConnectorID: 2, Status: storage.ConnectorCharging},
	}
	if got := DeriveStationStatus(connectors); got != storage.StationCharging {
		t.Fatalf("expected CHARGING, got %s", got)
	}
}

func TestDeriveStationStatusFaultedSticky(t *testing.T) {
	connectors := []storage.Connector{
		{OCPPConnectorID: 1, Status: storage.ConnectorFaulted},
		{OCPPConnectorID: 2, Status: storage.ConnectorAvailable},
	}
	if got := DeriveStationStatus(connectors); got != storage.StationFaulted {
		t.Fatalf("expected FAULTED, got %s", got)
	}
}

func TestDeriveStationStatusDefaultsToAvailable(t *testing.T) {
	connectors := []storage.Connector{
		{OCPPConnectorID: 1, Status: storage.ConnectorPreparing},
		{OCPPConnectorID: 2, Status: storage.ConnectorFinishing},
	}
	if got := DeriveStationStatus(connectors); got != storage.StationAvailable {
		t.Fatalf("expected AVAILABLE, got %s", got)
	}

	if got := DeriveStationStatus(nil); got != storage.StationAvailable {
		t.Fatalf("empty connector set must be AVAILABLE, got %s", got)
	}
}

func TestStationStatusFor(t *testing.T) {
	cases := []struct {
		in   storage.ConnectorStatus
		want storage.StationStatus
	}{
		{storage.ConnectorCharging, storage.StationCharging},
		{storage.ConnectorFaulted, storage.StationFaulted},
		{storage.ConnectorUnavailable, storage.StationUnavailable},
		{storage.ConnectorAvailable, storage.StationAvailable},
		{storage.ConnectorReserved, storage.StationAvailable},
	}
	for _, tc := range cases {
		if got := StationStatusFor(tc.in); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.in, tc.want, got)
		}
	}
}
