package app

import (
	"encoding/json"
	"net/http"
	"time"

	"chargelink/internal/registry"
	"chargelink/internal/storage"
)

type healthResponse struct {
	Status       string `json:"status"`
	DurableStore string `json:"durableStore"`
}

func newHealthHandler(monitor *storage.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := healthResponse{Status: "ok", DurableStore: "disconnected"}
		if monitor.Connected() {
			response.DurableStore = "connected"
		}
		writeJSON(w, http.StatusOK, response)
	}
}

type connectionView struct {
	Identity      string    `json:"identity"`
	Status        string    `json:"status"`
	StationID     string    `json:"stationId,omitempty"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

func newConnectionsHandler(connections *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := connections.ListConnections()
		views := make([]connectionView, 0, len(list))
		for _, connection := range list {
			views = append(views, connectionView{
				Identity:      connection.Identity,
				Status:        string(connection.Status),
				StationID:     connection.StationID,
				ConnectedAt:   connection.ConnectedAt,
				LastMessageAt: connection.LastMessageAt,
			})
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
