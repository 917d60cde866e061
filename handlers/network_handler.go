package handlers

import (
	"net/http"

	"github.com/courtmix/session-engine/netstatus"
)

// NetworkHandler exposes the connectivity belief: operators (or an
// external probe) report transitions, screens poll the current value.
type NetworkHandler struct {
	monitor *netstatus.Monitor
}

func NewNetworkHandler(monitor *netstatus.Monitor) *NetworkHandler {
	return &NetworkHandler{monitor: monitor}
}

func (h *NetworkHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if err := writeJSON(w, http.StatusOK, jsonResponse{"online": h.monitor.Online()}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *NetworkHandler) SetStatusHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Online bool `json:"online"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	h.monitor.SetOnline(input.Online)

	if err := writeJSON(w, http.StatusOK, jsonResponse{"online": input.Online}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
