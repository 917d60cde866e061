package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/courtmix/session-engine/models"
	"github.com/courtmix/session-engine/services"
)

type SessionHandler struct {
	sessionService services.SessionService
}

func NewSessionHandler(sessionService services.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func (h *SessionHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var input services.CreateSessionInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	session, err := h.sessionService.Create(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"session": session}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SessionHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getSessionIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	session, err := h.sessionService.Get(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"session": session}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SessionHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.List(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"sessions": sessions}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SessionHandler) UpdatePlayerStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getSessionIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	playerID, err := getIntFromURL(r, "playerID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Status models.PlayerStatus `json:"status"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.sessionService.UpdatePlayerStatus(r.Context(), id, playerID, input.Status); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": input.Status}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SessionHandler) GetStateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getSessionIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	court, err := optionalCourt(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	state, err := h.sessionService.State(r.Context(), id, court)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"state": state}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SessionHandler) NavigateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getSessionIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Delta int  `json:"delta"`
		Court *int `json:"court,omitempty"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.sessionService.Navigate(r.Context(), id, input.Delta, input.Court)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"navigation": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SessionHandler) AdvanceRoundHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getSessionIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	round, err := h.sessionService.Advance(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"round": round}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SessionHandler) GetStandingsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getSessionIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	standings, err := h.sessionService.Standings(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"standings": standings}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SessionHandler) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getSessionIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			badRequestResponse(w, r, fmt.Errorf("invalid limit %q", raw))
			return
		}
	}

	events, err := h.sessionService.Events(r.Context(), id, limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"events": events}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SessionHandler) FinishSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getSessionIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	session, err := h.sessionService.Finish(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"session": session}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// optionalCourt parses the ?court= query parameter used by parallel-mode
// screens.
func optionalCourt(r *http.Request) (*int, error) {
	raw := r.URL.Query().Get("court")
	if raw == "" {
		return nil, nil
	}
	court, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid court %q", raw)
	}
	return &court, nil
}
