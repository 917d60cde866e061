package handlers

import (
	"net/http"

	"github.com/courtmix/session-engine/services"
)

type ScoreHandler struct {
	scoreService services.ScoreService
}

func NewScoreHandler(scoreService services.ScoreService) *ScoreHandler {
	return &ScoreHandler{scoreService: scoreService}
}

// SetDraftHandler records one field edit and reports both fields'
// validity back. When the edit completes a valid pair the commit runs
// inline and its outcome rides along in the response.
func (h *ScoreHandler) SetDraftHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getSessionIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		RoundIndex int    `json:"round_index"`
		MatchIndex int    `json:"match_index"`
		Team       int    `json:"team"`
		Text       string `json:"text"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.scoreService.SetDraft(r.Context(), id, input.RoundIndex, input.MatchIndex, input.Team, input.Text)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"draft": view}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CommitScoreHandler is the blur trigger: commit whatever pair is
// pending locally for the match.
func (h *ScoreHandler) CommitScoreHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getSessionIDFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		RoundIndex int `json:"round_index"`
		MatchIndex int `json:"match_index"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.scoreService.Commit(r.Context(), id, input.RoundIndex, input.MatchIndex)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"commit": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
