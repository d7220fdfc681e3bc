package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/courtsight/predictor-api/internal/logic"
	"github.com/courtsight/predictor-api/internal/models"
)

// PredictGame returns a win probability (and spread, when a spread model is
// deployed) for one matchup. Model unavailability degrades to the neutral
// fallback inside the service and still returns 200; only bad input is a 400.
func (h *Handler) PredictGame(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	var req models.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	resp, err := h.prediction.Predict(r.Context(), req)
	if err != nil {
		var invalid *logic.InvalidInputError
		if errors.As(err, &invalid) {
			h.errorResponse(w, http.StatusBadRequest, invalid.Error())
			return
		}
		h.logger.Errorw("Prediction failed", "error", err,
			"home", req.HomeTeamID, "away", req.AwayTeamID)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to predict")
		return
	}

	h.jsonResponse(w, http.StatusOK, resp)
}

// GetTeamForm returns the current rolling aggregates for one team in both
// roles, computed under the serving profile.
func (h *Handler) GetTeamForm(w http.ResponseWriter, r *http.Request) {
	teamID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || teamID <= 0 {
		h.errorResponse(w, http.StatusBadRequest, "Invalid team ID")
		return
	}

	ctx := r.Context()
	homeForm, err := h.forms.TeamForm(ctx, teamID, logic.RoleHome, h.profile)
	if err != nil {
		h.logger.Errorw("Failed to load home form", "error", err, "team", teamID)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load team form")
		return
	}
	awayForm, err := h.forms.TeamForm(ctx, teamID, logic.RoleAway, h.profile)
	if err != nil {
		h.logger.Errorw("Failed to load away form", "error", err, "team", teamID)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load team form")
		return
	}
	if homeForm == nil && awayForm == nil {
		h.errorResponse(w, http.StatusNotFound, "No games recorded for team")
		return
	}

	resp := models.TeamFormResponse{TeamID: teamID}
	if homeForm != nil {
		resp.HomeForm = *homeForm
	}
	if awayForm != nil {
		resp.AwayForm = *awayForm
	}
	h.jsonResponse(w, http.StatusOK, resp)
}
