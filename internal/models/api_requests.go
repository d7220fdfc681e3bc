package models

// PredictRequest is the body of POST /api/v1/predict.
type PredictRequest struct {
	HomeTeamID   int64 `json:"home_team_id" validate:"required"`
	AwayTeamID   int64 `json:"away_team_id" validate:"required,nefield=HomeTeamID"`
	HomeRestDays int   `json:"home_rest_days" validate:"min=0,max=7"`
}

// PredictResponse echoes the assembled features next to the model output so
// callers can audit exactly what the model saw. Fallback is true when the
// probability is the documented 0.5 stand-in rather than a real prediction.
type PredictResponse struct {
	ModelVersion string             `json:"model_version"`
	Probability  float64            `json:"probability"`
	Spread       *float64           `json:"spread,omitempty"`
	Features     map[string]float64 `json:"features"`
	Fallback     bool               `json:"fallback"`
	Error        string             `json:"error,omitempty"`
}

// TeamFormResponse is GET /api/v1/teams/{id}/form.
type TeamFormResponse struct {
	TeamID   int64    `json:"team_id"`
	HomeForm TeamForm `json:"home_form"`
	AwayForm TeamForm `json:"away_form"`
}
