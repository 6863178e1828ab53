package handler

import "time"

type visibilityRequest struct {
	TabID string    `json:"tab_id" validate:"required"`
	State string    `json:"state"  validate:"required,oneof=visible hidden"`
	At    time.Time `json:"at"     validate:"required"`
	Route string    `json:"route,omitempty"`
}

type acceptedResponse struct {
	Message string `json:"message"`
}

type guardStatus struct {
	Suppressing bool      `json:"suppressing"`
	ArmedAt     time.Time `json:"armed_at,omitempty"`
	WindowMs    int64     `json:"window_ms"`
}

type identitySummary struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	TeamName    string    `json:"team_name,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

type tabStateView struct {
	TabID      string            `json:"tab_id"`
	LastActive time.Time         `json:"last_active"`
	Route      string            `json:"route"`
	Extra      map[string]string `json:"extra,omitempty"`
}

type sessionResponse struct {
	Visibility string           `json:"visibility"`
	Guard      guardStatus      `json:"guard"`
	TabState   *tabStateView    `json:"tab_state,omitempty"`
	Identity   *identitySummary `json:"identity,omitempty"`
	Loading    bool             `json:"loading"`
}
