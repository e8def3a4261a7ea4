package server

import (
	"encoding/json"

	"pabench/internal/domain"
	"pabench/internal/repo"
	"pabench/internal/scenario"
)

// Request payloads

// VerifyRequest carries an optional combined snapshot. Without one the
// server reads the live instances.
type VerifyRequest struct {
	State map[string]any `json:"state,omitempty" doc:"Combined snapshot keyed by service name"`
}

type TokenRequest struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles,omitempty"`
	TTL     int      `json:"ttl_seconds,omitempty" minimum:"0"`
}

// Response payloads

type ScenarioSummary struct {
	ID          string `json:"id"`
	Kind        string `json:"kind,omitempty"`
	Description string `json:"description,omitempty"`
	Today       string `json:"today,omitempty"`
	Error       string `json:"error,omitempty"`
}

type ScenarioResponse struct {
	ID          string               `json:"id"`
	Description string               `json:"description"`
	Today       string               `json:"today,omitempty"`
	Expect      scenario.Expectation `json:"expect"`
}

type CheckResponse struct {
	Name    string `json:"name"`
	Verdict bool   `json:"verdict"`
	Reason  string `json:"reason"`
}

type RunResponse struct {
	ID         string          `json:"id"`
	ScenarioID string          `json:"scenario_id"`
	Kind       string          `json:"kind"`
	Source     string          `json:"source" enum:"live,seed,file,request"`
	Reward     float64         `json:"reward"`
	Passed     bool            `json:"passed"`
	Message    string          `json:"message"`
	Checks     []CheckResponse `json:"checks,omitempty"`
	CreatedAt  string          `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ScenarioID string         `json:"scenario_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type paginatedRuns struct {
	Items      []RunResponse `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type statsResponse struct {
	Items []repo.ScenarioStats `json:"items"`
}

// Conversion helpers

func runResponse(r domain.Run) RunResponse {
	checks := make([]CheckResponse, 0, len(r.Checks))
	for _, c := range r.Checks {
		checks = append(checks, CheckResponse(c))
	}
	return RunResponse{
		ID:         r.ID,
		ScenarioID: r.ScenarioID,
		Kind:       r.Kind,
		Source:     r.Source,
		Reward:     r.Reward,
		Passed:     r.Passed,
		Message:    r.Message,
		Checks:     checks,
		CreatedAt:  r.CreatedAt,
	}
}

func scenarioResponse(sc scenario.Scenario) ScenarioResponse {
	return ScenarioResponse{
		ID:          sc.ID,
		Description: sc.Description,
		Today:       sc.Today,
		Expect:      sc.Expect,
	}
}

func eventResponse(e domain.LogEvent) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ScenarioID: e.ScenarioID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
