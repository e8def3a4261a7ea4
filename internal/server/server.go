package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"pabench/internal/domain"
	"pabench/internal/engine"
	"pabench/internal/repo"
	"pabench/internal/scenario"
	"pabench/internal/snapshot"
	"pabench/internal/verify"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// Live reads the instances when a verify request carries no state.
	Live engine.StateFetcher
	// Context bounds background work such as webhook delivery.
	Context         context.Context
	WebhookInterval time.Duration
	Logger          *log.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"state_unavailable"`
	Message string         `json:"message" example:"state unavailable: calendar: connection refused"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the verifier API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	api := humachi.New(router, apiConfig())
	group := huma.NewGroup(api, basePath)
	group.UseModifier(requireBearer)

	registerHealth(group)
	registerMe(group)
	registerScenarios(group, cfg.Engine)
	registerVerify(group, cfg.Engine, cfg.Live)
	registerRuns(group, cfg.Engine)
	registerEvents(group, cfg.Engine)

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	startWebhookDispatcher(ctx, cfg.Engine, cfg.WebhookInterval, cfg.Logger)
	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps domain errors onto the envelope. A verification that
// ran but failed is never an error; only an inability to evaluate is.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve *scenario.ValidationError
	switch {
	case errors.Is(err, engine.ErrStateUnavailable):
		return newAPIError(http.StatusBadGateway, "state_unavailable", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, scenario.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &ve):
		issues := make([]map[string]string, 0, len(ve.Issues))
		for _, is := range ve.Issues {
			issues = append(issues, map[string]string{"field": is.Field, "message": is.Message})
		}
		return newAPIError(http.StatusUnprocessableEntity, "invalid_scenario", err.Error(), map[string]any{"issues": issues})
	case errors.Is(err, verify.ErrUnknownKind):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_scenario", err.Error(), nil)
	case errors.Is(err, snapshot.ErrMissingService), errors.Is(err, snapshot.ErrMalformed):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusBadGateway:
		return "state_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		roles := p.Roles
		if roles == nil {
			roles = []string{}
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{"subject": p.Subject, "roles": roles, "source": p.Source}}, nil
	})
}

func registerScenarios(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-scenarios",
		Method:      http.MethodGet,
		Path:        "/scenarios",
		Summary:     "List scenarios",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []ScenarioSummary `json:"items"`
		} `json:"body"`
	}, error) {
		ids, err := e.Loader.List()
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []ScenarioSummary `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = []ScenarioSummary{}
		for _, id := range ids {
			item := ScenarioSummary{ID: id}
			if sc, err := e.Scenario(id); err != nil {
				item.Error = err.Error()
			} else {
				item.Kind = string(sc.Expect.Kind)
				item.Description = sc.Description
				item.Today = sc.Today
			}
			out.Body.Items = append(out.Body.Items, item)
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-scenario",
		Method:      http.MethodGet,
		Path:        "/scenarios/{scenario_id}",
		Summary:     "Get scenario",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ScenarioID string `path:"scenario_id"`
	}) (*struct {
		Body ScenarioResponse `json:"body"`
	}, error) {
		sc, err := e.Scenario(input.ScenarioID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScenarioResponse `json:"body"`
		}{Body: scenarioResponse(sc)}, nil
	})
}

func registerVerify(api huma.API, e engine.Engine, live engine.StateFetcher) {
	huma.Register(api, huma.Operation{
		OperationID: "verify-scenario",
		Method:      http.MethodPost,
		Path:        "/scenarios/{scenario_id}/verify",
		Summary:     "Verify a scenario against supplied or live state",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		ScenarioID string         `path:"scenario_id"`
		Body       *VerifyRequest `json:"body" required:"false"`
	}) (*struct {
		Body RunResponse `json:"body"`
	}, error) {
		var (
			run domain.Run
			err error
		)
		if raw, ok := rawBodyMap(ctx)["state"]; ok && !isNullRaw(raw) {
			keys := snapshot.DefaultKeys()
			if e.Config != nil {
				keys = e.Config.State
			}
			st, derr := snapshot.Decode(raw, keys)
			if derr != nil {
				return nil, handleError(derr)
			}
			run, err = e.Verify(ctx, input.ScenarioID, st, domain.SourceRequest)
		} else {
			run, err = e.VerifyLive(ctx, input.ScenarioID, live)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunResponse `json:"body"`
		}{Body: runResponse(run)}, nil
	})
}

func registerRuns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/runs",
		Summary:     "List verification runs",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ScenarioID string `query:"scenario_id"`
		Passed     string `query:"passed" doc:"true or false; empty for any"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedRuns `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		f := repo.RunFilters{ScenarioID: input.ScenarioID, Limit: limit + 1, CursorCreatedAt: ts, CursorID: id}
		if input.Passed != "" {
			passed, err := strconv.ParseBool(input.Passed)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid passed filter", nil)
			}
			f.Passed = &passed
		}
		runs, err := e.Repo.ListRuns(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedRuns{Items: []RunResponse{}}
		if len(runs) > limit {
			last := runs[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			runs = runs[:limit]
		}
		for _, r := range runs {
			resp.Items = append(resp.Items, runResponse(r))
		}
		return &struct {
			Body paginatedRuns `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-run",
		Method:      http.MethodGet,
		Path:        "/runs/{run_id}",
		Summary:     "Get a run with its checks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RunID string `path:"run_id"`
	}) (*struct {
		Body RunResponse `json:"body"`
	}, error) {
		run, err := e.GetRun(ctx, input.RunID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunResponse `json:"body"`
		}{Body: runResponse(run)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Per-scenario run statistics",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body statsResponse `json:"body"`
	}, error) {
		stats, err := e.Repo.Stats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body statsResponse `json:"body"`
		}{Body: statsResponse{Items: stats}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ScenarioID string `query:"scenario_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, repo.EventFilters{
			ScenarioID: input.ScenarioID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	data := bodyBytes(ctx)
	if len(data) == 0 {
		return map[string]json.RawMessage{}
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return map[string]json.RawMessage{}
	}
	return outer
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
