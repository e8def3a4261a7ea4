package server

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

const bearerScheme = "bearerAuth"

// apiConfig serves the OpenAPI document at /openapi.json and the docs UI
// at /docs, outside the authenticated base path.
func apiConfig() huma.Config {
	cfg := huma.DefaultConfig("PA Bench Verifier API", "0.1.0")
	cfg.Info.Description = "Scores agent work on simulated mailbox and calendar services. " +
		"A failed verification is a normal 200 response; 502 means the state could not be read."
	if cfg.Components.SecuritySchemes == nil {
		cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	cfg.Components.SecuritySchemes[bearerScheme] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	return cfg
}

// requireBearer documents bearer auth on every operation except health.
func requireBearer(op *huma.Operation, next func(*huma.Operation)) {
	if op.OperationID != "health" {
		op.Security = []map[string][]string{{bearerScheme: {}}}
		op.Errors = appendStatus(op.Errors, http.StatusUnauthorized)
	}
	next(op)
}

func appendStatus(codes []int, code int) []int {
	for _, c := range codes {
		if c == code {
			return codes
		}
	}
	return append(codes, code)
}
