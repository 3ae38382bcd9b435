package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyReportsDependencies(t *testing.T) {
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	cases := []struct {
		name   string
		deps   map[string]Pinger
		status int
	}{
		{name: "all healthy", deps: map[string]Pinger{"postgres": ok, "redis": ok}, status: http.StatusOK},
		{name: "redis disabled", deps: map[string]Pinger{"postgres": ok, "redis": nil}, status: http.StatusOK},
		{name: "postgres down", deps: map[string]Pinger{"postgres": down, "redis": ok}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/ready", NewHealthHandler("helpdesk", "test", tc.deps).Ready)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ready", nil), -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tc.status == http.StatusOK {
				assert.Equal(t, "ready", body["status"])
			} else {
				errBody := body["error"].(map[string]any)
				assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errBody["code"])
				assert.Equal(t, "connection refused", errBody["details"].(map[string]any)["postgres"])
			}
		})
	}
}
