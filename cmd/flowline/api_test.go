package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	logaction "github.com/dukex/flowline/pkg/actions/log"
	"github.com/dukex/flowline/pkg/engine"
	flowlog "github.com/dukex/flowline/pkg/log"
	"github.com/dukex/flowline/pkg/models"
	"github.com/dukex/flowline/pkg/registry"
	"github.com/dukex/flowline/pkg/testutil"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := flowlog.Discard()
	store := testutil.NewSQLiteStore(t)

	reg := registry.NewRegistry(logger)
	reg.Register(logaction.NewAction(logger))

	eng := engine.New(engine.Options{Store: store, Registry: reg, Logger: logger})

	return NewAPI(logger, store, reg, eng, nil).App()
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Flowline API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz", "/health"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)

		_ = resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestAPI_CreateAndTriggerWorkflow(t *testing.T) {
	app := setupTestApp(t)

	payload, err := json.Marshal(map[string]any{
		"name": "Welcome",
		"steps": []map[string]any{
			{"step_type": "action", "config": map[string]any{"action": "log", "message": "hello {{name}}"}},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var workflow models.Workflow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&workflow))

	payload, err = json.Marshal(map[string]any{"workflow_id": workflow.ID, "data": map[string]any{"name": "Ana"}})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodPost, "/trigger", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err = app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var triggered map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&triggered))
	assert.NotEmpty(t, triggered["execution_id"])
}
