package httprequest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	flowlog "github.com/dukex/flowline/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Do(t *testing.T) {
	var (
		gotMethod  string
		gotHeader  string
		gotPayload map[string]any
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Tenant")

		_ = json.NewDecoder(r.Body).Decode(&gotPayload)

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(flowlog.Discard(), time.Second)

	resp, err := client.Do(context.Background(), Request{
		URL:     server.URL,
		Headers: map[string]string{"X-Tenant": "acme"},
		Payload: map[string]any{"user": "42"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, http.MethodPost, gotMethod, "POST is the default method")
	assert.Equal(t, "acme", gotHeader)
	assert.Equal(t, map[string]any{"user": "42"}, gotPayload)
}

func TestClient_DoFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	client := NewClient(flowlog.Discard(), time.Second)

	_, err := client.Do(context.Background(), Request{Method: "put", URL: server.URL})
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "PUT")
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream down")

	_, err = client.Do(context.Background(), Request{})
	require.ErrorIs(t, err, ErrURLRequired)

	_, err = client.Do(context.Background(), Request{URL: "http://127.0.0.1:1/unreachable"})
	require.Error(t, err)
}

func TestRequestFromConfig(t *testing.T) {
	req := RequestFromConfig(map[string]any{
		"url":     "https://api.example.com",
		"method":  "PATCH",
		"headers": map[string]any{"X-Retry": float64(2)},
		"payload": map[string]any{"plan": "vip"},
	})

	assert.Equal(t, "https://api.example.com", req.URL)
	assert.Equal(t, "PATCH", req.Method)
	assert.Equal(t, map[string]string{"X-Retry": "2"}, req.Headers)
	assert.Equal(t, map[string]any{"plan": "vip"}, req.Payload)
}

func TestAction_DefaultsPayloadToTriggerData(t *testing.T) {
	var got map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	action := NewAction(NewClient(flowlog.Discard(), time.Second))
	assert.Equal(t, "http_request", action.ID())

	err := action.Execute(context.Background(), map[string]any{"url": server.URL}, map[string]any{"order_id": "o-1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"order_id": "o-1"}, got)
}
