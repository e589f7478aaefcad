// Package httprequest performs the outbound JSON calls of `api_call` steps and
// exposes the same call as the `http_request` action.
package httprequest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultMethod  = http.MethodPost

	// maxErrorBody bounds how much of a failed response is kept in the error.
	maxErrorBody = 512
)

var (
	// ErrURLRequired is returned when the request has no URL.
	ErrURLRequired = errors.New("url is required")
	// ErrUnexpectedStatus is returned for any non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// Request describes one outbound call. Payload is encoded as the JSON body;
// a nil payload sends no body.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Payload any
}

type Response struct {
	StatusCode int
	Body       []byte
}

type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// NewClient builds a client with the given timeout; zero uses DefaultTimeout.
func NewClient(logger *slog.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("module", "http_request"),
	}
}

// Do sends the request. Transport errors and non-2xx statuses are errors.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.URL == "" {
		return nil, ErrURLRequired
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = DefaultMethod
	}

	var body io.Reader

	if req.Payload != nil {
		payload, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}

		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpReq.Header.Set("Accept", "application/json")

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	c.logger.DebugContext(ctx, "Sending request", "method", method, "url", req.URL)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := respBody
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}

		return nil, fmt.Errorf("%w: %s %s returned %d: %s", ErrUnexpectedStatus, method, req.URL, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// RequestFromConfig reads url, method, headers and payload from a step config.
func RequestFromConfig(config map[string]any) Request {
	req := Request{}

	req.URL, _ = config["url"].(string)
	req.Method, _ = config["method"].(string)

	if headers, ok := config["headers"].(map[string]any); ok {
		req.Headers = make(map[string]string, len(headers))

		for key, value := range headers {
			req.Headers[key] = fmt.Sprint(value)
		}
	}

	if payload, ok := config["payload"]; ok {
		req.Payload = payload
	}

	return req
}
