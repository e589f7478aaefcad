package httprequest

import "context"

// Action exposes Client as the `http_request` action. The step config uses the
// same keys as `api_call` steps.
type Action struct {
	client *Client
}

func NewAction(client *Client) *Action {
	return &Action{client: client}
}

func (*Action) ID() string {
	return "http_request"
}

// Execute sends trigger data as the body when the config carries no payload.
func (a *Action) Execute(ctx context.Context, config map[string]any, triggerData map[string]any) error {
	req := RequestFromConfig(config)
	if req.Payload == nil {
		req.Payload = triggerData
	}

	_, err := a.client.Do(ctx, req)

	return err
}
