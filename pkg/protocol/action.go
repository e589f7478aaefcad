// Package protocol defines the contracts between the engine and pluggable step handlers.
package protocol

import "context"

// Action is a named handler invoked by `action` steps. config has already been
// passed through variable substitution. Any returned error fails the step.
type Action interface {
	ID() string
	Execute(ctx context.Context, config map[string]any, triggerData map[string]any) error
}

// ActionFunc adapts a plain function to Action.
type ActionFunc struct {
	Name string
	Fn   func(ctx context.Context, config map[string]any, triggerData map[string]any) error
}

func NewActionFunc(name string, fn func(ctx context.Context, config map[string]any, triggerData map[string]any) error) *ActionFunc {
	return &ActionFunc{Name: name, Fn: fn}
}

func (a *ActionFunc) ID() string {
	return a.Name
}

func (a *ActionFunc) Execute(ctx context.Context, config map[string]any, triggerData map[string]any) error {
	return a.Fn(ctx, config, triggerData)
}
