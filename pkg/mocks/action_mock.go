package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockAction is a mock implementation of protocol.Action interface.
type MockAction struct {
	mock.Mock

	Name string
}

func NewMockAction(name string) *MockAction {
	return &MockAction{Name: name}
}

func (m *MockAction) ID() string {
	return m.Name
}

func (m *MockAction) Execute(ctx context.Context, config map[string]any, triggerData map[string]any) error {
	args := m.Called(ctx, config, triggerData)

	return args.Error(0)
}
