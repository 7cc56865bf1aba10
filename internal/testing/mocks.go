package testing

import (
	"context"
	"slices"

	"github.com/stretchr/testify/mock"

	"github.com/imamik/clusterous/internal/platform/ansible"
)

// MockConfigurer is a mock implementation of the provisioning Configurer.
type MockConfigurer struct {
	mock.Mock
}

// NewAcceptingConfigurer returns a MockConfigurer on which every playbook succeeds.
func NewAcceptingConfigurer() *MockConfigurer {
	m := &MockConfigurer{}
	m.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("RunOnController", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

// Run applies a playbook through the local inventory.
func (m *MockConfigurer) Run(ctx context.Context, playbook, inventoryPath string, vars map[string]any) error {
	args := m.Called(ctx, playbook, inventoryPath, vars)
	return args.Error(0)
}

// RunOnController applies a playbook from the controller.
func (m *MockConfigurer) RunOnController(ctx context.Context, controllerInventory, playbook string, hosts ansible.Inventory, vars map[string]any) error {
	args := m.Called(ctx, controllerInventory, playbook, hosts, vars)
	return args.Error(0)
}

// Playbooks returns the playbooks run so far, in order.
func (m *MockConfigurer) Playbooks() []string {
	var out []string
	for _, call := range m.Calls {
		switch call.Method {
		case "Run":
			out = append(out, call.Arguments.String(1))
		case "RunOnController":
			out = append(out, call.Arguments.String(2))
		}
	}
	return out
}

// HostsFor returns the inventory passed with the last run of playbook.
func (m *MockConfigurer) HostsFor(playbook string) ansible.Inventory {
	calls := slices.Clone(m.Calls)
	slices.Reverse(calls)
	for _, call := range calls {
		if call.Method == "RunOnController" && call.Arguments.String(2) == playbook {
			return call.Arguments.Get(3).(ansible.Inventory)
		}
	}
	return nil
}
