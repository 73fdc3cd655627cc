package interfaces

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClusterResolver implements ClusterResolver for testing.
type MockClusterResolver struct {
	mock.Mock
}

func (m *MockClusterResolver) Resolve(ctx context.Context) (ClusterURL, error) {
	args := m.Called(ctx)
	return args.Get(0).(ClusterURL), args.Error(1)
}

// MockEventSource implements EventSource for testing.
type MockEventSource struct {
	mock.Mock
}

func (m *MockEventSource) EventID(ctx context.Context) (EventID, error) {
	args := m.Called(ctx)
	return args.Get(0).(EventID), args.Error(1)
}

// MockCredentialSource implements CredentialSource for testing.
type MockCredentialSource struct {
	mock.Mock
}

func (m *MockCredentialSource) FetchCredential(ctx context.Context, event EventID) (Credential, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(Credential), args.Error(1)
}

// MockStateStore implements StateStore for testing.
type MockStateStore struct {
	mock.Mock
}

func (m *MockStateStore) Load() (EventID, error) {
	args := m.Called()
	return args.Get(0).(EventID), args.Error(1)
}

func (m *MockStateStore) Save(event EventID) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockTunnelProber implements TunnelProber for testing.
type MockTunnelProber struct {
	mock.Mock
}

func (m *MockTunnelProber) Connected(ctx context.Context) TunnelStatus {
	args := m.Called(ctx)
	return args.Get(0).(TunnelStatus)
}

// MockConfigApplier implements ConfigApplier for testing.
type MockConfigApplier struct {
	mock.Mock
}

func (m *MockConfigApplier) Apply(ctx context.Context, credential Credential) error {
	args := m.Called(ctx, credential)
	return args.Error(0)
}

// MockStatusReporter implements StatusReporter for testing.
type MockStatusReporter struct {
	mock.Mock
}

func (m *MockStatusReporter) ReportInitStatus(ctx context.Context, status string) {
	m.Called(ctx, status)
}
