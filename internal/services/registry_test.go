package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock service for testing
type MockService struct {
	name             string
	initializeCalled bool
	initializeError  error
	order            *[]string
}

func NewMockService(name string) *MockService {
	return &MockService{name: name}
}

func (m *MockService) Name() string {
	return m.name
}

func (m *MockService) Initialize(_ context.Context) error {
	m.initializeCalled = true
	if m.order != nil {
		*m.order = append(*m.order, m.name)
	}
	return m.initializeError
}

func TestRegistry_RegisterService(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.RegisterService(NewMockService("test1")))
	require.NoError(t, registry.RegisterService(NewMockService("test2")))

	err := registry.RegisterService(NewMockService("test1"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
	assert.Len(t, registry.GetAllServices(), 2)
}

func TestRegistry_InitializeAll(t *testing.T) {
	var order []string
	registry := NewRegistry()
	b := &MockService{name: "b", order: &order}
	a := &MockService{name: "a", order: &order}
	require.NoError(t, registry.RegisterService(b))
	require.NoError(t, registry.RegisterService(a))

	require.NoError(t, registry.InitializeAll(context.Background()))
	assert.Equal(t, []string{"a", "b"}, order)
	assert.True(t, a.initializeCalled)
	assert.True(t, b.initializeCalled)
}

func TestRegistry_InitializeAllError(t *testing.T) {
	registry := NewRegistry()
	failing := NewMockService("failing")
	failing.initializeError = errors.New("boom")
	require.NoError(t, registry.RegisterService(failing))

	err := registry.InitializeAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	assert.ErrorContains(t, err, "boom")
}
