package mocks

import "github.com/stretchr/testify/mock"

// MockVisitor records visited node names for order assertions across packages
type MockVisitor struct {
	mock.Mock
}

func (m *MockVisitor) Visit(name string) {
	m.Called(name)
}
