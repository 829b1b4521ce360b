package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The registry is process-wide state, so the disabled and enabled paths are
// covered in one ordered test.
func TestRegistryLifecycle(t *testing.T) {
	assert.False(t, IsEnabled())
	assert.Nil(t, GetRegistry())
	assert.Nil(t, Handler())
	assert.Nil(t, NewTransportMetrics(), "constructors return nil sinks while disabled")

	InitRegistry()

	assert.True(t, IsEnabled())
	require.NotNil(t, GetRegistry())
	assert.NotNil(t, Handler())

	// Idempotent: a second init keeps the same registry.
	reg := GetRegistry()
	InitRegistry()
	assert.Same(t, reg, GetRegistry())
}
