package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnConnectionManagers(t *testing.T) {
	tr := newTestTransport(t, newFakeResolver([]string{"10.0.0.1"}))
	tr.mu.Lock()
	tr.addressCache = []string{"10.0.0.1", "10.0.0.2"}
	tr.mu.Unlock()

	tr.SpawnConnectionManagers()

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Len(t, tr.connManagers, 2)
	assert.Equal(t, "10.0.0.1", tr.connManagers[0].Address())
	assert.Equal(t, "10.0.0.2", tr.connManagers[1].Address())
}

func TestGetNextConnManagerStickyRotation(t *testing.T) {
	tr := newTestTransport(t, newFakeResolver([]string{"10.0.0.1"}))
	tr.mu.Lock()
	tr.addressCache = []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	tr.mu.Unlock()
	tr.SpawnConnectionManagers()

	counts := make(map[string]int)
	for i := 0; i < 60; i++ {
		cm, err := tr.GetNextConnManager()
		require.NoError(t, err)
		counts[cm.Address()]++
	}

	// 60 acquisitions over 3 managers in batches of 10: each serves 20.
	assert.Equal(t, 20, counts["10.0.0.1"])
	assert.Equal(t, 20, counts["10.0.0.2"])
	assert.Equal(t, 20, counts["10.0.0.3"])
}

func TestGetNextConnManagerBatchesStick(t *testing.T) {
	tr := newTestTransport(t, newFakeResolver([]string{"10.0.0.1"}))
	tr.mu.Lock()
	tr.addressCache = []string{"10.0.0.1", "10.0.0.2"}
	tr.mu.Unlock()
	tr.SpawnConnectionManagers()

	// First acquisition uses counter value 1, so the first batch spans nine
	// acquisitions before selection rotates.
	var first []string
	for i := 0; i < 9; i++ {
		cm, err := tr.GetNextConnManager()
		require.NoError(t, err)
		first = append(first, cm.Address())
	}
	for _, address := range first {
		assert.Equal(t, "10.0.0.1", address)
	}

	cm, err := tr.GetNextConnManager()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", cm.Address())
}

func TestPurgeResetsRotation(t *testing.T) {
	tr := newTestTransport(t, newFakeResolver([]string{"10.0.0.1"}))
	tr.mu.Lock()
	tr.addressCache = []string{"10.0.0.1", "10.0.0.2"}
	tr.mu.Unlock()
	tr.SpawnConnectionManagers()

	// Advance selection into the second batch.
	for i := 0; i < 15; i++ {
		_, err := tr.GetNextConnManager()
		require.NoError(t, err)
	}

	// Respawning purges first, so rotation starts over from the first manager.
	tr.SpawnConnectionManagers()
	cm, err := tr.GetNextConnManager()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", cm.Address())
}

func TestPurgeConnectionManagers(t *testing.T) {
	tr := newTestTransport(t, newFakeResolver([]string{"10.0.0.1"}))
	tr.mu.Lock()
	tr.addressCache = []string{"10.0.0.1"}
	tr.mu.Unlock()
	tr.SpawnConnectionManagers()

	tr.PurgeConnectionManagers()

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Empty(t, tr.connManagers)
	assert.Zero(t, tr.connManagersUseCount.Load())
}

func TestGetNextConnManagerLazyWarm(t *testing.T) {
	resolver := newFakeResolver([]string{"10.0.0.7"})
	tr := newTestTransport(t, resolver)
	tr.dnsPollInterval = 0

	// No warm, no seed: the first acquisition warms one address lazily.
	cm, err := tr.GetNextConnManager()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", cm.Address())
}

func TestPortSelection(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want int
	}{
		{"encrypted", Options{Endpoint: "e", Region: "r", SendEncrypted: true, Credentials: testCredentials()}, 443},
		{"plaintext", Options{Endpoint: "e", Region: "r", Credentials: testCredentials()}, 80},
		{"override", Options{Endpoint: "e", Region: "r", Port: 9000, Credentials: testCredentials()}, 9000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.opts)
			require.NoError(t, err)
			defer tr.Close()
			assert.Equal(t, tt.want, tr.port())
		})
	}
}
