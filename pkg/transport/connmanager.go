package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/marmos91/s3surge/internal/logger"
)

// ConnManager owns the pooled connections to one resolved address. The
// underlying client dials the pinned address directly while requests keep the
// logical endpoint as Host and TLS server name, so every manager terminates at
// a distinct server behind the same hostname.
type ConnManager struct {
	address string
	client  *http.Client
}

// Address returns the resolved address this manager is pinned to.
func (m *ConnManager) Address() string { return m.address }

func (t *Transport) port() int {
	if t.opts.Port != 0 {
		return t.opts.Port
	}
	if t.opts.SendEncrypted {
		return 443
	}
	return 80
}

func (t *Transport) scheme() string {
	if t.opts.SendEncrypted {
		return "https"
	}
	return "http"
}

// newConnManager builds a manager whose transport always dials the given
// address regardless of the request URL's host.
func (t *Transport) newConnManager(address string) *ConnManager {
	dialAddr := net.JoinHostPort(address, fmt.Sprintf("%d", t.port()))
	dialer := &net.Dialer{Timeout: connectTimeout}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, dialAddr)
		},
		MaxConnsPerHost:     maxConnectionsPerManager,
		MaxIdleConnsPerHost: maxConnectionsPerManager,
		IdleConnTimeout:     90 * time.Second,
	}
	if t.opts.SendEncrypted {
		transport.TLSClientConfig = &tls.Config{ServerName: t.endpoint}
	}

	return &ConnManager{
		address: address,
		client:  &http.Client{Transport: transport},
	}
}

// SpawnConnectionManagers replaces the manager pool with one manager per
// cached address. Existing managers are purged first, which also resets the
// selection counter. Must not run concurrently with in-flight transfers.
func (t *Transport) SpawnConnectionManagers() {
	t.PurgeConnectionManagers()

	addresses := t.addressCacheSnapshot()

	t.mu.Lock()
	for _, address := range addresses {
		t.connManagers = append(t.connManagers, t.newConnManager(address))
	}
	n := len(t.connManagers)
	t.mu.Unlock()

	logger.Info("Spawned connection managers", "endpoint", t.endpoint, "managers", n)
}

// PurgeConnectionManagers closes idle connections on every manager, empties
// the pool, and resets the selection counter so a respawned pool starts its
// rotation from the first manager.
func (t *Transport) PurgeConnectionManagers() {
	t.mu.Lock()
	managers := t.connManagers
	t.connManagers = nil
	t.mu.Unlock()

	for _, m := range managers {
		m.client.CloseIdleConnections()
	}
	t.connManagersUseCount.Store(0)
}

// GetNextConnManager selects a manager for the next request. Selection sticks
// to one manager for TransfersPerAddress consecutive acquisitions before
// rotating, spreading load across addresses in batches. If the pool is empty
// it lazily warms a single address and spawns managers for it.
func (t *Transport) GetNextConnManager() (*ConnManager, error) {
	t.mu.Lock()
	n := len(t.connManagers)
	t.mu.Unlock()

	if n == 0 {
		logger.Warn("Connection manager pool empty, warming lazily", "endpoint", t.endpoint)
		t.WarmDNSCache(1)
		t.SpawnConnectionManagers()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.connManagers) == 0 {
		return nil, fmt.Errorf("transport: no connection managers available for %s", t.endpoint)
	}
	index := (t.connManagersUseCount.Add(1) / TransfersPerAddress) % uint64(len(t.connManagers))
	return t.connManagers[index], nil
}
