// Package transport implements the object transport engine: DNS-warmed
// address caching, per-address connection managers, the signed-request
// dispatch pipeline, single-shot PUT/GET, and the multipart orchestrator with
// its bounded-concurrency part processors.
package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/marmos91/s3surge/internal/logger"
)

const (
	// MaxStreams is the in-flight part ceiling per processor instance.
	MaxStreams = 500

	// TransfersPerAddress is how many consecutive transfers stick to one
	// resolved address before selection rotates to the next.
	TransfersPerAddress = 10

	// maxConnectionsPerManager caps the pooled connections each manager may
	// hold to its address.
	maxConnectionsPerManager = 5000

	// connectTimeout bounds connection establishment. There is no per-request
	// or per-transfer deadline; a transfer runs to completion or error.
	connectTimeout = 3 * time.Second

	// dnsWarmPollInterval is how often WarmDNSCache polls the resolver's
	// cached address count.
	dnsWarmPollInterval = 1 * time.Second
)

// Options configures a Transport.
type Options struct {
	// Bucket is the target bucket name. Together with Region it determines
	// the endpoint hostname unless Endpoint overrides it.
	Bucket string

	// Region is the storage region, used for endpoint derivation and request
	// signing.
	Region string

	// Endpoint overrides the derived <bucket>.s3.<region>.amazonaws.com
	// hostname. Useful for S3-compatible services.
	Endpoint string

	// SendEncrypted selects https on port 443; otherwise http on port 80.
	SendEncrypted bool

	// Port overrides the scheme-derived port when non-zero. Primarily a test
	// hook for local endpoints.
	Port int

	// Credentials provides signing credentials. Required unless a custom
	// Signer is supplied.
	Credentials aws.CredentialsProvider

	// Signer signs outbound requests. Defaults to a SigV4 signer over
	// Credentials.
	Signer RequestSigner

	// Resolver is the DNS capability used for address-cache warming.
	// Defaults to the system resolver.
	Resolver HostResolver

	// Metrics receives transport datapoints. May be nil.
	Metrics Metrics
}

// Transport moves objects to and from one bucket endpoint. All operations on
// one Transport share its connection-manager pool, its use counter and its two
// part processors. Callers must serialize WarmDNSCache/SeedAddressCache
// against SpawnConnectionManagers; steady-state transfer operations may then
// run concurrently.
type Transport struct {
	opts     Options
	endpoint string
	signer   RequestSigner
	resolver HostResolver
	metrics  Metrics

	mu           sync.Mutex
	addressCache []string
	connManagers []*ConnManager

	connManagersUseCount atomic.Uint64
	activeRequests       atomic.Int64

	uploadProcessor   *PartProcessor
	downloadProcessor *PartProcessor

	dnsPollInterval time.Duration
}

// New creates a Transport for the given options. The DNS cache is cold; call
// WarmDNSCache (or SeedAddressCache) and SpawnConnectionManagers before
// issuing transfers, or the first request will lazily warm a single address.
func New(opts Options) (*Transport, error) {
	if opts.Endpoint == "" && (opts.Bucket == "" || opts.Region == "") {
		return nil, fmt.Errorf("transport: either Endpoint or Bucket and Region are required")
	}
	if opts.Signer == nil && opts.Credentials == nil {
		return nil, fmt.Errorf("transport: credentials are required when no signer is supplied")
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	}

	signer := opts.Signer
	if signer == nil {
		signer = NewSigV4Signer(opts.Credentials)
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewDNSResolver()
	}

	t := &Transport{
		opts:            opts,
		endpoint:        endpoint,
		signer:          signer,
		resolver:        resolver,
		metrics:         opts.Metrics,
		dnsPollInterval: dnsWarmPollInterval,
	}
	t.uploadProcessor = NewPartProcessor("upload", MaxStreams, opts.Metrics)
	t.downloadProcessor = NewPartProcessor("download", MaxStreams, opts.Metrics)

	return t, nil
}

// Endpoint returns the logical endpoint hostname.
func (t *Transport) Endpoint() string { return t.endpoint }

// Close stops the part processors. In-flight parts run to completion; pending
// parts are abandoned.
func (t *Transport) Close() {
	t.uploadProcessor.Stop(5 * time.Second)
	t.downloadProcessor.Stop(5 * time.Second)
}

// OpenConnectionCount returns the number of requests currently in flight.
func (t *Transport) OpenConnectionCount() int64 {
	return t.activeRequests.Load()
}

// desiredAddressCount computes how many distinct addresses numTransfers
// requires: ceil(numTransfers / TransfersPerAddress).
func desiredAddressCount(numTransfers uint32) uint32 {
	desired := numTransfers / TransfersPerAddress
	if numTransfers%TransfersPerAddress > 0 {
		desired++
	}
	return desired
}

// WarmDNSCache blocks until the address cache holds at least
// ceil(numTransfers/TransfersPerAddress) distinct IPv4 addresses for the
// endpoint. It first polls the resolver's cached address count once per
// second, re-issuing a resolution before each poll so rotating DNS answers
// accumulate and emitting an address-count metric datapoint on every poll,
// then clears the cache and refills it with blocking resolution rounds,
// filtering out IPv6 entries.
//
// There is no internal timeout: if the resolver never yields enough
// addresses, this blocks indefinitely. Callers must bound numTransfers sanely
// and must not run SpawnConnectionManagers concurrently with a warm.
func (t *Transport) WarmDNSCache(numTransfers uint32) {
	desired := desiredAddressCount(numTransfers)

	logger.Info("Warming DNS cache",
		"endpoint", t.endpoint,
		"desiredAddresses", desired)

	t.resolver.ResolveHost(t.endpoint, func([]string, error) {})

	count := t.resolver.CachedAddressCount(t.endpoint)
	t.emitAddressCount(count)

	for uint32(count) < desired {
		t.resolver.ResolveHost(t.endpoint, func([]string, error) {})
		time.Sleep(t.dnsPollInterval)
		count = t.resolver.CachedAddressCount(t.endpoint)
		t.emitAddressCount(count)
	}

	t.mu.Lock()
	t.addressCache = t.addressCache[:0]
	for uint32(len(t.addressCache)) < desired {
		resolved := make(chan []string, 1)
		t.resolver.ResolveHost(t.endpoint, func(addresses []string, err error) {
			if err != nil {
				logger.Warn("DNS resolution round failed", "endpoint", t.endpoint, "error", err)
			}
			resolved <- addresses
		})
		for _, address := range <-resolved {
			if isIPv6(address) {
				continue
			}
			t.addressCache = append(t.addressCache, address)
		}
	}
	addresses := len(t.addressCache)
	t.mu.Unlock()

	logger.Info("DNS cache warmed", "endpoint", t.endpoint, "addresses", addresses)
}

// SeedAddressCache replaces the address cache with exactly one fixed address,
// bypassing DNS warming. Test and debug hook.
func (t *Transport) SeedAddressCache(address string) {
	t.mu.Lock()
	t.addressCache = t.addressCache[:0]
	t.addressCache = append(t.addressCache, address)
	t.mu.Unlock()
}

// AddressForTransfer returns the cached address the given transfer index maps
// to: index (i/TransfersPerAddress) mod cache size.
func (t *Transport) AddressForTransfer(index uint32) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addressCache[(index/TransfersPerAddress)%uint32(len(t.addressCache))]
}

// addressCacheSnapshot returns a copy of the cached addresses.
func (t *Transport) addressCacheSnapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	addresses := make([]string, len(t.addressCache))
	copy(addresses, t.addressCache)
	return addresses
}
