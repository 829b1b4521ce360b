package transport

import (
	"context"
	"net"
	"strings"
	"sync"
)

// HostResolver is the DNS capability consumed by the transport. ResolveHost
// performs an asynchronous resolution and invokes done with every address the
// round returned (IPv4 and IPv6); CachedAddressCount reports how many distinct
// IPv4 addresses have been observed for the host so far.
type HostResolver interface {
	ResolveHost(host string, done func(addresses []string, err error))
	CachedAddressCount(host string) int
}

// dnsResolver is the default HostResolver backed by the system resolver.
// Because DNS answers rotate between rounds, repeated resolutions accumulate
// distinct A records in the per-host cache, which is what lets WarmDNSCache
// discover more addresses than a single lookup returns.
type dnsResolver struct {
	resolver *net.Resolver

	mu    sync.Mutex
	cache map[string]map[string]struct{} // host -> distinct IPv4 addresses
}

// NewDNSResolver returns a HostResolver backed by the system DNS resolver.
func NewDNSResolver() HostResolver {
	return &dnsResolver{
		resolver: net.DefaultResolver,
		cache:    make(map[string]map[string]struct{}),
	}
}

func (r *dnsResolver) ResolveHost(host string, done func(addresses []string, err error)) {
	go func() {
		addresses, err := r.resolver.LookupHost(context.Background(), host)
		if err == nil {
			r.mu.Lock()
			set := r.cache[host]
			if set == nil {
				set = make(map[string]struct{})
				r.cache[host] = set
			}
			for _, address := range addresses {
				if isIPv6(address) {
					continue
				}
				set[address] = struct{}{}
			}
			r.mu.Unlock()
		}
		if done != nil {
			done(addresses, err)
		}
	}()
}

func (r *dnsResolver) CachedAddressCount(host string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache[host])
}

// isIPv6 reports whether address is an IPv6 literal.
func isIPv6(address string) bool {
	return strings.Contains(address, ":")
}
