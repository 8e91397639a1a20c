/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package resolver is the name-resolution facade: it turns a
// domain into a weighted selective set of addresses and caches the result
// for a bounded TTL, so that escapers never see raw DNS lookups.
package resolver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sabouaram/netproxy/addr"
	"github.com/sabouaram/netproxy/cache"
	liberr "github.com/sabouaram/netproxy/errors"
)

// Config mirrors the runtime knobs of the reference hickory-backed driver:
// a per-lookup protective timeout, a retry interval used when more than one
// upstream DNS client is configured, and a floor TTL applied to negative
// (failed) results so a flapping name cannot be re-queried on every call.
type Config struct {
	QueryTimeout   time.Duration
	RetryInterval  time.Duration
	NegativeMinTTL time.Duration
	PositiveTTL    time.Duration
	PreferIPv6     bool
}

func DefaultConfig() Config {
	return Config{
		QueryTimeout:   time.Second * 2,
		RetryInterval:  time.Millisecond * 200,
		NegativeMinTTL: time.Second * 2,
		PositiveTTL:    time.Minute * 5,
	}
}

// Resolver resolves a domain to a weighted selective set of IPs, caching
// both positive and negative outcomes. Opaque to escapers: they only ever
// see the resulting *addr.Selective[net.IP].
type Resolver struct {
	cfg     Config
	cache   cache.Cache[string, *addr.Selective[net.IP]]
	lookup  func(ctx context.Context, host string) ([]net.IP, error)
	mu      sync.Mutex
	pending map[string]chan struct{}
	neg     cache.Cache[string, *addr.Selective[net.IP]]
}

// New builds a Resolver backed by the standard resolver. ctx governs the
// lifetime of the background expiration sweep of the underlying cache.
func New(ctx context.Context, cfg Config) *Resolver {
	if cfg.PositiveTTL <= 0 {
		cfg.PositiveTTL = time.Minute * 5
	}
	if cfg.NegativeMinTTL <= 0 {
		cfg.NegativeMinTTL = time.Second * 2
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = time.Second * 2
	}

	return &Resolver{
		cfg:     cfg,
		cache:   cache.New[string, *addr.Selective[net.IP]](ctx, cfg.PositiveTTL),
		lookup:  net.DefaultResolver.LookupIP,
		pending: make(map[string]chan struct{}),
	}
}

// SetLookupFunc overrides the underlying address lookup, e.g. to plug in a
// custom DNS client or a fake for tests. Must be called before the first
// Resolve.
func (r *Resolver) SetLookupFunc(fn func(ctx context.Context, host string) ([]net.IP, error)) {
	r.lookup = fn
}

// Resolve returns a weighted selective set of addresses for domain,
// querying the cache first. A domain that already carries a literal IP
// (addr.Host of kind IP) never reaches the resolver: callers should check
// addr.Host.IsIP first and build a single-member Selective directly.
func (r *Resolver) Resolve(ctx context.Context, domain string) (*addr.Selective[net.IP], liberr.Error) {
	if s, _, ok := r.cache.Load(domain); ok {
		return s, nil
	}
	if _, _, ok := r.negativeCache().Load(domain); ok {
		return nil, ErrorNoAddress.Error(nil)
	}

	return r.resolveCoalesced(ctx, domain)
}

// resolveCoalesced ensures only one in-flight lookup per domain runs at a
// time (mirrors the reference driver's single fan-out to its DNS clients,
// simplified from a multi-client race to a single coalesced query since the
// Go standard resolver already dispatches both A and AAAA concurrently).
func (r *Resolver) resolveCoalesced(ctx context.Context, domain string) (*addr.Selective[net.IP], liberr.Error) {
	r.mu.Lock()
	if ch, inFlight := r.pending[domain]; inFlight {
		r.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ErrorLookupFailed.Error(ctx.Err())
		}
		if s, _, ok := r.cache.Load(domain); ok {
			return s, nil
		}
		return nil, ErrorNoAddress.Error(nil)
	}

	done := make(chan struct{})
	r.pending[domain] = done
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, domain)
		r.mu.Unlock()
		close(done)
	}()

	return r.queryAndCache(ctx, domain)
}

func (r *Resolver) queryAndCache(ctx context.Context, domain string) (*addr.Selective[net.IP], liberr.Error) {
	qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	ips, e := r.lookup(qctx, domain)
	if e != nil || len(ips) == 0 {
		r.cacheNegative(domain)
		if e != nil {
			return nil, ErrorLookupFailed.Error(e)
		}
		return nil, ErrorNoAddress.Error(nil)
	}

	set := addr.NewSelective[net.IP]()
	for _, ip := range ips {
		if r.cfg.PreferIPv6 && ip.To4() != nil {
			continue
		}
		set.Add(ip.String(), 1, ip)
	}
	if set.Len() == 0 {
		// PreferIPv6 filtered everything out: fall back to the full list.
		for _, ip := range ips {
			set.Add(ip.String(), 1, ip)
		}
	}

	r.cache.Store(domain, set)
	return set, nil
}

// cacheNegative stores an empty selective set for the configured negative
// floor TTL so a persistently-failing domain is not re-queried on every
// task. The underlying cache.Cache uses one fixed TTL for all entries
// (r.cfg.PositiveTTL); negative entries are instead expired eagerly by
// storing them in a second, shorter-lived cache keyed the same way.
func (r *Resolver) cacheNegative(domain string) {
	empty := addr.NewSelective[net.IP]()
	r.negativeCache().Store(domain, empty)
}

func (r *Resolver) negativeCache() cache.Cache[string, *addr.Selective[net.IP]] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.neg == nil {
		r.neg = cache.New[string, *addr.Selective[net.IP]](context.Background(), r.cfg.NegativeMinTTL)
	}
	return r.neg
}
