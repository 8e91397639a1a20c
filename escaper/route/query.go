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

package route

import (
	"context"
	"net"

	liberr "github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/escaper"
	"github.com/sabouaram/netproxy/resolver"
)

// QueryConfig configures a route-query escaper: it resolves the upstream
// host (reusing the shared resolver facade so the result is cached exactly
// like any other lookup) and dispatches on the resulting IP class.
type QueryConfig struct {
	Name           string
	Registry       *escaper.Registry
	Resolver       *resolver.Resolver
	PrivateEscaper string // destination resolves to an RFC1918/ULA address
	PublicEscaper  string
	IPv6Escaper    string // non-empty overrides PublicEscaper/PrivateEscaper for AAAA results
	Default        string
}

// Query is the route-query escaper.
type Query struct {
	escaper.Base
	cfg QueryConfig
}

func NewQuery(cfg QueryConfig) *Query {
	return &Query{cfg: cfg}
}

func (q *Query) Name() string { return q.cfg.Name }

func (q *Query) Capabilities() escaper.Capability {
	return escaper.CapTCPSetupConnection |
		escaper.CapTLSSetupConnection |
		escaper.CapHTTPForwardNewConnection |
		escaper.CapHTTPSForwardNewConnection |
		escaper.CapFTPNewConnection
}

func (q *Query) CheckOutNextEscaper(ctx context.Context, req escaper.Request, _ *escaper.AuditContext) (escaper.Escaper, liberr.Error) {
	host := req.Upstream.Host()

	ip := host.IP()
	if !host.IsIP() {
		set, le := q.cfg.Resolver.Resolve(ctx, host.String())
		if le != nil {
			return q.fallback()
		}
		picked, ok := set.PickRendezvous(req.Upstream.String())
		if !ok {
			return q.fallback()
		}
		ip = picked
	}

	if ip.To4() == nil && q.cfg.IPv6Escaper != "" {
		return q.cfg.Registry.Get(q.cfg.IPv6Escaper)
	}
	if isPrivate(ip) && q.cfg.PrivateEscaper != "" {
		return q.cfg.Registry.Get(q.cfg.PrivateEscaper)
	}
	if q.cfg.PublicEscaper != "" {
		return q.cfg.Registry.Get(q.cfg.PublicEscaper)
	}
	return q.fallback()
}

func (q *Query) fallback() (escaper.Escaper, liberr.Error) {
	if q.cfg.Default != "" {
		return q.cfg.Registry.Get(q.cfg.Default)
	}
	return nil, ErrorNoRuleMatched.Error(nil)
}

func isPrivate(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}
