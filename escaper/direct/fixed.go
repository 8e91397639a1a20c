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

// Package direct implements the direct-fixed and direct-float escaper
// variants: terminal escapers that dial the upstream address
// directly, picking an egress IP either from the resolver's weighted
// selective set (Fixed) or from a dynamic, externally-refreshed bind-IP
// list (Float).
package direct

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"

	liberr "github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/escaper"
	"github.com/sabouaram/netproxy/pool"
	"github.com/sabouaram/netproxy/resolver"
	"github.com/sabouaram/netproxy/stats"
)

// FixedConfig configures a Fixed escaper.
type FixedConfig struct {
	Name        string
	Resolver    *resolver.Resolver
	Pool        *pool.Pool[string, net.Conn]
	Stats       *stats.Escaper
	BindIPv4    net.IP
	BindIPv6    net.IP
	PreferIPv6  bool
	DialTimeout time.Duration
}

// Fixed is the direct-fixed escaper: it resolves the upstream host through
// the shared resolver facade, picks one of the returned addresses by
// weighted rendezvous, and dials it directly: picks from resolved
// IPs via weighted rendezvous or random, respects family preference,
// bind-IP optional").
type Fixed struct {
	escaper.Base
	cfg FixedConfig
}

func NewFixed(cfg FixedConfig) *Fixed {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Fixed{cfg: cfg}
}

func (f *Fixed) Name() string { return f.cfg.Name }

func (f *Fixed) Capabilities() escaper.Capability {
	return escaper.CapTCPSetupConnection |
		escaper.CapTLSSetupConnection |
		escaper.CapHTTPForwardNewConnection |
		escaper.CapHTTPSForwardNewConnection |
		escaper.CapFTPNewConnection
}

func (f *Fixed) LocalHTTPForwardCapability() bool { return true }

// CheckOutNextEscaper is a terminal escaper: it always resolves to itself.
func (f *Fixed) CheckOutNextEscaper(_ context.Context, _ escaper.Request, _ *escaper.AuditContext) (escaper.Escaper, liberr.Error) {
	return f, nil
}

func (f *Fixed) TCPSetupConnection(ctx context.Context, req escaper.Request, _ *escaper.AuditContext) (net.Conn, liberr.Error) {
	conn, reused, e := f.cfg.Pool.GetOrBuild(ctx, req.Upstream.String(), f.dialBuilder(req))
	if f.cfg.Stats != nil {
		f.cfg.Stats.ConnAttempt()
		if e == nil {
			f.cfg.Stats.ConnSuccess()
		}
	}
	if e != nil {
		return nil, ErrorDialFailed.Error(e)
	}
	_ = reused
	return conn, nil
}

func (f *Fixed) TLSSetupConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext, cfg *tls.Config) (net.Conn, liberr.Error) {
	raw, e := f.TCPSetupConnection(ctx, req, audit)
	if e != nil {
		return nil, e
	}
	tlsConn := tls.Client(raw, cfg)
	if hsErr := tlsConn.HandshakeContext(ctx); hsErr != nil {
		_ = raw.Close()
		return nil, ErrorDialFailed.Error(hsErr)
	}
	return tlsConn, nil
}

func (f *Fixed) HTTPForwardNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext) (net.Conn, liberr.Error) {
	return f.TCPSetupConnection(ctx, req, audit)
}

func (f *Fixed) HTTPSForwardNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext, cfg *tls.Config) (net.Conn, liberr.Error) {
	return f.TLSSetupConnection(ctx, req, audit, cfg)
}

func (f *Fixed) FTPNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext) (net.Conn, liberr.Error) {
	return f.TCPSetupConnection(ctx, req, audit)
}

// dialBuilder resolves req.Upstream (skipping the resolver entirely when
// it already carries a literal IP) and dials the chosen address, optionally
// bound to the configured egress IP for the matching family.
func (f *Fixed) dialBuilder(req escaper.Request) pool.Builder[net.Conn] {
	return func(ctx context.Context) (net.Conn, error) {
		ip, e := f.pickAddress(ctx, req)
		if e != nil {
			return nil, e
		}

		dialer := &net.Dialer{Timeout: f.cfg.DialTimeout}
		if bind := f.bindFor(ip); bind != nil {
			dialer.LocalAddr = &net.TCPAddr{IP: bind}
		}

		target := net.JoinHostPort(ip.String(), strconv.Itoa(int(req.Upstream.Port())))
		return dialer.DialContext(ctx, "tcp", target)
	}
}

func (f *Fixed) pickAddress(ctx context.Context, req escaper.Request) (net.IP, liberr.Error) {
	host := req.Upstream.Host()
	if host.IsIP() {
		return host.IP(), nil
	}
	if req.BindIP != nil {
		return req.BindIP, nil
	}

	set, e := f.cfg.Resolver.Resolve(ctx, host.String())
	if e != nil {
		return nil, e
	}

	ip, ok := set.PickRendezvous(req.Upstream.String())
	if !ok {
		return nil, escaper.ErrorNoMember.Error(nil)
	}
	return ip, nil
}

func (f *Fixed) bindFor(ip net.IP) net.IP {
	if ip.To4() != nil {
		return f.cfg.BindIPv4
	}
	return f.cfg.BindIPv6
}
