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

package direct

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	liberr "github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/escaper"
	"github.com/sabouaram/netproxy/pool"
	"github.com/sabouaram/netproxy/stats"
)

// EgressInfo carries the floating IP's provider metadata (isp, area,
// eip), surfaced so logging/routing
// decisions can key off of it without re-querying the source of the set.
type EgressInfo struct {
	ISP  string
	Area string
	EIP  string
}

// BindIP is one member of a direct-float escaper's dynamic egress set.
type BindIP struct {
	IP       net.IP
	ExpireAt time.Time // zero means "no expiry"
	Egress   EgressInfo
}

func (b BindIP) expired(now time.Time) bool {
	return !b.ExpireAt.IsZero() && now.After(b.ExpireAt)
}

// FloatConfig configures a Float escaper.
type FloatConfig struct {
	Name        string
	Pool        *pool.Pool[string, net.Conn]
	Stats       *stats.Escaper
	PreferIPv6  bool
	DialTimeout time.Duration
}

// Float is the direct-float escaper: its egress set is refreshed
// externally (typically by a periodic call out to a floating-IP provider)
// rather than derived from DNS, and it rejects members past their
// ExpireAt on every pick: it picks from a dynamic IP set refreshed
// externally and rejects expired IPs.
type Float struct {
	escaper.Base
	cfg FloatConfig

	mu      sync.RWMutex
	members []BindIP
	rr      uint64
}

func NewFloat(cfg FloatConfig) *Float {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Float{cfg: cfg}
}

func (f *Float) Name() string { return f.cfg.Name }

func (f *Float) Capabilities() escaper.Capability {
	return escaper.CapTCPSetupConnection |
		escaper.CapTLSSetupConnection |
		escaper.CapHTTPForwardNewConnection |
		escaper.CapHTTPSForwardNewConnection |
		escaper.CapFTPNewConnection
}

func (f *Float) LocalHTTPForwardCapability() bool { return true }

func (f *Float) CheckOutNextEscaper(_ context.Context, _ escaper.Request, _ *escaper.AuditContext) (escaper.Escaper, liberr.Error) {
	return f, nil
}

// Refresh atomically replaces the egress set, e.g. after polling a
// floating-IP provider. Callers own the polling interval.
func (f *Float) Refresh(members []BindIP) {
	cp := make([]BindIP, len(members))
	copy(cp, members)

	f.mu.Lock()
	f.members = cp
	f.mu.Unlock()
}

func (f *Float) TCPSetupConnection(ctx context.Context, req escaper.Request, _ *escaper.AuditContext) (net.Conn, liberr.Error) {
	conn, _, e := f.cfg.Pool.GetOrBuild(ctx, req.Upstream.String(), f.dialBuilder(req))
	if f.cfg.Stats != nil {
		f.cfg.Stats.ConnAttempt()
		if e == nil {
			f.cfg.Stats.ConnSuccess()
		}
	}
	if e != nil {
		return nil, ErrorDialFailed.Error(e)
	}
	return conn, nil
}

func (f *Float) TLSSetupConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext, cfg *tls.Config) (net.Conn, liberr.Error) {
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

func (f *Float) HTTPForwardNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext) (net.Conn, liberr.Error) {
	return f.TCPSetupConnection(ctx, req, audit)
}

func (f *Float) HTTPSForwardNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext, cfg *tls.Config) (net.Conn, liberr.Error) {
	return f.TLSSetupConnection(ctx, req, audit, cfg)
}

func (f *Float) FTPNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext) (net.Conn, liberr.Error) {
	return f.TCPSetupConnection(ctx, req, audit)
}

func (f *Float) dialBuilder(req escaper.Request) pool.Builder[net.Conn] {
	return func(ctx context.Context) (net.Conn, error) {
		bind, e := f.pickBindIP()
		if e != nil {
			return nil, e
		}

		dialer := &net.Dialer{Timeout: f.cfg.DialTimeout, LocalAddr: &net.TCPAddr{IP: bind.IP}}
		target := net.JoinHostPort(req.Upstream.Host().String(), strconv.Itoa(int(req.Upstream.Port())))
		return dialer.DialContext(ctx, "tcp", target)
	}
}

// pickBindIP round-robins over the non-expired members matching the
// configured family preference, skipping expired ones as it goes rather
// than pruning them eagerly (a concurrent Refresh may already be in
// flight; eager pruning here would race it for no benefit).
func (f *Float) pickBindIP() (BindIP, liberr.Error) {
	f.mu.RLock()
	members := f.members
	f.mu.RUnlock()

	now := time.Now()
	candidates := make([]BindIP, 0, len(members))
	for _, m := range members {
		if m.expired(now) {
			continue
		}
		if f.cfg.PreferIPv6 && m.IP.To4() != nil {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		for _, m := range members {
			if !m.expired(now) {
				candidates = append(candidates, m)
			}
		}
	}
	if len(candidates) == 0 {
		return BindIP{}, ErrorNoBindIP.Error(nil)
	}

	idx := atomic.AddUint64(&f.rr, 1) - 1
	return candidates[idx%uint64(len(candidates))], nil
}
