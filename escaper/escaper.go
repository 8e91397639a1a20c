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

// Package escaper is the pluggable "next hop" abstraction: a
// terminal escaper sets up the actual outbound connection (direct dial,
// parent HTTP(S) proxy, parent SOCKS5(s) proxy); a route escaper is
// transparent, recursively resolving to a terminal escaper via
// CheckOutNextEscaper while annotating the AuditContext at each hop.
package escaper

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/sabouaram/netproxy/addr"
	liberr "github.com/sabouaram/netproxy/errors"
)

// Capability is a bitmask of the operations an escaper may
// advertise; callers must check before invoking the matching method.
type Capability uint16

const (
	CapTCPSetupConnection Capability = 1 << iota
	CapTLSSetupConnection
	CapUDPSetupConnection
	CapHTTPForwardNewConnection
	CapHTTPSForwardNewConnection
	CapFTPNewConnection
)

func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// MaxRouteHops bounds the `_check_out_next_escaper` recursion so a
// misconfigured route cycle fails fast instead of stack-overflowing.
const MaxRouteHops = 16

// AuditContext is threaded through every `_check_out_next_escaper` hop,
// recording the path taken for logging and loop detection: a route
// escaper is transparent, updating the audit context at each hop.
type AuditContext struct {
	mu   sync.Mutex
	hops []string
}

func NewAuditContext() *AuditContext {
	return &AuditContext{}
}

// RecordHop appends name to the hop trail, failing once MaxRouteHops is
// exceeded so a route cycle cannot spin forever.
func (a *AuditContext) RecordHop(name string) liberr.Error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.hops) >= MaxRouteHops {
		return ErrorRouteLoop.Error(nil)
	}
	a.hops = append(a.hops, name)
	return nil
}

// Hops returns a copy of the path of escaper names visited so far, in
// order, from the entry escaper to the last hop recorded.
func (a *AuditContext) Hops() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.hops))
	copy(out, a.hops)
	return out
}

// Request carries everything a terminal escaper needs to set up one
// outbound connection.
type Request struct {
	Upstream   addr.UpstreamAddr
	ClientAddr net.Addr
	Username   string
	UserAgent  string
	BindIP     net.IP
}

// Base is embedded by every terminal and route escaper implementation so
// that unsupported operations fail uniformly with ErrorCapabilityMissing
// instead of requiring every variant to hand-write six stub methods.
type Base struct{}

func (Base) TCPSetupConnection(context.Context, Request, *AuditContext) (net.Conn, liberr.Error) {
	return nil, ErrorCapabilityMissing.Error(nil)
}

func (Base) TLSSetupConnection(context.Context, Request, *AuditContext, *tls.Config) (net.Conn, liberr.Error) {
	return nil, ErrorCapabilityMissing.Error(nil)
}

func (Base) UDPSetupConnection(context.Context, Request, *AuditContext) (net.PacketConn, liberr.Error) {
	return nil, ErrorCapabilityMissing.Error(nil)
}

func (Base) HTTPForwardNewConnection(context.Context, Request, *AuditContext) (net.Conn, liberr.Error) {
	return nil, ErrorCapabilityMissing.Error(nil)
}

func (Base) HTTPSForwardNewConnection(context.Context, Request, *AuditContext, *tls.Config) (net.Conn, liberr.Error) {
	return nil, ErrorCapabilityMissing.Error(nil)
}

func (Base) FTPNewConnection(context.Context, Request, *AuditContext) (net.Conn, liberr.Error) {
	return nil, ErrorCapabilityMissing.Error(nil)
}

func (Base) LocalHTTPForwardCapability() bool {
	return false
}

// Escaper is the full capability surface. Terminal variants
// (direct, proxyhttp, proxysocks) embed Base and override the methods their
// Capabilities() advertise; route variants additionally implement
// CheckOutNextEscaper to resolve to a terminal escaper.
type Escaper interface {
	Name() string
	Capabilities() Capability

	TCPSetupConnection(ctx context.Context, req Request, audit *AuditContext) (net.Conn, liberr.Error)
	TLSSetupConnection(ctx context.Context, req Request, audit *AuditContext, cfg *tls.Config) (net.Conn, liberr.Error)
	UDPSetupConnection(ctx context.Context, req Request, audit *AuditContext) (net.PacketConn, liberr.Error)
	HTTPForwardNewConnection(ctx context.Context, req Request, audit *AuditContext) (net.Conn, liberr.Error)
	HTTPSForwardNewConnection(ctx context.Context, req Request, audit *AuditContext, cfg *tls.Config) (net.Conn, liberr.Error)
	FTPNewConnection(ctx context.Context, req Request, audit *AuditContext) (net.Conn, liberr.Error)

	// CheckOutNextEscaper resolves the escaper that will actually handle
	// the connection for req. Terminal escapers return themselves; route
	// escapers resolve their policy and recurse into the chosen member.
	CheckOutNextEscaper(ctx context.Context, req Request, audit *AuditContext) (Escaper, liberr.Error)

	// LocalHTTPForwardCapability reports whether this escaper can satisfy
	// an HTTP forward request without leaving the local process (used by
	// the task state machine to skip an unnecessary extra hop of
	// indirection for plain HTTP when a parent proxy already does it).
	LocalHTTPForwardCapability() bool
}

// CheckOutTerminal walks CheckOutNextEscaper until it reaches a fixed
// point (an escaper that returns itself), recording every hop on audit and
// failing with ErrorRouteLoop if MaxRouteHops is exceeded before one is
// found. This is the shared implementation of the "resolves
// recursively until a terminal escaper is reached" behavior, usable by any
// caller (task state machine, HTTP forward context) that just wants the
// final dial-capable escaper.
func CheckOutTerminal(ctx context.Context, e Escaper, req Request, audit *AuditContext) (Escaper, liberr.Error) {
	cur := e
	for i := 0; i < MaxRouteHops; i++ {
		if le := audit.RecordHop(cur.Name()); le != nil {
			return nil, le
		}

		next, le := cur.CheckOutNextEscaper(ctx, req, audit)
		if le != nil {
			return nil, le
		}
		if next.Name() == cur.Name() {
			return next, nil
		}
		cur = next
	}
	return nil, ErrorRouteLoop.Error(nil)
}

// Registry is a name-keyed directory of live escapers, used by route
// escapers to resolve a member name to its Escaper at connect time (so
// config reload can swap an escaper's backing member without forcing every
// route that references it to be rebuilt).
type Registry struct {
	mu sync.RWMutex
	m  map[string]Escaper
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]Escaper)}
}

func (r *Registry) Register(e Escaper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[e.Name()] = e
}

func (r *Registry) Get(name string) (Escaper, liberr.Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.m[name]
	if !ok {
		return nil, ErrorNoNextEscaper.Error(fmt.Errorf("no escaper registered under name %q", name))
	}
	return e, nil
}
