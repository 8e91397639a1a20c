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

// Package proxyhttp implements the proxy-http(s) escaper variant of spec
// §4.5: it forwards every connection request through a CONNECT (or,
// for plain-HTTP forwarding, an absolute-URI request line) to a parent
// HTTP(S) proxy, optionally over its own TLS leg and with operator-defined
// extra headers injected into the CONNECT request.
package proxyhttp

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	liberr "github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/escaper"
	"github.com/sabouaram/netproxy/pool"
	"github.com/sabouaram/netproxy/stats"
)

// Config configures a ProxyHTTP escaper.
type Config struct {
	Name          string
	ParentAddr    string // host:port of the parent proxy
	ParentTLS     *tls.Config
	ExtraHeaders  map[string]string
	Pool          *pool.Pool[string, net.Conn]
	Stats         *stats.Escaper
	DialTimeout   time.Duration
}

// ProxyHTTP is the terminal proxy-http(s) escaper.
type ProxyHTTP struct {
	escaper.Base
	cfg Config
}

func New(cfg Config) *ProxyHTTP {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &ProxyHTTP{cfg: cfg}
}

func (p *ProxyHTTP) Name() string { return p.cfg.Name }

func (p *ProxyHTTP) Capabilities() escaper.Capability {
	return escaper.CapTCPSetupConnection |
		escaper.CapTLSSetupConnection |
		escaper.CapHTTPForwardNewConnection |
		escaper.CapHTTPSForwardNewConnection
}

func (p *ProxyHTTP) LocalHTTPForwardCapability() bool { return false }

func (p *ProxyHTTP) CheckOutNextEscaper(_ context.Context, _ escaper.Request, _ *escaper.AuditContext) (escaper.Escaper, liberr.Error) {
	return p, nil
}

func (p *ProxyHTTP) TCPSetupConnection(ctx context.Context, req escaper.Request, _ *escaper.AuditContext) (net.Conn, liberr.Error) {
	conn, _, e := p.cfg.Pool.GetOrBuild(ctx, req.Upstream.String(), p.connectBuilder(req))
	if p.cfg.Stats != nil {
		p.cfg.Stats.ConnAttempt()
		if e == nil {
			p.cfg.Stats.ConnSuccess()
		}
	}
	if e != nil {
		return nil, ErrorParentDialFailed.Error(e)
	}
	return conn, nil
}

func (p *ProxyHTTP) TLSSetupConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext, cfg *tls.Config) (net.Conn, liberr.Error) {
	raw, e := p.TCPSetupConnection(ctx, req, audit)
	if e != nil {
		return nil, e
	}
	tlsConn := tls.Client(raw, cfg)
	if hsErr := tlsConn.HandshakeContext(ctx); hsErr != nil {
		_ = raw.Close()
		return nil, ErrorParentDialFailed.Error(hsErr)
	}
	return tlsConn, nil
}

func (p *ProxyHTTP) HTTPForwardNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext) (net.Conn, liberr.Error) {
	return p.TCPSetupConnection(ctx, req, audit)
}

func (p *ProxyHTTP) HTTPSForwardNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext, cfg *tls.Config) (net.Conn, liberr.Error) {
	return p.TLSSetupConnection(ctx, req, audit, cfg)
}

// connectBuilder dials the parent proxy (optionally under its own TLS leg),
// issues a CONNECT for req.Upstream carrying the configured extra headers,
// and hands back the tunnel once the parent answers 2xx.
func (p *ProxyHTTP) connectBuilder(req escaper.Request) pool.Builder[net.Conn] {
	return func(ctx context.Context) (net.Conn, error) {
		dialer := &net.Dialer{Timeout: p.cfg.DialTimeout}

		var conn net.Conn
		var err error
		if p.cfg.ParentTLS != nil {
			plain, dialErr := dialer.DialContext(ctx, "tcp", p.cfg.ParentAddr)
			if dialErr != nil {
				return nil, dialErr
			}
			tlsConn := tls.Client(plain, p.cfg.ParentTLS)
			if hsErr := tlsConn.HandshakeContext(ctx); hsErr != nil {
				_ = plain.Close()
				return nil, hsErr
			}
			conn = tlsConn
		} else {
			conn, err = dialer.DialContext(ctx, "tcp", p.cfg.ParentAddr)
			if err != nil {
				return nil, err
			}
		}

		if dl, ok := ctx.Deadline(); ok {
			_ = conn.SetDeadline(dl)
		}

		target := req.Upstream.String()
		hdr := make(http.Header)
		for k, v := range p.cfg.ExtraHeaders {
			hdr.Set(k, v)
		}

		connectReq := &http.Request{
			Method: http.MethodConnect,
			Host:   target,
			Header: hdr,
		}
		reqLine := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", target, target)
		if _, writeErr := conn.Write([]byte(reqLine)); writeErr != nil {
			_ = conn.Close()
			return nil, writeErr
		}
		if writeErr := hdr.Write(conn); writeErr != nil {
			_ = conn.Close()
			return nil, writeErr
		}
		if _, writeErr := conn.Write([]byte("\r\n")); writeErr != nil {
			_ = conn.Close()
			return nil, writeErr
		}

		resp, readErr := http.ReadResponse(bufio.NewReader(conn), connectReq)
		if readErr != nil {
			_ = conn.Close()
			return nil, readErr
		}
		_ = resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_ = conn.Close()
			return nil, fmt.Errorf("parent proxy rejected CONNECT: %s", resp.Status)
		}

		_ = conn.SetDeadline(time.Time{})
		return conn, nil
	}
}
