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

// Package proxysocks implements the proxy-socks5(s) escaper variant: it
// forwards connections through a RFC 1928/1929 handshake to
// a parent SOCKS5 proxy, including UDP-ASSOCIATE for the udp_setup
// capability.
package proxysocks

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	liberr "github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/escaper"
	"github.com/sabouaram/netproxy/pool"
	"github.com/sabouaram/netproxy/stats"
)

// Config configures a ProxySocks escaper.
type Config struct {
	Name        string
	ParentAddr  string
	ParentTLS   *tls.Config
	Username    string
	Password    string
	Pool        *pool.Pool[string, net.Conn]
	Stats       *stats.Escaper
	DialTimeout time.Duration
}

// ProxySocks is the terminal proxy-socks5(s) escaper.
type ProxySocks struct {
	escaper.Base
	cfg Config
}

func New(cfg Config) *ProxySocks {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &ProxySocks{cfg: cfg}
}

func (p *ProxySocks) Name() string { return p.cfg.Name }

func (p *ProxySocks) Capabilities() escaper.Capability {
	return escaper.CapTCPSetupConnection |
		escaper.CapTLSSetupConnection |
		escaper.CapUDPSetupConnection |
		escaper.CapHTTPForwardNewConnection |
		escaper.CapHTTPSForwardNewConnection
}

func (p *ProxySocks) LocalHTTPForwardCapability() bool { return false }

func (p *ProxySocks) CheckOutNextEscaper(_ context.Context, _ escaper.Request, _ *escaper.AuditContext) (escaper.Escaper, liberr.Error) {
	return p, nil
}

func (p *ProxySocks) dialParent(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: p.cfg.DialTimeout}
	conn, e := dialer.DialContext(ctx, "tcp", p.cfg.ParentAddr)
	if e != nil {
		return nil, e
	}

	if p.cfg.ParentTLS == nil {
		return conn, nil
	}

	tlsConn := tls.Client(conn, p.cfg.ParentTLS)
	if e := tlsConn.HandshakeContext(ctx); e != nil {
		_ = conn.Close()
		return nil, e
	}
	return tlsConn, nil
}

func (p *ProxySocks) TCPSetupConnection(ctx context.Context, req escaper.Request, _ *escaper.AuditContext) (net.Conn, liberr.Error) {
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

func (p *ProxySocks) TLSSetupConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext, cfg *tls.Config) (net.Conn, liberr.Error) {
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

func (p *ProxySocks) HTTPForwardNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext) (net.Conn, liberr.Error) {
	return p.TCPSetupConnection(ctx, req, audit)
}

func (p *ProxySocks) HTTPSForwardNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext, cfg *tls.Config) (net.Conn, liberr.Error) {
	return p.TLSSetupConnection(ctx, req, audit, cfg)
}

// connectBuilder dials the parent, completes the RFC 1928 method
// negotiation (plus RFC 1929 auth when credentials are configured), and
// issues a CONNECT request for req.Upstream.
func (p *ProxySocks) connectBuilder(req escaper.Request) pool.Builder[net.Conn] {
	return func(ctx context.Context) (net.Conn, error) {
		conn, e := p.dialParent(ctx)
		if e != nil {
			return nil, e
		}

		if dl, ok := ctx.Deadline(); ok {
			_ = conn.SetDeadline(dl)
		}

		if e := greet(conn, p.cfg.Username != ""); e != nil {
			_ = conn.Close()
			return nil, e
		}
		if p.cfg.Username != "" {
			if e := authenticate(conn, p.cfg.Username, p.cfg.Password); e != nil {
				_ = conn.Close()
				return nil, e
			}
		}
		if _, _, e := request(conn, cmdConnect, req.Upstream); e != nil {
			_ = conn.Close()
			return nil, e
		}

		_ = conn.SetDeadline(time.Time{})
		return conn, nil
	}
}

// UDPSetupConnection completes a UDP-ASSOCIATE handshake (RFC 1928 §7) and
// returns a net.PacketConn that encapsulates every datagram to/from
// req.Upstream with the required SOCKS5 UDP header. The control TCP
// connection returned by the handshake must be held open for the
// association's lifetime; it is closed by the returned PacketConn's Close.
func (p *ProxySocks) UDPSetupConnection(ctx context.Context, req escaper.Request, _ *escaper.AuditContext) (net.PacketConn, liberr.Error) {
	ctrl, e := p.dialParent(ctx)
	if e != nil {
		return nil, ErrorParentDialFailed.Error(e)
	}

	if e := greet(ctrl, p.cfg.Username != ""); e != nil {
		_ = ctrl.Close()
		return nil, ErrorParentDialFailed.Error(e)
	}
	if p.cfg.Username != "" {
		if e := authenticate(ctrl, p.cfg.Username, p.cfg.Password); e != nil {
			_ = ctrl.Close()
			return nil, ErrorAuthRejected.Error(e)
		}
	}

	relayIP, relayPort, e := request(ctrl, cmdUDPAssociate, req.Upstream)
	if e != nil {
		_ = ctrl.Close()
		return nil, ErrorRequestRejected.Error(e)
	}

	local, e := net.ListenUDP("udp", &net.UDPAddr{})
	if e != nil {
		_ = ctrl.Close()
		return nil, ErrorParentDialFailed.Error(e)
	}

	return &udpAssociateConn{
		udp:     local,
		ctrl:    ctrl,
		relay:   &net.UDPAddr{IP: relayIP, Port: int(relayPort)},
		fixedTo: req.Upstream,
	}, nil
}
