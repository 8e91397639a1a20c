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

// Package ftpget implements the FTP terminal escaper variant:
// a direct-dial escaper exposing only ftp_new_connection (plus the raw
// tcp/tls setup the control channel needs). It establishes the transport
// connection to the FTP server's control port; the FTP command/data
// conversation itself (RETR/STOR/PASV/EPSV, directory walking, ...) is an
// external collaborator's concern, same as the rest of the library surface
// this module treats as out of scope.
package ftpget

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

// TLSMode mirrors the implicit/explicit FTPS distinction the ftp control
// library exposes on its dial options.
type TLSMode uint8

const (
	TLSNone TLSMode = iota
	TLSImplicit
	TLSExplicit
)

// Config configures an FtpGet escaper.
type Config struct {
	Name        string
	Resolver    *resolver.Resolver
	Pool        *pool.Pool[string, net.Conn]
	Stats       *stats.Escaper
	BindIPv4    net.IP
	BindIPv6    net.IP
	TLSMode     TLSMode
	TLSConfig   *tls.Config
	DialTimeout time.Duration
}

// FtpGet is the ftp-new-connection terminal escaper: it resolves the
// control-port host through the shared resolver facade and dials it
// directly, optionally wrapping the connection in an implicit TLS
// handshake (explicit FTPS upgrades happen above this layer, over the
// plain connection this escaper returns).
type FtpGet struct {
	escaper.Base
	cfg Config
}

func New(cfg Config) *FtpGet {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	return &FtpGet{cfg: cfg}
}

func (f *FtpGet) Name() string { return f.cfg.Name }

func (f *FtpGet) Capabilities() escaper.Capability {
	return escaper.CapTCPSetupConnection |
		escaper.CapTLSSetupConnection |
		escaper.CapFTPNewConnection
}

func (f *FtpGet) CheckOutNextEscaper(_ context.Context, _ escaper.Request, _ *escaper.AuditContext) (escaper.Escaper, liberr.Error) {
	return f, nil
}

func (f *FtpGet) TCPSetupConnection(ctx context.Context, req escaper.Request, _ *escaper.AuditContext) (net.Conn, liberr.Error) {
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

func (f *FtpGet) TLSSetupConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext, cfg *tls.Config) (net.Conn, liberr.Error) {
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

// FTPNewConnection dials the control port directly, or under an implicit
// TLS handshake when the escaper is configured for implicit FTPS (the
// default FTPS port convention, distinct from the plain-then-AUTH-TLS
// explicit mode which upgrades the connection this method returns).
func (f *FtpGet) FTPNewConnection(ctx context.Context, req escaper.Request, audit *escaper.AuditContext) (net.Conn, liberr.Error) {
	if f.cfg.TLSMode == TLSImplicit && f.cfg.TLSConfig != nil {
		return f.TLSSetupConnection(ctx, req, audit, f.cfg.TLSConfig)
	}
	return f.TCPSetupConnection(ctx, req, audit)
}

func (f *FtpGet) dialBuilder(req escaper.Request) pool.Builder[net.Conn] {
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

func (f *FtpGet) pickAddress(ctx context.Context, req escaper.Request) (net.IP, liberr.Error) {
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

func (f *FtpGet) bindFor(ip net.IP) net.IP {
	if ip.To4() != nil {
		return f.cfg.BindIPv4
	}
	return f.cfg.BindIPv6
}
