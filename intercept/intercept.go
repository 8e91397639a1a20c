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

// Package intercept implements the transparent TLS interceptor of spec
// §4.7: peek the client's ClientHello, complete a real handshake with the
// upstream server, fetch a mimicked certificate for the negotiated domain
// from the cert-agent cache, then complete a second handshake with the
// client using that mimicked certificate so both legs can be relayed in
// cleartext from the proxy's point of view.
package intercept

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"

	"github.com/sabouaram/netproxy/certagent"
	"github.com/sabouaram/netproxy/certificates/tlsmaterial"
	"github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/inspect/tlsinspect"
)

// Config bounds one interception attempt's timeouts and cert-agent usage
// classification.
type Config struct {
	HandshakeTimeout time.Duration // upstream handshake
	AcceptTimeout    time.Duration // client-facing handshake
	MaxMessageSize   uint32        // ClientHello coalescer bound
	Service          certagent.Service
	RootCAs          *x509.CertPool // nil uses the system pool

	// TicketKeys, when set, rotates the session-ticket encryption keys the
	// client-facing leg offers, instead of letting crypto/tls manage an
	// internal, unrotated key.
	TicketKeys *tlsmaterial.RollingTicketKeys
	// ServerSessionStore, when set, backs the client-facing leg's stateful
	// session-ticket storage (Config.WrapSession/UnwrapSession).
	ServerSessionStore *tlsmaterial.SessionCache
	// UpstreamSessionCache, when set, lets the upstream-facing leg resume a
	// real origin's TLS session across interceptions of the same domain.
	UpstreamSessionCache *tlsmaterial.SessionCache
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = 10 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = tlsinspect.DefaultMaxMessageSize
	}
	return c
}

// Result is the pair of cleartext-relative connections produced by a
// successful interception: Client wraps the original accepted connection
// (now TLS-terminated, fake-cert-served), Upstream wraps the dialed
// connection (now TLS-terminated against the real server).
type Result struct {
	Client          *tls.Conn
	Upstream        *tls.Conn
	ServerName      string
	NegotiatedALPN  string
	UpstreamCertDER []byte
	IsTLCP          bool
}

// CertSource is the subset of certagent.Client this package depends on,
// narrowed to an interface so tests can supply a fake cert source without
// standing up a real UDP cert-agent backend.
type CertSource interface {
	Fetch(ctx context.Context, key certagent.FingerprintKey, upstreamCertDER []byte) (*certagent.FakeCertPair, errors.Error)
}

// Interceptor drives the peek → upstream-handshake → fake-cert-fetch →
// client-handshake sequence.
type Interceptor struct {
	cfg   Config
	certs CertSource
}

func New(cfg Config, certs CertSource) *Interceptor {
	return &Interceptor{cfg: cfg.withDefaults(), certs: certs}
}

// peekClientHello reads from conn, feeding a tlsinspect.Coalescer, until a
// full ClientHello has been reconstructed, returning it alongside every
// byte read so far (so the caller can still present those bytes to the
// eventual tls.Server handshake via a prefixed reader).
func peekClientHello(conn net.Conn, maxMessageSize uint32) ([]byte, *tlsinspect.ClientHello, errors.Error) {
	coalescer := tlsinspect.NewCoalescer(maxMessageSize)
	var raw []byte
	buf := make([]byte, 4096)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			raw = append(raw, buf[:n]...)
			if _, e := coalescer.CoalesceFragment(buf[:n]); e != nil {
				return raw, nil, e
			}
			if ch, e := coalescer.ParseClientHello(); e != nil {
				return raw, nil, e
			} else if ch != nil {
				return raw, ch, nil
			}
		}
		if err != nil {
			return raw, nil, ErrorClientHandshakeTimeout.Error(err)
		}
	}
}

// prefixedConn replays previously-read bytes before continuing to read
// from the underlying connection, letting crypto/tls re-parse a
// ClientHello this package has already peeked at for SNI/ALPN.
type prefixedConn struct {
	net.Conn
	prefix []byte
}

func (p *prefixedConn) Read(b []byte) (int, error) {
	if len(p.prefix) > 0 {
		n := copy(b, p.prefix)
		p.prefix = p.prefix[n:]
		return n, nil
	}
	return p.Conn.Read(b)
}

// Intercept runs the full sequence over an already-accepted client
// connection, dialing upstreamAddr for the real TLS leg.
func (in *Interceptor) Intercept(ctx context.Context, clientConn net.Conn, upstreamAddr string) (*Result, errors.Error) {
	if in.cfg.AcceptTimeout > 0 {
		_ = clientConn.SetReadDeadline(time.Now().Add(in.cfg.AcceptTimeout))
	}
	raw, hello, e := peekClientHello(clientConn, in.cfg.MaxMessageSize)
	_ = clientConn.SetReadDeadline(time.Time{})
	if e != nil {
		return nil, e
	}

	serverName, _, _ := hello.ServerName()
	alpn, _ := hello.ALPNProtocols()

	upstreamConn, err := net.DialTimeout("tcp", upstreamAddr, in.cfg.HandshakeTimeout)
	if err != nil {
		return nil, ErrorUpstreamPrepareFailed.Error(err)
	}

	upstreamTLSCfg := &tls.Config{
		ServerName: serverName,
		NextProtos: alpn,
		RootCAs:    in.cfg.RootCAs,
	}
	if in.cfg.UpstreamSessionCache != nil {
		upstreamTLSCfg.ClientSessionCache = in.cfg.UpstreamSessionCache
	}

	upstreamDeadline := time.Now().Add(in.cfg.HandshakeTimeout)
	_ = upstreamConn.SetDeadline(upstreamDeadline)
	upstreamTLS := tls.Client(upstreamConn, upstreamTLSCfg)
	if err := upstreamTLS.HandshakeContext(ctx); err != nil {
		_ = upstreamConn.Close()
		return nil, ErrorUpstreamHandshakeTimeout.Error(err)
	}
	_ = upstreamConn.SetDeadline(time.Time{})

	state := upstreamTLS.ConnectionState()
	var upstreamCertDER []byte
	if len(state.PeerCertificates) > 0 {
		upstreamCertDER = state.PeerCertificates[0].Raw
	}

	domain := serverName
	if domain == "" {
		host, _, splitErr := net.SplitHostPort(upstreamAddr)
		if splitErr == nil {
			domain = host
		} else {
			domain = upstreamAddr
		}
	}

	var certs []tls.Certificate
	if hello.IsTLCP() {
		certs, e = in.fetchTLCPCertPair(ctx, domain, upstreamCertDER)
	} else {
		var cert tls.Certificate
		cert, e = in.fetchSingleCert(ctx, certagent.UsageTLSServer, domain, upstreamCertDER)
		certs = []tls.Certificate{cert}
	}
	if e != nil {
		_ = upstreamTLS.Close()
		return nil, e
	}

	clientTLSCfg := &tls.Config{
		Certificates: certs,
	}
	if state.NegotiatedProtocol != "" {
		clientTLSCfg.NextProtos = []string{state.NegotiatedProtocol}
	}
	if in.cfg.TicketKeys != nil {
		clientTLSCfg.SetSessionTicketKeys(in.cfg.TicketKeys.Keys())
	}
	if in.cfg.ServerSessionStore != nil {
		store := in.cfg.ServerSessionStore
		clientTLSCfg.WrapSession = func(_ tls.ConnectionState, ss *tls.SessionState) ([]byte, error) {
			data, err := ss.Bytes()
			if err != nil {
				return nil, err
			}
			identity := make([]byte, 16)
			if _, err := rand.Read(identity); err != nil {
				return nil, err
			}
			store.PutBlob(string(identity), data)
			return identity, nil
		}
		clientTLSCfg.UnwrapSession = func(identity []byte, _ tls.ConnectionState) (*tls.SessionState, error) {
			data, ok := store.GetBlob(string(identity))
			if !ok {
				return nil, nil
			}
			return tls.ParseSessionState(data)
		}
	}

	wrapped := &prefixedConn{Conn: clientConn, prefix: raw}
	clientTLS := tls.Server(wrapped, clientTLSCfg)

	acceptCtx := ctx
	var cancel context.CancelFunc
	if in.cfg.AcceptTimeout > 0 {
		acceptCtx, cancel = context.WithTimeout(ctx, in.cfg.AcceptTimeout)
		defer cancel()
	}
	if err := clientTLS.HandshakeContext(acceptCtx); err != nil {
		_ = upstreamTLS.Close()
		return nil, ErrorClientHandshakeTimeout.Error(err)
	}

	return &Result{
		Client:          clientTLS,
		Upstream:        upstreamTLS,
		ServerName:      serverName,
		NegotiatedALPN:  state.NegotiatedProtocol,
		UpstreamCertDER: upstreamCertDER,
		IsTLCP:          hello.IsTLCP(),
	}, nil
}

// fetchSingleCert fetches one fake certificate for the given usage and
// converts it to a crypto/tls certificate.
func (in *Interceptor) fetchSingleCert(ctx context.Context, usage certagent.Usage, domain string, upstreamCertDER []byte) (tls.Certificate, errors.Error) {
	key := certagent.FingerprintKey{Service: in.cfg.Service, Usage: usage, Domain: domain}
	pair, ferr := in.certs.Fetch(ctx, key, upstreamCertDER)
	if ferr != nil || pair == nil {
		return tls.Certificate{}, ErrorNoFakeCertGenerated.Error(ferr)
	}
	cert, cerr := buildTLSCertificate(pair)
	if cerr != nil {
		return tls.Certificate{}, ErrorInternalServerError.Error(cerr)
	}
	return cert, nil
}

// fetchTLCPCertPair fetches the two certificates step 4 of a TLCP
// interception requires: a signing certificate (TlcpServerSignature) and a
// separate encryption certificate (TlcpServerEncryption). crypto/tls has no
// native TLCP cipher suite support, so both certificates are attached to the
// client-facing tls.Config as alternatives; the client picks the one whose
// key usage matches the key-exchange method it negotiates.
func (in *Interceptor) fetchTLCPCertPair(ctx context.Context, domain string, upstreamCertDER []byte) ([]tls.Certificate, errors.Error) {
	sign, e := in.fetchSingleCert(ctx, certagent.UsageTLCPSign, domain, upstreamCertDER)
	if e != nil {
		return nil, e
	}
	enc, e := in.fetchSingleCert(ctx, certagent.UsageTLCPEnc, domain, upstreamCertDER)
	if e != nil {
		return nil, e
	}
	return []tls.Certificate{sign, enc}, nil
}

// buildTLSCertificate turns a certagent.FakeCertPair (DER chain + DER
// private key) into a crypto/tls certificate ready to serve.
func buildTLSCertificate(pair *certagent.FakeCertPair) (tls.Certificate, error) {
	key, err := parsePrivateKeyDER(pair.Key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: pair.Chain,
		PrivateKey:  key,
	}, nil
}

func parsePrivateKeyDER(der []byte) (interface{}, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	return x509.ParseECPrivateKey(der)
}
