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

package certagent

import (
	"context"
	"net"
	"time"

	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"

	liberr "github.com/sabouaram/netproxy/errors"
)

// GenerateRequest is the decoded form of a client's wireRequest, handed to
// a Generator so cmd/certgend's signing logic never touches the msgpack
// wire format directly.
type GenerateRequest struct {
	Host            string
	Service         string
	Usage           string
	UpstreamCertDER []byte
}

// GenerateResult is what a Generator hands back for Agent to encode as a
// wireResponse.
type GenerateResult struct {
	Chain [][]byte
	Key   []byte
	TTL   time.Duration
}

// Generator mints (or fetches from its own cache) the fake certificate
// chain and key for one request. Implemented by cmd/certgend.
type Generator func(ctx context.Context, req GenerateRequest) (GenerateResult, error)

// Agent is the cert-agent generator's UDP listener: the server
// counterpart to Client, sharing the same wireRequest/wireResponse
// framing so the two can never drift apart.
type Agent struct {
	conn *net.UDPConn
	gen  Generator
	log  func() liblog.Logger
}

// NewAgent binds addr and returns an Agent that answers every request
// with gen's result. log may be nil.
func NewAgent(addr *net.UDPAddr, gen Generator, log func() liblog.Logger) (*Agent, liberr.Error) {
	conn, e := net.ListenUDP("udp", addr)
	if e != nil {
		return nil, ErrorListenFailed.Error(e)
	}
	return &Agent{conn: conn, gen: gen, log: log}, nil
}

// LocalAddr reports the bound address, useful when addr's port was 0.
func (a *Agent) LocalAddr() *net.UDPAddr {
	return a.conn.LocalAddr().(*net.UDPAddr)
}

// Serve answers requests until ctx is cancelled or the socket is closed.
// Each datagram is handled synchronously: the generator is expected to be
// fast (cache-backed) or to apply its own internal coalescing, matching
// how Client's single-flight group coalesces the client side.
func (a *Agent) Serve(ctx context.Context) liberr.Error {
	go func() {
		<-ctx.Done()
		_ = a.conn.Close()
	}()

	buf := make([]byte, 65536)
	for {
		n, from, e := a.conn.ReadFromUDP(buf)
		if e != nil {
			if ctx.Err() != nil {
				return nil
			}
			return ErrorDecodeFailed.Error(e)
		}

		req, e := decodeRequest(buf[:n])
		if e != nil {
			a.logWarn("cert-agent: dropping malformed request", e, from)
			continue
		}

		a.handle(ctx, req, from)
	}
}

func (a *Agent) handle(ctx context.Context, req wireRequest, from *net.UDPAddr) {
	res, err := a.gen(ctx, GenerateRequest{
		Host:            req.Host,
		Service:         req.Service,
		Usage:           req.Usage,
		UpstreamCertDER: req.CertDER,
	})
	if err != nil {
		a.logWarn("cert-agent: generation failed", ErrorGenerateFailed.Error(err), from)
		return
	}

	resp := wireResponse{Chain: res.Chain, Key: res.Key, TTL: uint32(res.TTL / time.Second)}
	data, e := encodeResponse(resp)
	if e != nil {
		a.logWarn("cert-agent: failed to encode response", ErrorDecodeFailed.Error(e), from)
		return
	}

	_, _ = a.conn.WriteToUDP(data, from)
}

func (a *Agent) logWarn(message string, err liberr.Error, from *net.UDPAddr) {
	if a.log == nil {
		return
	}
	if l := a.log(); l != nil {
		l.Entry(loglvl.WarnLevel, message).FieldAdd("remote", from.String()).ErrorAdd(true, err).Log()
	}
}

// Close tears down the UDP listener.
func (a *Agent) Close() error {
	return a.conn.Close()
}
