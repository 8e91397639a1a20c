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

package socks5

import (
	"context"
	"net"
	"sync"

	"github.com/sabouaram/netproxy/addr"
	liberr "github.com/sabouaram/netproxy/errors"
)

// UDPRelay runs one RFC 1928 §7 UDP-ASSOCIATE session: it owns a local
// UDP socket the client sends datagrams to (each one prefixed with the
// RFC 1928 header naming the real destination) and forwards the
// payload to that destination from a second, per-destination socket,
// relaying replies back the same way with the header restored. The
// association lives as long as ctrl, the TCP control connection the
// client opened the UDP-ASSOCIATE request on, stays open; closing ctrl
// or cancelling ctx tears the whole relay down.
type UDPRelay struct {
	listener *net.UDPConn
	ctrl     net.Conn

	mu      sync.Mutex
	client  *net.UDPAddr
	streams map[string]*net.UDPConn
}

// NewUDPRelay opens a local UDP socket (bindAddr may have a zero IP and
// port to let the kernel choose one) and returns a relay bound to it
// and to ctrl, the association's control connection.
func NewUDPRelay(bindAddr *net.UDPAddr, ctrl net.Conn) (*UDPRelay, liberr.Error) {
	conn, e := net.ListenUDP("udp", bindAddr)
	if e != nil {
		return nil, ErrorReplyFailed.Error(e)
	}
	return &UDPRelay{listener: conn, ctrl: ctrl, streams: map[string]*net.UDPConn{}}, nil
}

// LocalAddr is the bound address to report back to the client as
// BND.ADDR/BND.PORT in the UDP-ASSOCIATE reply.
func (u *UDPRelay) LocalAddr() *net.UDPAddr {
	return u.listener.LocalAddr().(*net.UDPAddr)
}

// Serve relays datagrams until ctx is cancelled or the control
// connection closes. It is meant to run in its own goroutine, started
// right after the UDP-ASSOCIATE reply has been written.
func (u *UDPRelay) Serve(ctx context.Context) liberr.Error {
	defer u.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 1)
		_, _ = u.ctrl.Read(buf)
	}()

	errCh := make(chan liberr.Error, 1)
	go func() { errCh <- u.readFromClient() }()

	select {
	case <-ctx.Done():
		return nil
	case <-done:
		return nil
	case err := <-errCh:
		return err
	}
}

func (u *UDPRelay) readFromClient() liberr.Error {
	buf := make([]byte, 65536)
	for {
		n, from, e := u.listener.ReadFromUDP(buf)
		if e != nil {
			return ErrorUDPDatagramMalformed.Error(e)
		}

		payload, target, perr := decodeUDPHeader(buf[:n])
		if perr != nil {
			continue
		}

		u.mu.Lock()
		u.client = from
		u.mu.Unlock()

		go u.forwardToUpstream(target, payload)
	}
}

func (u *UDPRelay) forwardToUpstream(target addr.UpstreamAddr, payload []byte) {
	key := target.String()

	u.mu.Lock()
	stream, ok := u.streams[key]
	u.mu.Unlock()

	if !ok {
		upAddr, e := net.ResolveUDPAddr("udp", target.String())
		if e != nil {
			return
		}
		stream, e = net.DialUDP("udp", nil, upAddr)
		if e != nil {
			return
		}

		u.mu.Lock()
		u.streams[key] = stream
		u.mu.Unlock()

		go u.readFromUpstream(target, stream)
	}

	_, _ = stream.Write(payload)
}

func (u *UDPRelay) readFromUpstream(target addr.UpstreamAddr, stream *net.UDPConn) {
	buf := make([]byte, 65536)
	for {
		n, e := stream.Read(buf)
		if e != nil {
			return
		}

		u.mu.Lock()
		to := u.client
		u.mu.Unlock()
		if to == nil {
			continue
		}

		header, herr := encodeUDPHeader(target)
		if herr != nil {
			continue
		}
		datagram := append(header, buf[:n]...)
		_, _ = u.listener.WriteToUDP(datagram, to)
	}
}

// Close tears down the local socket and every per-destination stream
// opened during the session.
func (u *UDPRelay) Close() error {
	u.mu.Lock()
	streams := u.streams
	u.streams = map[string]*net.UDPConn{}
	u.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}
	return u.listener.Close()
}
