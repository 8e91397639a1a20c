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

package proxysocks

import (
	"fmt"
	"net"
	"time"

	"github.com/sabouaram/netproxy/addr"
)

// udpAssociateConn wraps the local UDP socket opened for a SOCKS5
// UDP-ASSOCIATE session: every outgoing datagram is prefixed with the
// RFC 1928 UDP request header naming the real destination, and every
// incoming datagram has that header stripped before being handed back.
// The control TCP connection (held open for the lifetime of the
// association, per RFC 1928) is closed alongside the UDP socket.
type udpAssociateConn struct {
	udp     *net.UDPConn
	ctrl    net.Conn
	relay   *net.UDPAddr
	fixedTo addr.UpstreamAddr
}

func (u *udpAssociateConn) ReadFrom(p []byte) (int, net.Addr, error) {
	buf := make([]byte, 65536)
	n, _, e := u.udp.ReadFromUDP(buf)
	if e != nil {
		return 0, nil, e
	}

	payload, _, e := decodeUDPHeader(buf[:n])
	if e != nil {
		return 0, nil, e
	}
	copy(p, payload)
	return len(payload), u.relay, nil
}

func (u *udpAssociateConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	header, e := encodeUDPHeader(u.fixedTo)
	if e != nil {
		return 0, e
	}
	datagram := append(header, p...)
	_, e = u.udp.WriteToUDP(datagram, u.relay)
	if e != nil {
		return 0, e
	}
	return len(p), nil
}

func (u *udpAssociateConn) Close() error {
	_ = u.ctrl.Close()
	return u.udp.Close()
}

func (u *udpAssociateConn) LocalAddr() net.Addr                { return u.udp.LocalAddr() }
func (u *udpAssociateConn) SetDeadline(t time.Time) error      { return u.udp.SetDeadline(t) }
func (u *udpAssociateConn) SetReadDeadline(t time.Time) error   { return u.udp.SetReadDeadline(t) }
func (u *udpAssociateConn) SetWriteDeadline(t time.Time) error  { return u.udp.SetWriteDeadline(t) }

// encodeUDPHeader builds the RFC 1928 §7 UDP request header: RSV(2)=0,
// FRAG(1)=0 (fragmentation unsupported, the common case),
// ATYP+DST.ADDR+DST.PORT.
func encodeUDPHeader(up addr.UpstreamAddr) ([]byte, error) {
	body, e := encodeAddress(up)
	if e != nil {
		return nil, e
	}
	return append([]byte{0x00, 0x00, 0x00}, body...), nil
}

func decodeUDPHeader(datagram []byte) ([]byte, addr.UpstreamAddr, error) {
	if len(datagram) < 4 {
		return nil, addr.UpstreamAddr{}, fmt.Errorf("udp associate datagram too short")
	}
	if datagram[2] != 0x00 {
		return nil, addr.UpstreamAddr{}, fmt.Errorf("fragmented udp associate datagrams are not supported")
	}

	rest := datagram[3:]
	atyp := rest[0]
	switch atyp {
	case atypIPv4:
		if len(rest) < 1+4+2 {
			return nil, addr.UpstreamAddr{}, fmt.Errorf("truncated ipv4 udp associate header")
		}
		return rest[1+4+2:], addr.UpstreamAddr{}, nil
	case atypIPv6:
		if len(rest) < 1+16+2 {
			return nil, addr.UpstreamAddr{}, fmt.Errorf("truncated ipv6 udp associate header")
		}
		return rest[1+16+2:], addr.UpstreamAddr{}, nil
	case atypDomain:
		if len(rest) < 2 {
			return nil, addr.UpstreamAddr{}, fmt.Errorf("truncated domain udp associate header")
		}
		n := int(rest[1])
		if len(rest) < 2+n+2 {
			return nil, addr.UpstreamAddr{}, fmt.Errorf("truncated domain udp associate header")
		}
		return rest[2+n+2:], addr.UpstreamAddr{}, nil
	default:
		return nil, addr.UpstreamAddr{}, fmt.Errorf("unsupported atyp %d in udp associate datagram", atyp)
	}
}
