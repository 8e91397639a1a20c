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

// Package socks5 implements the SOCKS5 (RFC 1928/1929) server role: method
// negotiation, optional username/password authentication, CONNECT and
// UDP-ASSOCIATE request parsing, reply encoding, and the UDP-ASSOCIATE
// datagram relay. This is the listener-facing counterpart to the
// proxy-socks5(s) escaper, which speaks the same wire format as a client
// to a parent proxy.
package socks5

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/sabouaram/netproxy/addr"
)

const (
	version5 = 0x05

	MethodNoAuth       = 0x00
	MethodUserPass     = 0x02
	MethodNoAcceptable = 0xFF

	CmdConnect      = 0x01
	CmdBind         = 0x02
	CmdUDPAssociate = 0x03

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	authVersion1 = 0x01
	authSuccess  = 0x00
	authFailure  = 0x01
)

// ReplyCode is a RFC 1928 §6 REP field value.
type ReplyCode byte

const (
	ReplySucceeded ReplyCode = 0x00
	ReplyGeneralFailure ReplyCode = 0x01
	ReplyNotAllowed     ReplyCode = 0x02
	ReplyNetworkUnreachable ReplyCode = 0x03
	ReplyHostUnreachable    ReplyCode = 0x04
	ReplyConnectionRefused  ReplyCode = 0x05
	ReplyTTLExpired         ReplyCode = 0x06
	ReplyCommandNotSupported ReplyCode = 0x07
	ReplyAddressTypeNotSupported ReplyCode = 0x08
)

// readGreeting reads the RFC 1928 method-selection request: VER, NMETHODS,
// METHODS[NMETHODS].
func readGreeting(r io.Reader) ([]byte, error) {
	head := make([]byte, 2)
	if _, e := io.ReadFull(r, head); e != nil {
		return nil, e
	}
	if head[0] != version5 {
		return nil, ErrorUnsupportedVersion.Error(nil)
	}
	methods := make([]byte, head[1])
	if _, e := io.ReadFull(r, methods); e != nil {
		return nil, e
	}
	return methods, nil
}

// writeMethodSelection writes the server's chosen method, or
// MethodNoAcceptable to reject the client.
func writeMethodSelection(w io.Writer, method byte) error {
	_, e := w.Write([]byte{version5, method})
	return e
}

// readAuth reads the RFC 1929 username/password subnegotiation request.
func readAuth(r io.Reader) (user, pass string, err error) {
	head := make([]byte, 2)
	if _, e := io.ReadFull(r, head); e != nil {
		return "", "", e
	}
	if head[0] != authVersion1 {
		return "", "", ErrorAuthRejected.Error(nil)
	}
	userBuf := make([]byte, head[1])
	if _, e := io.ReadFull(r, userBuf); e != nil {
		return "", "", e
	}
	passLen := make([]byte, 1)
	if _, e := io.ReadFull(r, passLen); e != nil {
		return "", "", e
	}
	passBuf := make([]byte, passLen[0])
	if _, e := io.ReadFull(r, passBuf); e != nil {
		return "", "", e
	}
	return string(userBuf), string(passBuf), nil
}

func writeAuthResult(w io.Writer, ok bool) error {
	status := byte(authSuccess)
	if !ok {
		status = authFailure
	}
	_, e := w.Write([]byte{authVersion1, status})
	return e
}

// readRequest reads the RFC 1928 §4 request: VER, CMD, RSV, ATYP,
// DST.ADDR, DST.PORT.
func readRequest(r io.Reader) (cmd byte, target addr.UpstreamAddr, err error) {
	head := make([]byte, 4)
	if _, e := io.ReadFull(r, head); e != nil {
		return 0, addr.UpstreamAddr{}, e
	}
	if head[0] != version5 {
		return 0, addr.UpstreamAddr{}, ErrorUnsupportedVersion.Error(nil)
	}

	host, e := readAddress(r, head[3])
	if e != nil {
		return 0, addr.UpstreamAddr{}, e
	}

	portBuf := make([]byte, 2)
	if _, e := io.ReadFull(r, portBuf); e != nil {
		return 0, addr.UpstreamAddr{}, e
	}

	return head[1], addr.New(host, binary.BigEndian.Uint16(portBuf)), nil
}

func readAddress(r io.Reader, atyp byte) (addr.Host, error) {
	switch atyp {
	case atypIPv4:
		buf := make([]byte, 4)
		if _, e := io.ReadFull(r, buf); e != nil {
			return addr.Host{}, e
		}
		return addr.NewHostIP(net.IP(buf)), nil
	case atypIPv6:
		buf := make([]byte, 16)
		if _, e := io.ReadFull(r, buf); e != nil {
			return addr.Host{}, e
		}
		return addr.NewHostIP(net.IP(buf)), nil
	case atypDomain:
		lenBuf := make([]byte, 1)
		if _, e := io.ReadFull(r, lenBuf); e != nil {
			return addr.Host{}, e
		}
		nameBuf := make([]byte, lenBuf[0])
		if _, e := io.ReadFull(r, nameBuf); e != nil {
			return addr.Host{}, e
		}
		return addr.NewHostDomain(string(nameBuf)), nil
	default:
		return addr.Host{}, ErrorUnsupportedAddressType.Error(nil)
	}
}

// writeReply writes the RFC 1928 §6 reply: VER, REP, RSV, ATYP,
// BND.ADDR, BND.PORT. bind may be the zero value, in which case
// 0.0.0.0:0 is sent (the common case for a reply that carries no
// meaningful bind address).
func writeReply(w io.Writer, code ReplyCode, bind addr.UpstreamAddr) error {
	payload, e := encodeAddress(bind)
	if e != nil {
		payload, _ = encodeAddress(addr.New(addr.NewHostIP(net.IPv4zero), 0))
	}
	buf := append([]byte{version5, byte(code), 0x00}, payload...)
	_, e = w.Write(buf)
	return e
}

// encodeUDPHeader builds the RFC 1928 §7 UDP request header: RSV(2)=0,
// FRAG(1)=0 (fragmentation unsupported), ATYP+DST.ADDR+DST.PORT.
func encodeUDPHeader(up addr.UpstreamAddr) ([]byte, error) {
	body, e := encodeAddress(up)
	if e != nil {
		return nil, e
	}
	return append([]byte{0x00, 0x00, 0x00}, body...), nil
}

// decodeUDPHeader strips the RFC 1928 §7 UDP request header off a
// datagram the client sent to the relay socket, returning the payload
// and the destination it named.
func decodeUDPHeader(datagram []byte) ([]byte, addr.UpstreamAddr, error) {
	if len(datagram) < 4 {
		return nil, addr.UpstreamAddr{}, ErrorUDPDatagramMalformed.Error(nil)
	}
	if datagram[2] != 0x00 {
		return nil, addr.UpstreamAddr{}, ErrorFragmentationUnsupported.Error(nil)
	}

	rest := datagram[3:]
	if len(rest) < 1 {
		return nil, addr.UpstreamAddr{}, ErrorUDPDatagramMalformed.Error(nil)
	}

	host, consumed, e := readAddressFromBytes(rest)
	if e != nil {
		return nil, addr.UpstreamAddr{}, e
	}
	if len(rest) < consumed+2 {
		return nil, addr.UpstreamAddr{}, ErrorUDPDatagramMalformed.Error(nil)
	}

	port := binary.BigEndian.Uint16(rest[consumed : consumed+2])
	return rest[consumed+2:], addr.New(host, port), nil
}

// readAddressFromBytes parses an ATYP+address field from an in-memory
// buffer (as opposed to readAddress, which reads from a stream) and
// reports how many bytes it consumed.
func readAddressFromBytes(b []byte) (addr.Host, int, error) {
	if len(b) < 1 {
		return addr.Host{}, 0, ErrorUDPDatagramMalformed.Error(nil)
	}
	switch b[0] {
	case atypIPv4:
		if len(b) < 1+4 {
			return addr.Host{}, 0, ErrorUDPDatagramMalformed.Error(nil)
		}
		return addr.NewHostIP(net.IP(b[1 : 1+4])), 1 + 4, nil
	case atypIPv6:
		if len(b) < 1+16 {
			return addr.Host{}, 0, ErrorUDPDatagramMalformed.Error(nil)
		}
		return addr.NewHostIP(net.IP(b[1 : 1+16])), 1 + 16, nil
	case atypDomain:
		if len(b) < 2 {
			return addr.Host{}, 0, ErrorUDPDatagramMalformed.Error(nil)
		}
		n := int(b[1])
		if len(b) < 2+n {
			return addr.Host{}, 0, ErrorUDPDatagramMalformed.Error(nil)
		}
		return addr.NewHostDomain(string(b[2 : 2+n])), 2 + n, nil
	default:
		return addr.Host{}, 0, ErrorUnsupportedAddressType.Error(nil)
	}
}

func encodeAddress(up addr.UpstreamAddr) ([]byte, error) {
	var out []byte
	host := up.Host()

	if host.IsIP() {
		if v4 := host.IP().To4(); v4 != nil {
			out = append([]byte{atypIPv4}, v4...)
		} else if v6 := host.IP().To16(); v6 != nil {
			out = append([]byte{atypIPv6}, v6...)
		} else {
			return nil, ErrorUnsupportedAddressType.Error(nil)
		}
	} else {
		name := host.String()
		if len(name) > 255 {
			return nil, ErrorRequestMalformed.Error(nil)
		}
		out = append([]byte{atypDomain, byte(len(name))}, name...)
	}

	port := make([]byte, 2)
	binary.BigEndian.PutUint16(port, up.Port())
	return append(out, port...), nil
}
