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
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/sabouaram/netproxy/addr"
)

const (
	socksVersion5 = 0x05

	methodNoAuth       = 0x00
	methodUserPass     = 0x02
	methodNoAcceptable = 0xFF

	cmdConnect      = 0x01
	cmdUDPAssociate = 0x03

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	authVersion1 = 0x01
	authSuccess  = 0x00

	replySucceeded = 0x00
)

// greet performs the RFC 1928 method-selection exchange, offering
// username/password auth only when creds are non-empty.
func greet(rw io.ReadWriter, hasCreds bool) error {
	methods := []byte{methodNoAuth}
	if hasCreds {
		methods = []byte{methodUserPass, methodNoAuth}
	}

	req := append([]byte{socksVersion5, byte(len(methods))}, methods...)
	if _, e := rw.Write(req); e != nil {
		return e
	}

	resp := make([]byte, 2)
	if _, e := io.ReadFull(rw, resp); e != nil {
		return e
	}
	if resp[0] != socksVersion5 {
		return fmt.Errorf("unexpected socks version %d in method selection", resp[0])
	}
	switch resp[1] {
	case methodNoAuth:
		return nil
	case methodUserPass:
		if !hasCreds {
			return fmt.Errorf("parent requires username/password auth but none configured")
		}
		return nil
	case methodNoAcceptable:
		return fmt.Errorf("parent rejected all offered auth methods")
	default:
		return fmt.Errorf("parent selected unsupported auth method %d", resp[1])
	}
}

// authenticate runs the RFC 1929 username/password subnegotiation.
func authenticate(rw io.ReadWriter, user, pass string) error {
	buf := []byte{authVersion1, byte(len(user))}
	buf = append(buf, user...)
	buf = append(buf, byte(len(pass)))
	buf = append(buf, pass...)
	if _, e := rw.Write(buf); e != nil {
		return e
	}

	resp := make([]byte, 2)
	if _, e := io.ReadFull(rw, resp); e != nil {
		return e
	}
	if resp[1] != authSuccess {
		return fmt.Errorf("socks5 auth rejected with status %d", resp[1])
	}
	return nil
}

// request sends a CONNECT or UDP-ASSOCIATE request for target and returns
// the BND.ADDR/BND.PORT the parent replied with.
func request(rw io.ReadWriter, cmd byte, target addr.UpstreamAddr) (net.IP, uint16, error) {
	payload, e := encodeAddress(target)
	if e != nil {
		return nil, 0, e
	}

	buf := append([]byte{socksVersion5, cmd, 0x00}, payload...)
	if _, e := rw.Write(buf); e != nil {
		return nil, 0, e
	}

	return parseReply(rw)
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
			return nil, fmt.Errorf("unrepresentable ip address %s", host.IP())
		}
	} else {
		name := host.String()
		if len(name) > 255 {
			return nil, fmt.Errorf("domain name too long for socks5: %d bytes", len(name))
		}
		out = append([]byte{atypDomain, byte(len(name))}, name...)
	}

	port := make([]byte, 2)
	binary.BigEndian.PutUint16(port, up.Port())
	return append(out, port...), nil
}

func parseReply(r io.Reader) (net.IP, uint16, error) {
	head := make([]byte, 4)
	if _, e := io.ReadFull(r, head); e != nil {
		return nil, 0, e
	}
	if head[0] != socksVersion5 {
		return nil, 0, fmt.Errorf("unexpected socks version %d in reply", head[0])
	}
	if head[1] != replySucceeded {
		return nil, 0, fmt.Errorf("socks5 request failed with reply code %d", head[1])
	}

	var ip net.IP
	switch head[3] {
	case atypIPv4:
		buf := make([]byte, 4)
		if _, e := io.ReadFull(r, buf); e != nil {
			return nil, 0, e
		}
		ip = net.IP(buf)
	case atypIPv6:
		buf := make([]byte, 16)
		if _, e := io.ReadFull(r, buf); e != nil {
			return nil, 0, e
		}
		ip = net.IP(buf)
	case atypDomain:
		lenBuf := make([]byte, 1)
		if _, e := io.ReadFull(r, lenBuf); e != nil {
			return nil, 0, e
		}
		nameBuf := make([]byte, lenBuf[0])
		if _, e := io.ReadFull(r, nameBuf); e != nil {
			return nil, 0, e
		}
		resolved, e := net.LookupIP(string(nameBuf))
		if e != nil || len(resolved) == 0 {
			ip = net.IPv4zero
		} else {
			ip = resolved[0]
		}
	default:
		return nil, 0, fmt.Errorf("unsupported atyp %d in socks5 reply", head[3])
	}

	portBuf := make([]byte, 2)
	if _, e := io.ReadFull(r, portBuf); e != nil {
		return nil, 0, e
	}
	return ip, binary.BigEndian.Uint16(portBuf), nil
}
