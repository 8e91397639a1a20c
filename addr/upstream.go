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

// Package addr provides the upstream address model and weighted selective
// sets shared by the resolver facade and the escaper chain.
package addr

import (
	"net"
	"strings"

	liberr "github.com/sabouaram/netproxy/errors"
	"golang.org/x/net/idna"
)

// HostKind discriminates between a literal IP and a domain name host.
type HostKind uint8

const (
	HostIP HostKind = iota
	HostDomain
)

// Host is either a literal IP address or an already IDNA-encoded domain.
type Host struct {
	kind HostKind
	ip   net.IP
	name string
}

func NewHostIP(ip net.IP) Host {
	return Host{kind: HostIP, ip: ip}
}

// NewHostDomain stores name pre-encoded in ASCII-IDNA form. Use
// ParseHost if the caller may pass unicode input.
func NewHostDomain(name string) Host {
	return Host{kind: HostDomain, name: strings.ToLower(name)}
}

// ParseHost accepts either a literal IP or a (possibly unicode) domain and
// normalizes it.
func ParseHost(raw string) (Host, liberr.Error) {
	if raw == "" {
		return Host{}, ErrorHostEmpty.Error(nil)
	}

	if ip := net.ParseIP(raw); ip != nil {
		return NewHostIP(ip), nil
	}

	ascii, e := idna.Lookup.ToASCII(raw)
	if e != nil {
		return Host{}, ErrorHostInvalid.Error(e)
	}

	return NewHostDomain(ascii), nil
}

func (h Host) IsIP() bool {
	return h.kind == HostIP
}

func (h Host) IP() net.IP {
	return h.ip
}

func (h Host) String() string {
	if h.kind == HostIP {
		return h.ip.String()
	}
	return h.name
}

// Equal compares hosts the way the data model requires: exact for IPs,
// case-insensitive ASCII for domains (both sides are already IDNA-encoded).
func (h Host) Equal(o Host) bool {
	if h.kind != o.kind {
		return false
	}
	if h.kind == HostIP {
		return h.ip.Equal(o.ip)
	}
	return strings.EqualFold(h.name, o.name)
}

// UpstreamAddr is the (Host, port) pair every escaper routes against.
type UpstreamAddr struct {
	host Host
	port uint16
}

func New(host Host, port uint16) UpstreamAddr {
	return UpstreamAddr{host: host, port: port}
}

// Parse builds an UpstreamAddr from a "host:port" string.
func Parse(raw string) (UpstreamAddr, liberr.Error) {
	h, p, e := net.SplitHostPort(raw)
	if e != nil {
		return UpstreamAddr{}, ErrorHostInvalid.Error(e)
	}

	host, le := ParseHost(h)
	if le != nil {
		return UpstreamAddr{}, le
	}

	port, pe := net.LookupPort("tcp", p)
	if pe != nil || port <= 0 || port > 65535 {
		return UpstreamAddr{}, ErrorPortInvalid.Error(pe)
	}

	return New(host, uint16(port)), nil
}

func (u UpstreamAddr) Host() Host {
	return u.host
}

func (u UpstreamAddr) Port() uint16 {
	return u.port
}

func (u UpstreamAddr) Equal(o UpstreamAddr) bool {
	return u.port == o.port && u.host.Equal(o.host)
}

func (u UpstreamAddr) String() string {
	return net.JoinHostPort(u.host.String(), itoa(u.port))
}

func itoa(p uint16) string {
	if p == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = byte('0' + p%10)
		p /= 10
	}
	return string(buf[i:])
}
