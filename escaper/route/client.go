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

package route

import (
	"context"
	"net"

	liberr "github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/escaper"
)

// ClientConfig configures a route-client escaper: dispatch by the
// accepted connection's client IP/subnet, or by authenticated username.
type ClientConfig struct {
	Name     string
	Registry *escaper.Registry
	Users    map[string]string // username -> escaper name, checked first
	Subnets  []SubnetRule
	Default  string
}

// Client is the route-client escaper.
type Client struct {
	escaper.Base
	cfg ClientConfig
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) Name() string { return c.cfg.Name }

func (c *Client) Capabilities() escaper.Capability {
	return escaper.CapTCPSetupConnection |
		escaper.CapTLSSetupConnection |
		escaper.CapUDPSetupConnection |
		escaper.CapHTTPForwardNewConnection |
		escaper.CapHTTPSForwardNewConnection |
		escaper.CapFTPNewConnection
}

func (c *Client) CheckOutNextEscaper(_ context.Context, req escaper.Request, _ *escaper.AuditContext) (escaper.Escaper, liberr.Error) {
	if req.Username != "" {
		if name, ok := c.cfg.Users[req.Username]; ok {
			return c.cfg.Registry.Get(name)
		}
	}

	if ip := clientIP(req.ClientAddr); ip != nil {
		for _, r := range c.cfg.Subnets {
			if r.Net.Contains(ip) {
				return c.cfg.Registry.Get(r.Escaper)
			}
		}
	}

	if c.cfg.Default != "" {
		return c.cfg.Registry.Get(c.cfg.Default)
	}
	return nil, ErrorNoRuleMatched.Error(nil)
}

func clientIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.TCPAddr:
		return v.IP
	case *net.UDPAddr:
		return v.IP
	default:
		return nil
	}
}
