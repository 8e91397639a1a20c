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
	"regexp"
	"strings"

	liberr "github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/escaper"
)

// SuffixRule maps a domain suffix (e.g. "example.com") to an escaper name;
// it matches both the exact domain and any of its subdomains.
type SuffixRule struct {
	Suffix   string
	Escaper  string
}

// ChildRule maps a parent domain to an escaper name, matching only strict
// subdomains (not the parent domain itself) — spec's "child-domain" tier,
// kept distinct from suffix matching so operators can route a domain's own
// traffic one way and everything under it another.
type ChildRule struct {
	Parent  string
	Escaper string
}

// RegexRule is the catch-all tier: the first matching pattern wins.
type RegexRule struct {
	Pattern *regexp.Regexp
	Escaper string
}

// SubnetRule maps a CIDR block to an escaper name.
type SubnetRule struct {
	Net     *net.IPNet
	Escaper string
}

// UpstreamConfig configures a route-upstream escaper. Matching proceeds in
// a fixed order: exact → subnet → suffix → child →
// regex → default.
type UpstreamConfig struct {
	Name     string
	Registry *escaper.Registry
	Exact    map[string]string // host (ip or domain) -> escaper name
	Subnets  []SubnetRule
	Suffixes []SuffixRule
	Children []ChildRule
	Regexes  []RegexRule
	Default  string
}

// Upstream is the route-upstream escaper.
type Upstream struct {
	escaper.Base
	cfg UpstreamConfig
}

func NewUpstream(cfg UpstreamConfig) *Upstream {
	return &Upstream{cfg: cfg}
}

func (u *Upstream) Name() string { return u.cfg.Name }

func (u *Upstream) Capabilities() escaper.Capability {
	return escaper.CapTCPSetupConnection |
		escaper.CapTLSSetupConnection |
		escaper.CapUDPSetupConnection |
		escaper.CapHTTPForwardNewConnection |
		escaper.CapHTTPSForwardNewConnection |
		escaper.CapFTPNewConnection
}

func (u *Upstream) CheckOutNextEscaper(_ context.Context, req escaper.Request, _ *escaper.AuditContext) (escaper.Escaper, liberr.Error) {
	name, le := u.match(req)
	if le != nil {
		return nil, le
	}
	return u.cfg.Registry.Get(name)
}

func (u *Upstream) match(req escaper.Request) (string, liberr.Error) {
	host := req.Upstream.Host()
	key := host.String()

	if name, ok := u.cfg.Exact[key]; ok {
		return name, nil
	}

	if host.IsIP() {
		for _, r := range u.cfg.Subnets {
			if r.Net.Contains(host.IP()) {
				return r.Escaper, nil
			}
		}
	} else {
		for _, r := range u.cfg.Suffixes {
			if strings.EqualFold(key, r.Suffix) || strings.HasSuffix(strings.ToLower(key), "."+strings.ToLower(r.Suffix)) {
				return r.Escaper, nil
			}
		}
		for _, r := range u.cfg.Children {
			if strings.HasSuffix(strings.ToLower(key), "."+strings.ToLower(r.Parent)) {
				return r.Escaper, nil
			}
		}
		for _, r := range u.cfg.Regexes {
			if r.Pattern.MatchString(key) {
				return r.Escaper, nil
			}
		}
	}

	if u.cfg.Default != "" {
		return u.cfg.Default, nil
	}
	return "", ErrorNoRuleMatched.Error(nil)
}
