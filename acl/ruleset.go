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

package acl

import (
	"net"
	"regexp"
	"strings"

	liberr "github.com/sabouaram/netproxy/errors"
)

// Rule is one matchable entry inside a RuleSet. Exactly one matcher field
// is set per rule depending on Kind.
type Rule struct {
	action Action

	network   *net.IPNet
	domain    string // exact match, already lowercased
	suffix    string // ".example.com"-style suffix/child-domain match
	port      uint16
	uaSubstr  string
	rx        *regexp.Regexp
}

func NewNetworkRule(cidr string, action Action) (Rule, liberr.Error) {
	_, n, e := net.ParseCIDR(cidr)
	if e != nil {
		return Rule{}, ErrorCIDRInvalid.Error(e)
	}
	return Rule{action: action, network: n}, nil
}

func NewExactDomainRule(domain string, action Action) Rule {
	return Rule{action: action, domain: strings.ToLower(domain)}
}

func NewSuffixDomainRule(suffix string, action Action) Rule {
	s := strings.ToLower(suffix)
	if !strings.HasPrefix(s, ".") {
		s = "." + s
	}
	return Rule{action: action, suffix: s}
}

func NewPortRule(port uint16, action Action) Rule {
	return Rule{action: action, port: port}
}

func NewUserAgentRule(substr string, action Action) Rule {
	return Rule{action: action, uaSubstr: strings.ToLower(substr)}
}

func NewRegexRule(pattern string, action Action) (Rule, liberr.Error) {
	rx, e := regexp.Compile(pattern)
	if e != nil {
		return Rule{}, ErrorRegexInvalid.Error(e)
	}
	return Rule{action: action, rx: rx}, nil
}

// Request is the per-evaluation input: only the fields relevant to the
// rule-set being checked need be populated.
type Request struct {
	IP        net.IP
	Domain    string
	Port      uint16
	UserAgent string
}

func (r Rule) matches(req Request) bool {
	switch {
	case r.network != nil:
		return req.IP != nil && r.network.Contains(req.IP)
	case r.domain != "":
		return strings.EqualFold(r.domain, req.Domain)
	case r.suffix != "":
		d := strings.ToLower(req.Domain)
		return d == strings.TrimPrefix(r.suffix, ".") || strings.HasSuffix(d, r.suffix)
	case r.port != 0:
		return req.Port == r.port
	case r.uaSubstr != "":
		return strings.Contains(strings.ToLower(req.UserAgent), r.uaSubstr)
	case r.rx != nil:
		return r.rx.MatchString(req.Domain)
	}
	return false
}

// RuleSet evaluates an ordered list of rules and produces (found, action).
// Forbid rules short-circuit: early-forbid actions short-circuit the
// rest of the rule-set.
type RuleSet struct {
	rules   []Rule
	Default Action
}

func NewRuleSet(defaultAction Action, rules ...Rule) *RuleSet {
	return &RuleSet{rules: rules, Default: defaultAction}
}

// Evaluate walks the rules in order. found is false if nothing matched, in
// which case callers should fall back to Default themselves (mirroring the
// default_action.restrict(action) composition).
func (rs *RuleSet) Evaluate(req Request) (found bool, action Action) {
	for _, r := range rs.rules {
		if r.matches(req) {
			if r.action.IsForbidden() {
				return true, r.action
			}
			found, action = true, r.action
		}
	}
	return found, action
}
