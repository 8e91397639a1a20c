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

package main

import (
	"fmt"
	"strings"

	"github.com/sabouaram/netproxy/acl"
	"github.com/sabouaram/netproxy/stats"
)

// buildACL turns the configured rule list into one acl.Engine. Every rule
// from the config file lands in a single "config" rule-set evaluated in
// file order, with ForbiddenDestDenied as the bumped subcounter; nil is
// returned when no rules are configured, which task.Runner treats as
// permit-everything.
func buildACL(rules []ACLRuleConfig) (*acl.Engine, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	built := make([]acl.Rule, 0, len(rules))
	for i, rc := range rules {
		action, err := parseAction(rc.Action)
		if err != nil {
			return nil, fmt.Errorf("acl rule %d: %w", i, err)
		}

		r, err := buildRule(rc, action)
		if err != nil {
			return nil, fmt.Errorf("acl rule %d: %w", i, err)
		}
		built = append(built, r)
	}

	set := acl.NewRuleSet(acl.Permit, built...)

	e := acl.NewEngine()
	e.Add("config", set, stats.ForbiddenDestDenied)
	return e, nil
}

func buildRule(rc ACLRuleConfig, action acl.Action) (acl.Rule, error) {
	switch strings.ToLower(rc.Kind) {
	case "network", "cidr":
		r, e := acl.NewNetworkRule(rc.Value, action)
		if e != nil {
			return acl.Rule{}, e
		}
		return r, nil
	case "domain", "exact-domain":
		return acl.NewExactDomainRule(rc.Value, action), nil
	case "suffix", "suffix-domain":
		return acl.NewSuffixDomainRule(rc.Value, action), nil
	case "port":
		return acl.NewPortRule(rc.Port, action), nil
	case "user-agent", "useragent":
		return acl.NewUserAgentRule(rc.Value, action), nil
	case "regex":
		r, e := acl.NewRegexRule(rc.Value, action)
		if e != nil {
			return acl.Rule{}, e
		}
		return r, nil
	default:
		return acl.Rule{}, fmt.Errorf("unknown rule kind %q", rc.Kind)
	}
}

func parseAction(s string) (acl.Action, error) {
	switch strings.ToLower(s) {
	case "", "permit":
		return acl.Permit, nil
	case "permit-and-log":
		return acl.PermitAndLog, nil
	case "forbid":
		return acl.Forbid, nil
	case "forbid-and-log":
		return acl.ForbidAndLog, nil
	default:
		return acl.Permit, fmt.Errorf("unknown action %q", s)
	}
}
