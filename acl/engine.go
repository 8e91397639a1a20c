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

import "github.com/sabouaram/netproxy/stats"

// Engine combines several named rule-sets (e.g. "ingress-network",
// "egress-domain", "user-agent") into one verdict, recording which
// rule-set (if any) caused a forbid so the caller can bump the matching
// EscaperStats forbidden subcounter.
type Engine struct {
	sets []namedSet
}

type namedSet struct {
	name   string
	set    *RuleSet
	reason stats.ForbiddenReason
}

func NewEngine() *Engine {
	return &Engine{}
}

// Add registers a rule-set under a name, with the forbidden subcounter to
// bump if this rule-set is the one that forbids the request.
func (e *Engine) Add(name string, set *RuleSet, reason stats.ForbiddenReason) {
	e.sets = append(e.sets, namedSet{name: name, set: set, reason: reason})
}

// Verdict is the combined decision across every registered rule-set.
type Verdict struct {
	Action       Action
	ForbiddenBy  string
	ForbidReason stats.ForbiddenReason
}

// Evaluate runs every rule-set in registration order, combining actions via
// Action.Restrict, and stops early at the first Forbid (spec: "a forbidden
// action from an ACL is fatal for the task").
func (e *Engine) Evaluate(req Request) Verdict {
	combined := Permit

	for _, ns := range e.sets {
		found, action := ns.set.Evaluate(req)
		if !found {
			action = ns.set.Default
		}

		combined = combined.Restrict(action)

		if combined.IsForbidden() {
			return Verdict{Action: combined, ForbiddenBy: ns.name, ForbidReason: ns.reason}
		}
	}

	return Verdict{Action: combined}
}
