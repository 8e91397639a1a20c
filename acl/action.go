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

// Package acl implements the ordered ACL engine: network, host, port and
// user-agent rules producing one of four actions, combined across
// rule-sets via Action.Restrict.
package acl

// Action is the outcome of evaluating one rule-set.
type Action uint8

const (
	Permit Action = iota
	PermitAndLog
	Forbid
	ForbidAndLog
)

func (a Action) IsForbidden() bool {
	return a == Forbid || a == ForbidAndLog
}

func (a Action) ShouldLog() bool {
	return a == PermitAndLog || a == ForbidAndLog
}

func (a Action) String() string {
	switch a {
	case Permit:
		return "permit"
	case PermitAndLog:
		return "permit-and-log"
	case Forbid:
		return "forbid"
	case ForbidAndLog:
		return "forbid-and-log"
	default:
		return "unknown"
	}
}

// Restrict combines this action (typically a rule-set's default) with
// another rule-set's found action. Forbid always wins over Permit; the Log
// bit is preserved from whichever side set it.
func (a Action) Restrict(other Action) Action {
	forbidden := a.IsForbidden() || other.IsForbidden()
	logged := a.ShouldLog() || other.ShouldLog()

	switch {
	case forbidden && logged:
		return ForbidAndLog
	case forbidden:
		return Forbid
	case logged:
		return PermitAndLog
	default:
		return Permit
	}
}
