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

package socks5

import (
	"context"
	"net"
	"strings"

	"github.com/sabouaram/netproxy/addr"
	liberr "github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/task"
)

// NewReply returns a task.Reply that writes the RFC 1928 §6 success
// reply once the upstream connection is live. bindAddr is reported to
// the client as BND.ADDR/BND.PORT; most callers pass the upstream
// connection's local address, which is generally what a client expects
// to see echoed back for a CONNECT.
func NewReply(bindAddr addr.UpstreamAddr) task.Reply {
	return func(_ context.Context, client net.Conn, _ net.Conn, _ *task.Notes) error {
		return writeReply(client, ReplySucceeded, bindAddr)
	}
}

// WriteFailureReply writes a non-success reply directly to conn. It is
// meant for the paths task.Runner.Run cannot reach on its own: ACL
// denial or a failed upstream connect both happen before Run ever
// invokes a Reply, and Run closes the client connection itself once it
// returns, so this must be called by the accept loop before handing
// the connection to Run.
func WriteFailureReply(conn net.Conn, code ReplyCode) liberr.Error {
	if e := writeReply(conn, code, addr.UpstreamAddr{}); e != nil {
		return ErrorReplyFailed.Error(e)
	}
	return nil
}

// ReplyForError maps a connect/ACL failure to the closest RFC 1928 §6
// reply code. Unrecognized errors fall back to ReplyGeneralFailure.
func ReplyForError(err error) ReplyCode {
	if err == nil {
		return ReplySucceeded
	}

	switch {
	case isTimeout(err):
		return ReplyTTLExpired
	case isRefused(err):
		return ReplyConnectionRefused
	case isUnreachable(err):
		return ReplyHostUnreachable
	default:
		return ReplyGeneralFailure
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return false
}

func isRefused(err error) bool {
	return strings.Contains(err.Error(), "connection refused")
}

func isUnreachable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "host is unreachable")
}
