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

package smtp

import (
	"net"
	"strings"
	"time"

	"github.com/sabouaram/netproxy/errors"
)

// QuitServer drives the upstream-facing half of an SMTP session teardown:
// it sends "QUIT" to the server and waits for a 221 (service closing) reply
// within timeout, so the inspector can close the upstream leg cleanly
// instead of resetting it mid-command.
type QuitServer struct {
	Conn    net.Conn
	Timeout time.Duration
}

// RunToEnd performs the upstream QUIT exchange. Any reply other than 221,
// or no reply before the timeout, is reported but does not prevent the
// caller from closing the connection afterward.
func (q QuitServer) RunToEnd() errors.Error {
	timeout := q.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	if err := q.Conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return ErrorQuitTimeout.Error(err)
	}
	if _, err := q.Conn.Write([]byte("QUIT\r\n")); err != nil {
		return ErrorQuitTimeout.Error(err)
	}

	lr := NewLineReader(q.Conn, DefaultMaxLineSize, timeout)
	line, e := lr.ReadLine()
	if e != nil {
		return ErrorQuitTimeout.Error(nil)
	}

	reply, e := ParseReply(line)
	if e != nil {
		return e
	}
	if reply.Code != codeServiceClosing {
		return ErrorInvalidResponse.Error(nil)
	}
	return nil
}

// QuitClient drives the client-facing half of an SMTP session teardown: it
// waits for the client to issue QUIT, replies with 221 service-closing (or
// 503 bad-sequence for anything else), then signals the caller to shut down
// the write side.
type QuitClient struct {
	Conn        net.Conn
	LocalDomain string
	Timeout     time.Duration
}

// RunToEnd waits for the client's next command line and responds
// accordingly. It returns nil once the 221 reply has been written,
// regardless of whether the client's command was actually QUIT; the caller
// is expected to close the write side of Conn immediately afterward, per
// the upstream teardown sequence this mirrors.
func (q QuitClient) RunToEnd() errors.Error {
	timeout := q.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	lr := NewLineReader(q.Conn, DefaultMaxLineSize, timeout)
	line, e := lr.ReadLine()
	if e != nil {
		return e
	}

	cmd := strings.ToUpper(strings.TrimSpace(string(line)))

	var reply Reply
	if cmd == "QUIT" {
		reply = ServiceClosing(q.LocalDomain)
	} else {
		reply = BadSequence()
	}

	if err := q.Conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return ErrorQuitTimeout.Error(err)
	}
	if _, err := q.Conn.Write(reply.Bytes()); err != nil {
		return ErrorQuitTimeout.Error(err)
	}
	return nil
}
