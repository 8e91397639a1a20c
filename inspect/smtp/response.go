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
	"fmt"
	"net"
	"strings"

	"github.com/sabouaram/netproxy/errors"
)

// Reply is one SMTP multi-line response line, e.g. "221 2.0.0 service closing".
type Reply struct {
	Code int
	Text string
}

// Bytes renders the reply as a single-line SMTP response terminated by CRLF.
// Multi-line replies are out of scope here: every synthesized reply this
// package produces is a single line, so the separator is always a space.
func (r Reply) Bytes() []byte {
	return []byte(fmt.Sprintf("%d %s\r\n", r.Code, r.Text))
}

// ParseReply extracts the numeric status code from a line already stripped
// of its trailing CRLF by LineReader.
func ParseReply(line []byte) (Reply, errors.Error) {
	s := string(line)
	if len(s) < 3 {
		return Reply{}, ErrorInvalidResponse.Error(nil)
	}
	code := 0
	for i := 0; i < 3; i++ {
		if s[i] < '0' || s[i] > '9' {
			return Reply{}, ErrorInvalidResponse.Error(nil)
		}
		code = code*10 + int(s[i]-'0')
	}
	text := ""
	if len(s) > 3 {
		text = strings.TrimLeft(s[3:], "- ")
	}
	return Reply{Code: code, Text: text}, nil
}

const (
	codeServiceClosing    = 221
	codeBadSequence       = 503
	codeLocalUpstreamFail = 421
)

// ServiceClosing renders the "221 <domain> service closing" line sent to a
// client that has asked to end the session cleanly.
func ServiceClosing(localDomain string) Reply {
	return Reply{Code: codeServiceClosing, Text: localDomain + " service closing transmission channel"}
}

// BadSequence renders the reply sent when a command arrives out of the
// expected order during the QUIT handshake.
func BadSequence() Reply {
	return Reply{Code: codeBadSequence, Text: "bad sequence of commands"}
}

// UpstreamFailure synthesizes a local 4xx reply standing in for an upstream
// that could not be reached or that misbehaved, carrying the local address
// so the client can tell the failure was injected by the inspector rather
// than returned by the real server.
func UpstreamFailure(localAddr net.Addr, reason string) Reply {
	host := "unknown"
	if localAddr != nil {
		if h, _, err := net.SplitHostPort(localAddr.String()); err == nil {
			host = h
		} else {
			host = localAddr.String()
		}
	}
	return Reply{Code: codeLocalUpstreamFail, Text: fmt.Sprintf("%s %s", host, reason)}
}
