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
	"bytes"
	"io"

	"github.com/sabouaram/netproxy/addr"
	liberr "github.com/sabouaram/netproxy/errors"
)

// Authenticator validates RFC 1929 username/password credentials. A nil
// Authenticator means the listener only offers MethodNoAuth.
type Authenticator interface {
	Authenticate(user, pass string) bool
}

// AuthenticatorFunc adapts a plain function to Authenticator.
type AuthenticatorFunc func(user, pass string) bool

func (f AuthenticatorFunc) Authenticate(user, pass string) bool { return f(user, pass) }

// Request is one parsed CONNECT/UDP-ASSOCIATE request: the command and
// the target the client asked to reach.
type Request struct {
	Cmd    byte
	Target addr.UpstreamAddr
}

// Handshake drives the RFC 1928/1929 exchange up through the request
// line: method negotiation (offering MethodUserPass only when auth is
// non-nil), the optional username/password subnegotiation, and the
// CONNECT/UDP-ASSOCIATE request. It does not write a reply; the caller
// writes one once it knows whether the requested target is reachable
// (see WriteReply / NewReply).
func Handshake(rw io.ReadWriter, auth Authenticator) (*Request, liberr.Error) {
	methods, e := readGreeting(rw)
	if e != nil {
		return nil, ErrorUnsupportedVersion.Error(e)
	}

	method := chooseMethod(methods, auth != nil)
	if werr := writeMethodSelection(rw, method); werr != nil {
		return nil, ErrorReplyFailed.Error(werr)
	}
	if method == MethodNoAcceptable {
		return nil, ErrorNoAcceptableMethod.Error(nil)
	}

	if method == MethodUserPass {
		user, pass, aerr := readAuth(rw)
		if aerr != nil {
			return nil, ErrorAuthRejected.Error(aerr)
		}
		ok := auth.Authenticate(user, pass)
		if werr := writeAuthResult(rw, ok); werr != nil {
			return nil, ErrorReplyFailed.Error(werr)
		}
		if !ok {
			return nil, ErrorAuthRejected.Error(nil)
		}
	}

	cmd, target, rerr := readRequest(rw)
	if rerr != nil {
		return nil, ErrorRequestMalformed.Error(rerr)
	}
	if cmd != CmdConnect && cmd != CmdUDPAssociate {
		return nil, ErrorUnsupportedCommand.Error(nil)
	}

	return &Request{Cmd: cmd, Target: target}, nil
}

func chooseMethod(offered []byte, hasAuth bool) byte {
	wantsUserPass := bytes.IndexByte(offered, MethodUserPass) >= 0
	wantsNoAuth := bytes.IndexByte(offered, MethodNoAuth) >= 0

	if hasAuth && wantsUserPass {
		return MethodUserPass
	}
	if !hasAuth && wantsNoAuth {
		return MethodNoAuth
	}
	return MethodNoAcceptable
}
