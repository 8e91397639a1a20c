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

package intercept

import "github.com/sabouaram/netproxy/errors"

const (
	ErrorClientHandshakeTimeout errors.CodeError = iota + errors.MinPkgIntercept
	ErrorUpstreamHandshakeTimeout
	ErrorNoFakeCertGenerated
	ErrorUpstreamPrepareFailed
	ErrorInternalServerError
)

func init() {
	errors.RegisterIdFctMessage(ErrorClientHandshakeTimeout, getMessage)
}

func getMessage(code errors.CodeError) string {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorClientHandshakeTimeout:
		return "tls interceptor: client handshake did not complete within accept_timeout"
	case ErrorUpstreamHandshakeTimeout:
		return "tls interceptor: upstream handshake did not complete within handshake_timeout"
	case ErrorNoFakeCertGenerated:
		return "tls interceptor: cert agent did not return a usable fake certificate"
	case ErrorUpstreamPrepareFailed:
		return "tls interceptor: failed to dial or prepare the upstream connection"
	case ErrorInternalServerError:
		return "tls interceptor: internal TLS server setup error"
	}
	return ""
}
