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

import "github.com/sabouaram/netproxy/errors"

const (
	ErrorUnsupportedVersion errors.CodeError = iota + errors.MinPkgSocks5
	ErrorNoAcceptableMethod
	ErrorAuthRejected
	ErrorUnsupportedCommand
	ErrorUnsupportedAddressType
	ErrorRequestMalformed
	ErrorReplyFailed
	ErrorUDPDatagramMalformed
	ErrorFragmentationUnsupported
)

func init() {
	errors.RegisterIdFctMessage(ErrorUnsupportedVersion, getMessage)
}

func getMessage(code errors.CodeError) string {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorUnsupportedVersion:
		return "socks5: client requested an unsupported protocol version"
	case ErrorNoAcceptableMethod:
		return "socks5: no mutually acceptable authentication method"
	case ErrorAuthRejected:
		return "socks5: username/password authentication rejected"
	case ErrorUnsupportedCommand:
		return "socks5: request command is not CONNECT or UDP-ASSOCIATE"
	case ErrorUnsupportedAddressType:
		return "socks5: unsupported address type in request"
	case ErrorRequestMalformed:
		return "socks5: malformed request"
	case ErrorReplyFailed:
		return "socks5: failed to write reply to client"
	case ErrorUDPDatagramMalformed:
		return "socks5: malformed UDP-associate datagram"
	case ErrorFragmentationUnsupported:
		return "socks5: fragmented UDP-associate datagrams are not supported"
	}

	return ""
}
