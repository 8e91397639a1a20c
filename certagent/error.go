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

package certagent

import "github.com/sabouaram/netproxy/errors"

const (
	ErrorRequestTooLarge errors.CodeError = iota + errors.MinPkgCertAgent
	ErrorQueryTimeout
	ErrorDecodeFailed
	ErrorNoProtectiveCache
	ErrorListenFailed
	ErrorGenerateFailed
)

func init() {
	errors.RegisterIdFctMessage(ErrorRequestTooLarge, getMessage)
}

func getMessage(code errors.CodeError) string {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorRequestTooLarge:
		return "cert-agent request exceeds datagram size limit"
	case ErrorQueryTimeout:
		return "cert-agent query timed out"
	case ErrorDecodeFailed:
		return "failed to decode cert-agent response"
	case ErrorNoProtectiveCache:
		return "cert-agent unreachable and no protective cache entry available"
	case ErrorListenFailed:
		return "cert-agent generator failed to open its UDP listener"
	case ErrorGenerateFailed:
		return "cert-agent generator failed to mint a fake certificate"
	}
	return ""
}
