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

package icap

import "github.com/sabouaram/netproxy/errors"

const (
	ErrorInvalidStatusLine errors.CodeError = iota + errors.MinPkgIcap
	ErrorInvalidHeaderLine
	ErrorHeaderTooLarge
	ErrorInvalidEncapsulated
	ErrorChunkedBody
	ErrorPreviewTooLarge
	ErrorUnexpectedStatus
	ErrorConnectionClosed
	ErrorNoEncapsulatedHeader
)

func init() {
	errors.RegisterIdFctMessage(ErrorInvalidStatusLine, getMessage)
}

func getMessage(code errors.CodeError) string {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorInvalidStatusLine:
		return "icap: malformed ICAP status line"
	case ErrorInvalidHeaderLine:
		return "icap: malformed ICAP header line"
	case ErrorHeaderTooLarge:
		return "icap: header section exceeds the configured maximum"
	case ErrorInvalidEncapsulated:
		return "icap: malformed Encapsulated header"
	case ErrorChunkedBody:
		return "icap: malformed chunked body"
	case ErrorPreviewTooLarge:
		return "icap: preview body exceeds the negotiated preview size"
	case ErrorUnexpectedStatus:
		return "icap: ICAP server returned an unexpected status code"
	case ErrorConnectionClosed:
		return "icap: connection closed before a full message arrived"
	case ErrorNoEncapsulatedHeader:
		return "icap: response carries no Encapsulated header"
	}

	return ""
}
