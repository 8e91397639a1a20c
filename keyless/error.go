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

package keyless

import "github.com/sabouaram/netproxy/errors"

const (
	ErrorInvalidMessageLength errors.CodeError = iota + errors.MinPkgKeyless
	ErrorUnexpectedVersion
	ErrorNotEnoughData
	ErrorInvalidItemLength
	ErrorInvalidItemTag
	ErrorInvalidOpCode
	ErrorUnsupportedAction
	ErrorKeyNotFound
	ErrorServerError
)

func init() {
	errors.RegisterIdFctMessage(ErrorInvalidMessageLength, getMessage)
}

func getMessage(code errors.CodeError) string {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorInvalidMessageLength:
		return "keyless: invalid message length"
	case ErrorUnexpectedVersion:
		return "keyless: unexpected protocol version"
	case ErrorNotEnoughData:
		return "keyless: not enough data for a valid TLV item"
	case ErrorInvalidItemLength:
		return "keyless: invalid length for TLV item"
	case ErrorInvalidItemTag:
		return "keyless: invalid TLV item tag"
	case ErrorInvalidOpCode:
		return "keyless: invalid opcode"
	case ErrorUnsupportedAction:
		return "keyless: unsupported sign/decrypt action for this key type"
	case ErrorKeyNotFound:
		return "keyless: no key registered for the requested digest"
	case ErrorServerError:
		return "keyless: server returned an error response"
	}
	return ""
}
