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

// ServerErrorCode is the single-byte payload of an error response frame
// (OPCODE=0xFF), naming why the server could not complete the request.
type ServerErrorCode uint8

const (
	ServerErrorCryptographyFailure ServerErrorCode = 0x01
	ServerErrorKeyNotFound         ServerErrorCode = 0x02
	ServerErrorReadError           ServerErrorCode = 0x03
	ServerErrorVersionMismatch     ServerErrorCode = 0x04
	ServerErrorBadOpCode           ServerErrorCode = 0x05
	ServerErrorUnexpectedOpCode    ServerErrorCode = 0x06
	ServerErrorFormatError         ServerErrorCode = 0x07
	ServerErrorInternalError       ServerErrorCode = 0x08
	ServerErrorCertNotFound        ServerErrorCode = 0x09
	ServerErrorExpired             ServerErrorCode = 0x0A
)

func (e ServerErrorCode) String() string {
	switch e {
	case ServerErrorCryptographyFailure:
		return "cryptography error"
	case ServerErrorKeyNotFound:
		return "key not found due to no matching SKI/SNI/ServerIP"
	case ServerErrorReadError:
		return "I/O read failure"
	case ServerErrorVersionMismatch:
		return "version mismatch"
	case ServerErrorBadOpCode:
		return "bad opcode"
	case ServerErrorUnexpectedOpCode:
		return "unexpected opcode"
	case ServerErrorFormatError:
		return "malformed message"
	case ServerErrorInternalError:
		return "internal error"
	case ServerErrorCertNotFound:
		return "certificate not found"
	case ServerErrorExpired:
		return "sealing key expired"
	default:
		return "unsupported server error code"
	}
}
