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

// Package keyless implements the Cloudflare keyless wire protocol: an
// 8-byte header {major, minor, length, id} followed by TLV items carrying
// a certificate digest, an opcode, a payload and optional padding. It
// provides the wire codec, a client that multiplexes concurrent sign/
// decrypt calls over one persistent connection via mux.Mux, and a server
// Handler performing the actual RSA/ECDSA operation against a local
// key store.
package keyless

// OpCode names the cryptographic operation a keyless request asks the
// server to perform. Values match the Cloudflare keyless protocol's
// on-wire opcode byte.
type OpCode uint8

const (
	OpRsaDecrypt     OpCode = 0x01
	OpRsaSignMd5Sha1 OpCode = 0x02
	OpRsaSignSha1    OpCode = 0x03
	OpRsaSignSha224  OpCode = 0x04
	OpRsaSignSha256  OpCode = 0x05
	OpRsaSignSha384  OpCode = 0x06
	OpRsaSignSha512  OpCode = 0x07
	OpRsaRawDecrypt  OpCode = 0x08

	OpEcdsaSignMd5Sha1 OpCode = 0x12
	OpEcdsaSignSha1    OpCode = 0x13
	OpEcdsaSignSha224  OpCode = 0x14
	OpEcdsaSignSha256  OpCode = 0x15
	OpEcdsaSignSha384  OpCode = 0x16
	OpEcdsaSignSha512  OpCode = 0x17

	// opResponse and opError are not operation opcodes; they are the
	// values a response frame's OPCODE item carries to say "here is the
	// result" or "here is a KeylessServerError byte" respectively.
	opResponse OpCode = 0xF0
	opError    OpCode = 0xFF
)

func (o OpCode) String() string {
	switch o {
	case OpRsaDecrypt:
		return "rsa-decrypt"
	case OpRsaSignMd5Sha1:
		return "rsa-sign-md5sha1"
	case OpRsaSignSha1:
		return "rsa-sign-sha1"
	case OpRsaSignSha224:
		return "rsa-sign-sha224"
	case OpRsaSignSha256:
		return "rsa-sign-sha256"
	case OpRsaSignSha384:
		return "rsa-sign-sha384"
	case OpRsaSignSha512:
		return "rsa-sign-sha512"
	case OpRsaRawDecrypt:
		return "rsa-raw-decrypt"
	case OpEcdsaSignMd5Sha1:
		return "ecdsa-sign-md5sha1"
	case OpEcdsaSignSha1:
		return "ecdsa-sign-sha1"
	case OpEcdsaSignSha224:
		return "ecdsa-sign-sha224"
	case OpEcdsaSignSha256:
		return "ecdsa-sign-sha256"
	case OpEcdsaSignSha384:
		return "ecdsa-sign-sha384"
	case OpEcdsaSignSha512:
		return "ecdsa-sign-sha512"
	case opResponse:
		return "response"
	case opError:
		return "error"
	default:
		return "unknown"
	}
}

// IsRSA reports whether op asks for an RSA-family operation (as opposed
// to ECDSA).
func (o OpCode) IsRSA() bool {
	return o >= OpRsaDecrypt && o <= OpRsaRawDecrypt
}

// IsECDSA reports whether op asks for an ECDSA signing operation.
func (o OpCode) IsECDSA() bool {
	switch o {
	case OpEcdsaSignMd5Sha1, OpEcdsaSignSha1, OpEcdsaSignSha224,
		OpEcdsaSignSha256, OpEcdsaSignSha384, OpEcdsaSignSha512:
		return true
	default:
		return false
	}
}

// IsSign reports whether op is a signing operation rather than a decrypt.
func (o OpCode) IsSign() bool {
	switch o {
	case OpRsaDecrypt, OpRsaRawDecrypt:
		return false
	default:
		return true
	}
}
