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

// itemTag identifies one TLV item within a keyless message body. Tags and
// their lengths are {1-byte tag, 2-byte big-endian length, value}.
type itemTag uint8

const (
	tagDigest  itemTag = 0x01
	tagOpCode  itemTag = 0x11
	tagPayload itemTag = 0x12
	tagPadding itemTag = 0x20
)

// DigestSize is the length in bytes of the SHA-256 certificate digest
// carried in a tagDigest item.
const DigestSize = 32

// Digest identifies the key a request targets: the SHA-256 hash of the
// DER-encoded certificate (or public key) the private key belongs to.
type Digest [DigestSize]byte
