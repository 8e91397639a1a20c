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

package quic

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"

	"github.com/sabouaram/netproxy/errors"
)

// LongHeader is the subset of a QUIC long-header packet's cleartext
// fields the inspector needs to locate and decrypt the Initial payload
// (RFC 9000 §17.2).
type LongHeader struct {
	Version      uint32
	DestConnID   []byte
	SrcConnID    []byte
	Token        []byte
	Length       uint64
	HeaderLen    int // bytes before the (still protected) packet number
	PayloadStart int // HeaderLen + pn length, filled in after unprotection
}

func readVarint(b []byte, off int) (uint64, int, errors.Error) {
	if off >= len(b) {
		return 0, 0, ErrorShortPacket.Error(nil)
	}
	lenBits := b[off] >> 6
	n := 1 << lenBits
	if off+n > len(b) {
		return 0, 0, ErrorShortPacket.Error(nil)
	}
	v := uint64(b[off] & 0x3f)
	for i := 1; i < n; i++ {
		v = v<<8 | uint64(b[off+i])
	}
	return v, off + n, nil
}

// ParseLongHeader parses the unprotected prefix of a QUIC long-header
// Initial packet: flags, version, connection ids, token, and length.
// The packet number itself is still header-protected at this point.
func ParseLongHeader(packet []byte) (*LongHeader, errors.Error) {
	if len(packet) < 7 {
		return nil, ErrorShortPacket.Error(nil)
	}
	if packet[0]&0xc0 != 0xc0 {
		return nil, ErrorShortPacket.Error(nil)
	}

	h := &LongHeader{Version: binary.BigEndian.Uint32(packet[1:5])}
	off := 5

	dcidLen := int(packet[off])
	off++
	if off+dcidLen > len(packet) {
		return nil, ErrorShortPacket.Error(nil)
	}
	h.DestConnID = packet[off : off+dcidLen]
	off += dcidLen

	if off >= len(packet) {
		return nil, ErrorShortPacket.Error(nil)
	}
	scidLen := int(packet[off])
	off++
	if off+scidLen > len(packet) {
		return nil, ErrorShortPacket.Error(nil)
	}
	h.SrcConnID = packet[off : off+scidLen]
	off += scidLen

	// Initial-only: a token length varint followed by the token bytes.
	tokenLen, off2, e := readVarint(packet, off)
	if e != nil {
		return nil, e
	}
	off = off2
	if off+int(tokenLen) > len(packet) {
		return nil, ErrorShortPacket.Error(nil)
	}
	h.Token = packet[off : off+int(tokenLen)]
	off += int(tokenLen)

	length, off3, e := readVarint(packet, off)
	if e != nil {
		return nil, e
	}
	h.Length = length
	h.HeaderLen = off3

	return h, nil
}

// headerProtectionMask computes the 5-byte mask RFC 9001 §5.4.1 applies
// over the first byte's low bits and the packet number field, by
// AES-ECB-encrypting a 16-byte sample drawn from 4 bytes into the
// (still-protected) packet number field.
func headerProtectionMask(hp []byte, sample []byte) ([]byte, errors.Error) {
	block, err := aes.NewCipher(hp)
	if err != nil {
		return nil, ErrorHeaderProtection.Error(err)
	}
	if len(sample) != block.BlockSize() {
		return nil, ErrorHeaderProtection.Error(nil)
	}
	mask := make([]byte, block.BlockSize())
	block.Encrypt(mask, sample)
	return mask, nil
}

// DecryptInitial derives the client-direction initial keys for the given
// connection ID and version, removes header protection, and AEAD-decrypts
// the Initial packet's payload, returning the plaintext (which carries the
// CRYPTO frame the TLS ClientHello lives in).
func DecryptInitial(version uint32, packet []byte) ([]byte, errors.Error) {
	h, e := ParseLongHeader(packet)
	if e != nil {
		return nil, e
	}

	clientSecret, _, e := InitialSecrets(version, h.DestConnID)
	if e != nil {
		return nil, e
	}
	key, iv, hp := PacketProtectionKeys(clientSecret, version)

	// Sample starts 4 bytes after the assumed 1-byte packet number, per
	// RFC 9001 §5.4.2; the true pn length is only known after unmasking,
	// so the sample window is fixed relative to a pn_offset of HeaderLen.
	sampleOffset := h.HeaderLen + 4
	if sampleOffset+16 > len(packet) {
		return nil, ErrorShortPacket.Error(nil)
	}
	mask, e := headerProtectionMask(hp, packet[sampleOffset:sampleOffset+16])
	if e != nil {
		return nil, e
	}

	firstByte := packet[0] ^ (mask[0] & 0x0f)
	pnLen := int(firstByte&0x03) + 1

	pnBytes := make([]byte, pnLen)
	for i := 0; i < pnLen; i++ {
		pnBytes[i] = packet[h.HeaderLen+i] ^ mask[1+i]
	}
	var packetNumber uint64
	for _, b := range pnBytes {
		packetNumber = packetNumber<<8 | uint64(b)
	}

	header := make([]byte, h.HeaderLen+pnLen)
	copy(header, packet[:h.HeaderLen])
	header[0] = firstByte
	copy(header[h.HeaderLen:], pnBytes)

	payloadStart := h.HeaderLen + pnLen
	payloadEnd := h.HeaderLen + int(h.Length)
	if payloadEnd > len(packet) {
		payloadEnd = len(packet)
	}
	if payloadStart > payloadEnd {
		return nil, ErrorShortPacket.Error(nil)
	}
	ciphertext := packet[payloadStart:payloadEnd]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrorDecryptFailed.Error(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrorDecryptFailed.Error(err)
	}

	nonce := make([]byte, len(iv))
	copy(nonce, iv)
	for i := 0; i < pnLen; i++ {
		nonce[len(nonce)-pnLen+i] ^= pnBytes[i]
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, ErrorDecryptFailed.Error(err)
	}
	return plaintext, nil
}
