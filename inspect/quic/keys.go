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

// Package quic implements QUIC Initial-packet key derivation and
// decryption (RFC 9001 §5.2 and RFC 9369 §3.3) so the protocol
// inspector can reach the CRYPTO frame carrying a client's ClientHello
// without a full QUIC transport stack.
package quic

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/sabouaram/netproxy/errors"
)

const (
	Version1 uint32 = 0x00000001
	Version2 uint32 = 0x6b3343cf
)

var (
	saltV1 = mustHex("38762cf7f55934b34d179ae6a4c80cadccbb7f0a")
	saltV2 = mustHex("0dede3def700a6db819381be6e269dcbf9bd2ed9")
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func saltForVersion(version uint32) ([]byte, errors.Error) {
	switch version {
	case Version1:
		return saltV1, nil
	case Version2:
		return saltV2, nil
	default:
		return nil, ErrorUnsupportedVersion.Error(nil)
	}
}

// keyLabels returns the three HKDF-Expand-Label label names used to turn
// a per-direction initial secret into an AEAD key, IV, and header
// protection key. RFC 9369 §3.3.2 renames the "quic " infix to "quicv2 "
// for QUIC version 2; the client/server secret labels themselves ("client
// in"/"server in") are unchanged across versions.
func keyLabels(version uint32) (key, iv, hp string) {
	if version == Version2 {
		return "quicv2 key", "quicv2 iv", "quicv2 hp"
	}
	return "quic key", "quic iv", "quic hp"
}

// expandLabel implements the TLS 1.3 HKDF-Expand-Label construction
// (RFC 8446 §7.1): a fixed "tls13 " prefix, the label, and an optional
// context, packed into the HKDF `info` parameter.
func expandLabel(secret []byte, label string, context []byte, length int) []byte {
	full := "tls13 " + label

	info := new(bytes.Buffer)
	_ = binary.Write(info, binary.BigEndian, uint16(length))
	info.WriteByte(byte(len(full)))
	info.WriteString(full)
	info.WriteByte(byte(len(context)))
	info.Write(context)

	out := make([]byte, length)
	_, _ = io.ReadFull(hkdf.Expand(sha256.New, secret, info.Bytes()), out)
	return out
}

// InitialSecrets derives the client and server initial secrets for the
// given version and destination connection ID (RFC 9001 §5.2).
func InitialSecrets(version uint32, dcid []byte) (client, server []byte, e errors.Error) {
	salt, err := saltForVersion(version)
	if err != nil {
		return nil, nil, err
	}

	initialSecret := hkdf.Extract(sha256.New, dcid, salt)
	client = expandLabel(initialSecret, "client in", nil, sha256.Size)
	server = expandLabel(initialSecret, "server in", nil, sha256.Size)
	return client, server, nil
}

// PacketProtectionKeys derives the AEAD key, IV, and header-protection key
// for one direction's initial secret.
func PacketProtectionKeys(secret []byte, version uint32) (key, iv, hp []byte) {
	keyLabel, ivLabel, hpLabel := keyLabels(version)
	key = expandLabel(secret, keyLabel, nil, 16)
	iv = expandLabel(secret, ivLabel, nil, 12)
	hp = expandLabel(secret, hpLabel, nil, 16)
	return key, iv, hp
}
