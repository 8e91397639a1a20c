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

package tlsinspect

import (
	"encoding/binary"

	"github.com/sabouaram/netproxy/errors"
)

const handshakeTypeClientHello = 1

// Extension type values relevant to interception; the rest of RFC 8446's
// registry is left as opaque TLV data this package never needs to branch on.
const (
	extTypeServerName = 0
	extTypeALPN       = 16
)

// tlcpLegacyVersion is the legacy_version a TLCP (GM/T 0024) ClientHello
// carries in place of a TLS 1.x value; the cipher suite range below is the
// GM/T 0024 reserved block (ECC/IBC suites using SM2/SM4/SM3), used as a
// secondary signal when a middlebox rewrites legacy_version.
const tlcpLegacyVersion = 0x0101

const (
	tlcpCipherSuiteRangeLow  = 0xe001
	tlcpCipherSuiteRangeHigh = 0xe011
)

// ClientHello is the subset of a parsed ClientHello this package exposes:
// the raw extension block plus the two values an interceptor needs to pick
// an upstream certificate and negotiate an application protocol.
type ClientHello struct {
	LegacyVersion uint16
	SessionID     []byte
	CipherSuites  []uint16
	extensions    []byte
}

// parseClientHelloBody parses the ClientHello body (the bytes following the
// 4-byte handshake header): legacy_version, random, session_id,
// cipher_suites, compression_methods, and extensions (RFC 8446 §4.1.2).
func parseClientHelloBody(data []byte) (*ClientHello, errors.Error) {
	off := 0

	if len(data) < off+2 {
		return nil, ErrorMalformedClientHello.Error(nil)
	}
	version := binary.BigEndian.Uint16(data[off:])
	off += 2

	const randomLen = 32
	if len(data) < off+randomLen {
		return nil, ErrorMalformedClientHello.Error(nil)
	}
	off += randomLen

	if len(data) < off+1 {
		return nil, ErrorMalformedClientHello.Error(nil)
	}
	sessionIDLen := int(data[off])
	off++
	if len(data) < off+sessionIDLen {
		return nil, ErrorMalformedClientHello.Error(nil)
	}
	sessionID := data[off : off+sessionIDLen]
	off += sessionIDLen

	if len(data) < off+2 {
		return nil, ErrorMalformedClientHello.Error(nil)
	}
	cipherSuitesLen := int(binary.BigEndian.Uint16(data[off:]))
	off += 2
	if cipherSuitesLen%2 != 0 || len(data) < off+cipherSuitesLen {
		return nil, ErrorMalformedClientHello.Error(nil)
	}
	cipherSuites := make([]uint16, 0, cipherSuitesLen/2)
	for i := 0; i < cipherSuitesLen; i += 2 {
		cipherSuites = append(cipherSuites, binary.BigEndian.Uint16(data[off+i:]))
	}
	off += cipherSuitesLen

	if len(data) < off+1 {
		return nil, ErrorMalformedClientHello.Error(nil)
	}
	compressionLen := int(data[off])
	off++
	if len(data) < off+compressionLen {
		return nil, ErrorMalformedClientHello.Error(nil)
	}
	off += compressionLen

	var extensions []byte
	if off < len(data) {
		if len(data) < off+2 {
			return nil, ErrorMalformedClientHello.Error(nil)
		}
		extLen := int(binary.BigEndian.Uint16(data[off:]))
		off += 2
		if len(data) < off+extLen {
			return nil, ErrorMalformedClientHello.Error(nil)
		}
		extensions = data[off : off+extLen]
	}

	return &ClientHello{
		LegacyVersion: version,
		SessionID:     sessionID,
		CipherSuites:  cipherSuites,
		extensions:    extensions,
	}, nil
}

func getExtension(extensions []byte, extType uint16) ([]byte, errors.Error) {
	off := 0
	for off < len(extensions) {
		if len(extensions)-off < 4 {
			return nil, ErrorExtensionTooShort.Error(nil)
		}
		typ := binary.BigEndian.Uint16(extensions[off:])
		length := int(binary.BigEndian.Uint16(extensions[off+2:]))
		off += 4
		if len(extensions)-off < length {
			return nil, ErrorExtensionTooShort.Error(nil)
		}
		if typ == extType {
			return extensions[off : off+length], nil
		}
		off += length
	}
	return nil, nil
}

// ServerName extracts the host_name entry of the server_name extension
// (RFC 6066 §3), returning ok=false when the extension is absent.
func (ch *ClientHello) ServerName() (string, bool, errors.Error) {
	data, e := getExtension(ch.extensions, extTypeServerName)
	if e != nil {
		return "", false, e
	}
	if data == nil {
		return "", false, nil
	}

	// server_name_list: a 2-byte length prefix, then one or more
	// (name_type: 1 byte, length: 2 bytes, name) entries.
	if len(data) < 2 {
		return "", false, ErrorExtensionTooShort.Error(nil)
	}
	listLen := int(binary.BigEndian.Uint16(data))
	if len(data) < 2+listLen {
		return "", false, ErrorExtensionTooShort.Error(nil)
	}
	list := data[2 : 2+listLen]

	off := 0
	for off < len(list) {
		if len(list)-off < 3 {
			return "", false, ErrorExtensionTooShort.Error(nil)
		}
		nameType := list[off]
		nameLen := int(binary.BigEndian.Uint16(list[off+1:]))
		off += 3
		if len(list)-off < nameLen {
			return "", false, ErrorExtensionTooShort.Error(nil)
		}
		if nameType == 0 { // host_name
			return string(list[off : off+nameLen]), true, nil
		}
		off += nameLen
	}
	return "", false, nil
}

// IsTLCP reports whether this ClientHello belongs to the TLCP (GM/T 0024)
// version family rather than TLS ≥1.2: either its legacy_version is the TLCP
// value, or every offered cipher suite falls in the GM/T 0024 suite range.
func (ch *ClientHello) IsTLCP() bool {
	if ch.LegacyVersion == tlcpLegacyVersion {
		return true
	}
	if len(ch.CipherSuites) == 0 {
		return false
	}
	for _, cs := range ch.CipherSuites {
		if cs < tlcpCipherSuiteRangeLow || cs > tlcpCipherSuiteRangeHigh {
			return false
		}
	}
	return true
}

// ALPNProtocols extracts the protocol name list of the
// application_layer_protocol_negotiation extension (RFC 7301 §3.1).
func (ch *ClientHello) ALPNProtocols() ([]string, errors.Error) {
	data, e := getExtension(ch.extensions, extTypeALPN)
	if e != nil {
		return nil, e
	}
	if data == nil {
		return nil, nil
	}

	if len(data) < 2 {
		return nil, ErrorExtensionTooShort.Error(nil)
	}
	listLen := int(binary.BigEndian.Uint16(data))
	if len(data) < 2+listLen {
		return nil, ErrorExtensionTooShort.Error(nil)
	}
	list := data[2 : 2+listLen]

	protocols := make([]string, 0, 4)
	off := 0
	for off < len(list) {
		protoLen := int(list[off])
		off++
		if len(list)-off < protoLen {
			return nil, ErrorExtensionTooShort.Error(nil)
		}
		protocols = append(protocols, string(list[off:off+protoLen]))
		off += protoLen
	}
	return protocols, nil
}
