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

import (
	"encoding/binary"
	"io"

	liberr "github.com/sabouaram/netproxy/errors"
)

const (
	protoMajor = 1
	protoMinor = 0
	headerLen  = 8
)

// writeHeader writes the 8-byte {major, minor, length, id} header. length
// is the byte count of the TLV body that follows.
func writeHeader(w io.Writer, id uint32, bodyLen int) liberr.Error {
	if bodyLen > 0xFFFF {
		return ErrorInvalidMessageLength.Error(nil)
	}
	var hdr [headerLen]byte
	hdr[0] = protoMajor
	hdr[1] = protoMinor
	binary.BigEndian.PutUint16(hdr[2:4], uint16(bodyLen))
	binary.BigEndian.PutUint32(hdr[4:8], id)
	if _, err := w.Write(hdr[:]); err != nil {
		return ErrorInvalidMessageLength.Error(err)
	}
	return nil
}

// readHeader reads and validates the 8-byte header, returning the
// request/response id and the byte length of the TLV body to read next.
func readHeader(r io.Reader) (id uint32, bodyLen int, ferr liberr.Error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, ErrorInvalidMessageLength.Error(err)
	}
	if hdr[0] != protoMajor || hdr[1] != protoMinor {
		return 0, 0, ErrorUnexpectedVersion.Error(nil)
	}
	bodyLen = int(binary.BigEndian.Uint16(hdr[2:4]))
	id = binary.BigEndian.Uint32(hdr[4:8])
	return id, bodyLen, nil
}

// encodeItem appends one {tag, 2-byte big-endian length, value} TLV item.
func encodeItem(buf []byte, tag itemTag, value []byte) []byte {
	buf = append(buf, byte(tag))
	buf = append(buf, byte(len(value)>>8), byte(len(value)))
	buf = append(buf, value...)
	return buf
}

type tlvItem struct {
	tag   itemTag
	value []byte
}

// parseItems walks body as a sequence of TLV items, the same {1-byte tag,
// 2-byte length, value} shape the request and response bodies share.
func parseItems(body []byte) ([]tlvItem, liberr.Error) {
	var items []tlvItem
	for len(body) > 0 {
		if len(body) < 3 {
			return nil, ErrorNotEnoughData.Error(nil)
		}
		tag := itemTag(body[0])
		ln := int(body[1])<<8 | int(body[2])
		body = body[3:]
		if len(body) < ln {
			return nil, ErrorInvalidItemLength.Error(nil)
		}
		items = append(items, tlvItem{tag: tag, value: body[:ln]})
		body = body[ln:]
	}
	return items, nil
}

// BuildRequestBody lays out a request's TLV body: the target key's
// digest, the requested opcode, and the operation payload (the digest or
// plaintext to sign/decrypt). This is the body placed after the 8-byte
// header; the header's id is filled in by whoever owns request
// correlation (the Client, via mux.Mux).
func BuildRequestBody(digest Digest, op OpCode, payload []byte) ([]byte, liberr.Error) {
	if len(payload) > 0xFFFF {
		return nil, ErrorInvalidMessageLength.Error(nil)
	}
	buf := make([]byte, 0, 3+len(digest)+3+1+3+len(payload))
	buf = encodeItem(buf, tagDigest, digest[:])
	buf = encodeItem(buf, tagOpCode, []byte{byte(op)})
	buf = encodeItem(buf, tagPayload, payload)
	return buf, nil
}

// ParseRequestBody parses a request body built by BuildRequestBody,
// tolerating an additional tagPadding item (ignored) the way the
// reference client pads short requests to a fixed size.
func ParseRequestBody(body []byte) (digest Digest, op OpCode, payload []byte, ferr liberr.Error) {
	items, err := parseItems(body)
	if err != nil {
		return digest, 0, nil, err
	}

	haveDigest, haveOp := false, false
	for _, it := range items {
		switch it.tag {
		case tagDigest:
			if len(it.value) != DigestSize {
				return digest, 0, nil, ErrorInvalidItemLength.Error(nil)
			}
			copy(digest[:], it.value)
			haveDigest = true
		case tagOpCode:
			if len(it.value) != 1 {
				return digest, 0, nil, ErrorInvalidItemLength.Error(nil)
			}
			op = OpCode(it.value[0])
			haveOp = true
		case tagPayload:
			payload = it.value
		case tagPadding:
			// ignored
		default:
			return digest, 0, nil, ErrorInvalidItemTag.Error(nil)
		}
	}
	if !haveDigest || !haveOp {
		return digest, 0, nil, ErrorNotEnoughData.Error(nil)
	}
	return digest, op, payload, nil
}

// BuildResponseBody lays out a response's TLV body: an OPCODE item set to
// either opResponse (success) or opError (failure), and a PAYLOAD item
// carrying the result bytes or, on failure, the single ServerErrorCode
// byte.
func buildResponseBody(marker OpCode, value []byte) []byte {
	buf := make([]byte, 0, 3+1+3+len(value))
	buf = encodeItem(buf, tagOpCode, []byte{byte(marker)})
	buf = encodeItem(buf, tagPayload, value)
	return buf
}

// ParseResponseBody decodes a response body into the marker opcode
// (opResponse/opError) and its payload, matching the upstream
// KeylessResponseTlvParser: PADDING items are accepted and ignored, any
// other tag is a format error.
func ParseResponseBody(body []byte) (marker OpCode, value []byte, ferr liberr.Error) {
	items, err := parseItems(body)
	if err != nil {
		return 0, nil, err
	}

	haveOp := false
	for _, it := range items {
		switch it.tag {
		case tagOpCode:
			if len(it.value) != 1 {
				return 0, nil, ErrorInvalidItemLength.Error(nil)
			}
			marker = OpCode(it.value[0])
			haveOp = true
		case tagPayload:
			value = it.value
		case tagPadding:
			// ignored
		default:
			return 0, nil, ErrorInvalidItemTag.Error(nil)
		}
	}
	if !haveOp {
		return 0, nil, ErrorInvalidOpCode.Error(nil)
	}
	if marker != opResponse && marker != opError {
		return 0, nil, ErrorInvalidOpCode.Error(nil)
	}
	return marker, value, nil
}
