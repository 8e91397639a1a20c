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

// Package tlsinspect reconstructs a TLS ClientHello handshake message that
// may have been split across several TLS record (or, upstream of the
// record layer, raw read()) boundaries, then extracts the SNI and ALPN
// values a transparent interceptor needs to pick an upstream certificate
// and negotiate a protocol.
package tlsinspect

import "github.com/sabouaram/netproxy/errors"

const DefaultMaxMessageSize = 1 << 14 // 16 KiB, matches the TLS record size limit

const handshakeHeaderSize = 4

type handshakeHeader struct {
	msgType   uint8
	msgLength uint32
}

func tryParseHandshakeHeader(data []byte) (*handshakeHeader, bool) {
	if len(data) < handshakeHeaderSize {
		return nil, false
	}
	return &handshakeHeader{
		msgType:   data[0],
		msgLength: uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]),
	}, true
}

func (h *handshakeHeader) encodedCap() int {
	return handshakeHeaderSize + int(h.msgLength)
}

// Coalescer accumulates handshake-message bytes fed to it fragment by
// fragment (one fragment per TLS record payload, or per raw read, ahead of
// TLS record reassembly) until a complete handshake message is available.
type Coalescer struct {
	maxMessageSize uint32
	header         *handshakeHeader
	buf            []byte
}

func NewCoalescer(maxMessageSize uint32) *Coalescer {
	if maxMessageSize == 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Coalescer{maxMessageSize: maxMessageSize}
}

// IsEmpty reports whether any bytes have been fed to the coalescer yet.
func (c *Coalescer) IsEmpty() bool {
	return len(c.buf) == 0
}

// CoalesceFragment appends as much of data as belongs to the current
// handshake message, returning the number of bytes consumed from data
// (the remainder, if any, belongs to a subsequent message and is left for
// the caller to resubmit).
func (c *Coalescer) CoalesceFragment(data []byte) (int, errors.Error) {
	if len(c.buf) == 0 {
		return c.addFirstFragment(data)
	}

	if c.header != nil {
		needed := c.header.encodedCap() - len(c.buf)
		if needed >= len(data) {
			c.buf = append(c.buf, data...)
			return len(data), nil
		}
		c.buf = append(c.buf, data[:needed]...)
		return needed, nil
	}

	c.buf = append(c.buf, data...)
	hdr, ok := tryParseHandshakeHeader(c.buf)
	if !ok {
		return len(data), nil
	}
	if hdr.msgLength > c.maxMessageSize {
		return 0, ErrorMessageTooLarge.Error(nil)
	}
	c.header = hdr

	msgCap := hdr.encodedCap()
	if msgCap > len(c.buf) {
		return len(data), nil
	}
	overrun := len(c.buf) - msgCap
	c.buf = c.buf[:msgCap]
	return len(data) - overrun, nil
}

func (c *Coalescer) addFirstFragment(data []byte) (int, errors.Error) {
	hdr, ok := tryParseHandshakeHeader(data)
	if !ok {
		c.buf = append(c.buf, data...)
		return len(data), nil
	}
	if hdr.msgLength > c.maxMessageSize {
		return 0, ErrorMessageTooLarge.Error(nil)
	}
	c.header = hdr

	msgCap := hdr.encodedCap()
	if msgCap >= len(data) {
		c.buf = append(c.buf, data...)
		return len(data), nil
	}
	c.buf = append(c.buf, data[:msgCap]...)
	return msgCap, nil
}

// ParseClientHello returns the reconstructed ClientHello once the
// coalescer holds a complete handshake message, or nil if more fragments
// are still needed.
func (c *Coalescer) ParseClientHello() (*ClientHello, errors.Error) {
	if c.header == nil {
		return nil, nil
	}
	if c.header.msgType != handshakeTypeClientHello {
		return nil, ErrorInvalidMessageType.Error(nil)
	}
	if c.header.encodedCap() != len(c.buf) {
		return nil, nil
	}
	return parseClientHelloBody(c.buf[handshakeHeaderSize:])
}
