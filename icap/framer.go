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

import (
	"bufio"
	"io"
	"sync"
)

// Framer adapts ICAP's request/response exchange to mux.Mux. Unlike
// keyless, ICAP carries no correlation id on the wire: RFC 3507 never
// defines pipelining, so a given ICAP connection delivers exactly one
// response for each request, strictly in send order. Framer exploits that
// by queuing the id it was asked to send with in sendOrder and handing
// the oldest one back to whatever response ReadResponse next parses off
// the wire, rather than decoding an id from the message itself.
type Framer struct {
	maxHeaderSize int
	maxBodySize   int

	mu        sync.Mutex
	sendOrder []uint32

	br *bufio.Reader
}

// NewFramer builds a Framer bounded by maxHeaderSize/maxBodySize (0 uses
// DefaultMaxHeaderSize and an unbounded body).
func NewFramer(maxHeaderSize, maxBodySize int) *Framer {
	if maxHeaderSize <= 0 {
		maxHeaderSize = DefaultMaxHeaderSize
	}
	return &Framer{maxHeaderSize: maxHeaderSize, maxBodySize: maxBodySize}
}

// WriteRequest writes payload (a fully-encoded ICAP request, built by
// Client.call via Request.Encode) as-is and records id as the next one
// awaiting a response.
func (f *Framer) WriteRequest(w io.Writer, id uint32, payload []byte) error {
	f.mu.Lock()
	f.sendOrder = append(f.sendOrder, id)
	f.mu.Unlock()

	_, err := w.Write(payload)
	return err
}

// ReadResponse parses the next ICAP response off r and pairs it with the
// oldest outstanding request id, returning the response's raw encoded
// bytes as payload for Client.call to re-parse into a Response.
func (f *Framer) ReadResponse(r io.Reader) (uint32, []byte, error) {
	if f.br == nil {
		f.br = bufio.NewReaderSize(r, f.maxHeaderSize)
	}

	rs, err := ParseResponse(f.br, f.maxHeaderSize, f.maxBodySize)
	if err != nil {
		return 0, nil, err
	}

	f.mu.Lock()
	var id uint32
	if len(f.sendOrder) > 0 {
		id = f.sendOrder[0]
		f.sendOrder = f.sendOrder[1:]
	}
	f.mu.Unlock()

	w := &byteSliceWriter{}
	if e := rs.Encode(w); e != nil {
		return 0, nil, e
	}
	return id, w.buf, nil
}

type byteSliceWriter struct{ buf []byte }

func (w *byteSliceWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}
