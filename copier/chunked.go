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

package copier

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sabouaram/netproxy/idlewheel"
)

const defaultChunkBufferSize = 32 * 1024

// ChunkedEncoder turns a stream of reads from an io.Reader into
// "<hex-len>\r\n<chunk>\r\n"-framed output terminated by "0\r\n\r\n". The
// very first chunk (and the terminator when no chunk was ever written)
// omits the leading CRLF, since there is no previous chunk's trailer to
// close off; every later chunk's header — and the terminator once at
// least one chunk was written — is prefixed with one.
type ChunkedEncoder struct {
	Idle *idlewheel.Handle

	totalWritten int64
	active       bool
}

// IsActive reports whether any byte was read or written since the last
// ResetActive call, for idle-wheel integration.
func (e *ChunkedEncoder) IsActive() bool { return e.active }

// ResetActive clears the activity flag; callers invoke this once per idle
// tick after observing IsActive.
func (e *ChunkedEncoder) ResetActive() { e.active = false }

func (e *ChunkedEncoder) markActive() {
	e.active = true
	if e.Idle != nil {
		e.Idle.ResetActive()
	}
}

// Encode reads from src until EOF, writing the chunked-coded equivalent to
// dst, and returns the total number of bytes written (including framing).
func (e *ChunkedEncoder) Encode(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, defaultChunkBufferSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			e.markActive()
			if err := e.writeChunk(dst, buf[:n]); err != nil {
				return e.totalWritten, err
			}
		}
		if rerr == io.EOF {
			e.markActive()
			return e.totalWritten, e.writeTerminator(dst)
		}
		if rerr != nil {
			return e.totalWritten, rerr
		}
	}
}

func (e *ChunkedEncoder) writeChunk(dst io.Writer, data []byte) error {
	var header string
	if e.totalWritten == 0 {
		header = fmt.Sprintf("%x\r\n", len(data))
	} else {
		header = fmt.Sprintf("\r\n%x\r\n", len(data))
	}
	if err := e.writeAll(dst, []byte(header)); err != nil {
		return err
	}
	return e.writeAll(dst, data)
}

func (e *ChunkedEncoder) writeTerminator(dst io.Writer) error {
	var terminator string
	if e.totalWritten == 0 {
		terminator = "0\r\n\r\n"
	} else {
		terminator = "\r\n0\r\n\r\n"
	}
	return e.writeAll(dst, []byte(terminator))
}

func (e *ChunkedEncoder) writeAll(dst io.Writer, b []byte) error {
	n, err := dst.Write(b)
	e.totalWritten += int64(n)
	return err
}

type chunkedDecodeState uint8

const (
	stateReadChunkSize chunkedDecodeState = iota
	stateReadChunkData
	stateReadChunkCRLF
	stateReadTrailer
	stateDone
)

// ChunkedDecoder is an io.Reader that strips HTTP/1.1 chunked-transfer
// framing, implemented as an explicit byte-parser state machine
// (chunk-size line, chunk data, trailing CRLF, trailer headers).
type ChunkedDecoder struct {
	r         *bufio.Reader
	state     chunkedDecodeState
	remaining int64
}

func NewChunkedDecoder(r io.Reader) *ChunkedDecoder {
	return &ChunkedDecoder{r: bufio.NewReader(r), state: stateReadChunkSize}
}

// Read implements io.Reader, returning decoded chunk data and io.EOF once
// the terminating "0\r\n" chunk and any trailer headers have been
// consumed.
func (d *ChunkedDecoder) Read(p []byte) (int, error) {
	for {
		switch d.state {
		case stateDone:
			return 0, io.EOF

		case stateReadChunkSize:
			line, err := d.r.ReadString('\n')
			if err != nil {
				return 0, err
			}
			line = strings.TrimRight(line, "\r\n")
			if idx := strings.IndexByte(line, ';'); idx >= 0 {
				line = line[:idx] // strip chunk-extensions
			}
			size, perr := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
			if perr != nil || size < 0 {
				return 0, ErrorMalformedChunkSize.Error(perr)
			}
			if size == 0 {
				d.state = stateReadTrailer
				continue
			}
			d.remaining = size
			d.state = stateReadChunkData

		case stateReadChunkData:
			if len(p) == 0 {
				return 0, nil
			}
			toRead := int64(len(p))
			if toRead > d.remaining {
				toRead = d.remaining
			}
			n, err := d.r.Read(p[:toRead])
			d.remaining -= int64(n)
			if err != nil {
				if err == io.EOF {
					return n, ErrorTruncatedChunk.Error(nil)
				}
				return n, err
			}
			if d.remaining == 0 {
				d.state = stateReadChunkCRLF
			}
			return n, nil

		case stateReadChunkCRLF:
			if _, err := d.r.Discard(2); err != nil {
				return 0, ErrorTruncatedChunk.Error(err)
			}
			d.state = stateReadChunkSize

		case stateReadTrailer:
			line, err := d.r.ReadString('\n')
			if err != nil {
				return 0, err
			}
			if strings.TrimRight(line, "\r\n") == "" {
				d.state = stateDone
				return 0, io.EOF
			}
			// discard trailer header line, stay in stateReadTrailer
		}
	}
}
