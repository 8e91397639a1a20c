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

// Package smtp implements the SMTP STARTTLS/QUIT interception helpers: a
// line-based reader bounded by a maximum line length and an
// idle timeout, a response encoder for synthesizing local error replies,
// and the QUIT handshake used to cleanly end an intercepted session on
// either side.
package smtp

import (
	"bufio"
	"io"
	"net"
	"time"

	"github.com/sabouaram/netproxy/errors"
)

const DefaultMaxLineSize = 2048

// LineReader reads CRLF-terminated lines with a maximum length and an
// optional per-read deadline, mirroring the line-recv-buffer idiom this
// repo's other packages apply to framed protocols.
type LineReader struct {
	r          *bufio.Reader
	conn       net.Conn // non-nil enables SetReadDeadline per read
	maxLine    int
	readTimeout time.Duration
}

func NewLineReader(r io.Reader, maxLine int, readTimeout time.Duration) *LineReader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	lr := &LineReader{r: bufio.NewReaderSize(r, maxLine), maxLine: maxLine, readTimeout: readTimeout}
	if c, ok := r.(net.Conn); ok {
		lr.conn = c
	}
	return lr
}

// ReadLine reads one line, excluding the trailing CRLF/LF. It enforces
// maxLine and, when the underlying reader is a net.Conn, readTimeout.
func (lr *LineReader) ReadLine() ([]byte, errors.Error) {
	if lr.conn != nil && lr.readTimeout > 0 {
		if err := lr.conn.SetReadDeadline(time.Now().Add(lr.readTimeout)); err != nil {
			return nil, ErrorReadTimeout.Error(err)
		}
	}

	line, err := lr.r.ReadSlice('\n')
	if err != nil {
		if err == bufio.ErrBufferFull {
			return nil, ErrorLineTooLong.Error(nil)
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrorReadTimeout.Error(err)
		}
		if err == io.EOF {
			return nil, ErrorClosed.Error(nil)
		}
		return nil, ErrorClosed.Error(err)
	}

	if len(line) > lr.maxLine {
		return nil, ErrorLineTooLong.Error(nil)
	}

	line = trimCRLF(line)
	return line, nil
}

func trimCRLF(b []byte) []byte {
	n := len(b)
	for n > 0 && (b[n-1] == '\n' || b[n-1] == '\r') {
		n--
	}
	return b[:n]
}
