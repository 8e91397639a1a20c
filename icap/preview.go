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
	"strconv"

	"github.com/sabouaram/netproxy/errors"
)

// PreviewReader tracks the state of one REQMOD/RESPMOD exchange's preview
// negotiation on the server side: whether the client declared a Preview
// size, whether ParseRequest already received the complete body within
// that preview (client set "ieof"), and, if not, how to pull the
// remainder after replying "100 Continue".
type PreviewReader struct {
	size     int
	declared bool
	complete bool
}

// NewPreviewReader inspects a Request already parsed by ParseRequest,
// reading its Preview header and whether the chunked body ParseRequest
// already consumed ended on an "ieof" marker.
func NewPreviewReader(rq *Request) *PreviewReader {
	pr := &PreviewReader{complete: true}
	raw, ok := rq.Headers["Preview"]
	if !ok {
		return pr
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return pr
	}
	pr.declared = true
	pr.size = n
	pr.complete = rq.BodyIeof
	return pr
}

// Declared reports whether the client negotiated a preview at all.
func (pr *PreviewReader) Declared() bool { return pr.declared }

// Complete reports whether the body already received is the entire body
// (true for non-preview requests, and for previews the client marked with
// "ieof" because the whole body fit inside the preview window).
func (pr *PreviewReader) Complete() bool { return pr.complete }

// Size returns the negotiated preview size in bytes.
func (pr *PreviewReader) Size() int { return pr.size }

// ReadRemainder reads the rest of a chunked body after the server has
// replied "100 Continue" to a preview that was not already Complete,
// returning the bytes to append after whatever the preview already
// delivered.
func ReadRemainder(r *bufio.Reader, maxBodySize int) ([]byte, errors.Error) {
	body, _, err := readChunkedBody(r, maxBodySize)
	return body, err
}
