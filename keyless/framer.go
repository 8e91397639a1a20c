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

import "io"

// Framer implements mux.Framer for the keyless wire protocol. WriteRequest
// expects payload already built by BuildRequestBody; ReadResponse returns
// the response's marker opcode (opResponse/opError) as the first byte of
// the returned slice, followed by its value, so that a connection-level
// framing problem (caught here, returned as err) stays distinct from a
// per-request protocol error (opError), which must not tear down the
// shared multiplexed connection. Client unwraps that leading byte.
type Framer struct{}

func (Framer) WriteRequest(w io.Writer, id uint32, payload []byte) error {
	if err := writeHeader(w, id, len(payload)); err != nil {
		return err
	}
	_, werr := w.Write(payload)
	return werr
}

func (Framer) ReadResponse(r io.Reader) (id uint32, payload []byte, err error) {
	id, bodyLen, ferr := readHeader(r)
	if ferr != nil {
		return 0, nil, ferr
	}

	body := make([]byte, bodyLen)
	if _, rerr := io.ReadFull(r, body); rerr != nil {
		return 0, nil, ErrorInvalidMessageLength.Error(rerr)
	}

	marker, value, perr := ParseResponseBody(body)
	if perr != nil {
		return 0, nil, perr
	}

	out := make([]byte, 1+len(value))
	out[0] = byte(marker)
	copy(out[1:], value)
	return id, out, nil
}
