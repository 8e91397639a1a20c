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
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sabouaram/netproxy/errors"
)

const (
	StatusContinue          = 100
	StatusOK                = 200
	StatusNoContentModified = 204
	StatusBadRequest        = 400
	StatusServiceNotFound   = 404
	StatusBadComposition    = 408
	StatusTooLarge          = 413
	StatusServerError       = 500
	StatusServiceOverloaded = 503
)

// Response is one ICAP server reply: the status line, ICAP headers, and
// the encapsulated HTTP response header/body the server may have adapted.
type Response struct {
	StatusCode int
	Reason     string
	Headers    map[string]string

	HTTPRequestHeader  []byte
	HTTPResponseHeader []byte
	Body               []byte
}

// NoModificationNeeded reports a "204 No Content" reply, meaning the
// caller should forward the original message unchanged.
func (rs *Response) NoModificationNeeded() bool {
	return rs.StatusCode == StatusNoContentModified
}

// WriteContinue writes the ICAP "100 Continue" interim reply a server
// sends after accepting a preview and wanting the rest of the body.
func WriteContinue(w io.Writer) error {
	_, err := io.WriteString(w, "ICAP/1.0 100 Continue\r\n\r\n")
	return err
}

// WriteNoModification writes a "204 No Content" reply telling the client
// its message needs no adaptation.
func WriteNoModification(w io.Writer, istag string) error {
	_, err := fmt.Fprintf(w, "ICAP/1.0 204 No Content\r\nISTag: %s\r\n\r\n", istag)
	return err
}

// Encode writes the full response, including its encapsulated HTTP
// header(s) and whole body (if any) chunk-encoded.
func (rs *Response) Encode(w io.Writer) error {
	bodyKind := ""
	if len(rs.Body) > 0 {
		bodyKind = "body"
	}

	var parts []encPart
	offset := 0
	if rs.HTTPRequestHeader != nil {
		parts = append(parts, encPart{name: "req-hdr", offset: offset})
		offset += len(rs.HTTPRequestHeader)
	}
	if rs.HTTPResponseHeader != nil {
		parts = append(parts, encPart{name: "res-hdr", offset: offset})
		offset += len(rs.HTTPResponseHeader)
	}
	parts = append(parts, encPart{name: bodyKindOrNull(bodyKind, "res-body"), offset: offset})

	if _, err := fmt.Fprintf(w, "ICAP/1.0 %d %s\r\n", rs.StatusCode, rs.Reason); err != nil {
		return err
	}
	for k, v := range rs.Headers {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "Encapsulated: %s\r\n\r\n", encapsulatedOffsets(parts)); err != nil {
		return err
	}

	if rs.HTTPRequestHeader != nil {
		if _, err := w.Write(rs.HTTPRequestHeader); err != nil {
			return err
		}
	}
	if rs.HTTPResponseHeader != nil {
		if _, err := w.Write(rs.HTTPResponseHeader); err != nil {
			return err
		}
	}
	if bodyKind == "" {
		return nil
	}
	if err := writeChunk(w, rs.Body); err != nil {
		return err
	}
	return writeChunk(w, nil)
}

// ParseResponse reads one ICAP status line, its headers, and the
// Encapsulated header's referenced blocks (if any).
func ParseResponse(r *bufio.Reader, maxHeaderSize, maxBodySize int) (*Response, errors.Error) {
	line, lerr := readStartLine(r, maxHeaderSize)
	if lerr != nil {
		return nil, lerr
	}
	code, reason, verr := parseStatusLine(line)
	if verr != nil {
		return nil, verr
	}

	hdr, herr := readHeaders(r, maxHeaderSize)
	if herr != nil {
		return nil, herr
	}
	rs := &Response{StatusCode: code, Reason: reason, Headers: flatten(hdr)}

	encValue := hdr.Get("Encapsulated")
	if encValue == "" {
		return rs, nil
	}
	parts, perr := parseEncapsulated(encValue)
	if perr != nil {
		return nil, perr
	}

	for i, p := range parts {
		switch p.name {
		case "req-hdr":
			block, err := readEmbeddedHeaderBlock(r)
			if err != nil {
				return nil, err
			}
			rs.HTTPRequestHeader = block
		case "res-hdr":
			block, err := readEmbeddedHeaderBlock(r)
			if err != nil {
				return nil, err
			}
			rs.HTTPResponseHeader = block
		case "req-body", "res-body", "opt-body":
			if i != len(parts)-1 {
				return nil, ErrorInvalidEncapsulated.Error(nil)
			}
			body, _, err := readChunkedBody(r, maxBodySize)
			if err != nil {
				return nil, err
			}
			rs.Body = body
		case "null-body":
		default:
			return nil, ErrorInvalidEncapsulated.Error(nil)
		}
	}
	return rs, nil
}

func parseStatusLine(line string) (int, string, errors.Error) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return 0, "", ErrorInvalidStatusLine.Error(nil)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, "", ErrorInvalidStatusLine.Error(err)
	}
	reason := ""
	if len(fields) == 3 {
		reason = fields[2]
	}
	return code, reason, nil
}
