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

// Package icap implements the ICAP (RFC 3507) REQMOD/RESPMOD client role:
// message framing with the Encapsulated header, preview negotiation with
// "100 Continue", chunked body transfer, and the X-Client-IP/
// X-Client-Username/X-Transformed-From extension headers g3proxy's ICAP
// client attaches to every adapted request.
package icap

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/sabouaram/netproxy/errors"
)

const DefaultMaxHeaderSize = 64 * 1024

// readStartLine reads one CRLF-terminated line (the ICAP request or status
// line) bounded by maxSize.
func readStartLine(r *bufio.Reader, maxSize int) (string, errors.Error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return "", ErrorConnectionClosed.Error(err)
		}
		return "", ErrorConnectionClosed.Error(err)
	}
	if len(line) > maxSize {
		return "", ErrorHeaderTooLarge.Error(nil)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readHeaders reads a CRLF-terminated header block (ending at the blank
// line) via textproto, bounded by maxSize.
func readHeaders(r *bufio.Reader, maxSize int) (textproto.MIMEHeader, errors.Error) {
	tp := textproto.NewReader(r)
	hdr, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, ErrorInvalidHeaderLine.Error(err)
	}
	total := 0
	for k, vs := range hdr {
		total += len(k)
		for _, v := range vs {
			total += len(v)
		}
	}
	if total > maxSize {
		return nil, ErrorHeaderTooLarge.Error(nil)
	}
	return hdr, nil
}

// encapsulatedOffsets builds the value of an Encapsulated header from the
// ordered list of (part-name, byte-offset) pairs present in a message, per
// RFC 3507 §4.4.1 (e.g. "req-hdr=0, req-body=412" or "null-body=0").
func encapsulatedOffsets(parts []encPart) string {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		segs = append(segs, fmt.Sprintf("%s=%d", p.name, p.offset))
	}
	return strings.Join(segs, ", ")
}

type encPart struct {
	name   string
	offset int
}

// parseEncapsulated parses an Encapsulated header value into its named
// offsets, preserving order.
func parseEncapsulated(value string) ([]encPart, errors.Error) {
	if value == "" {
		return nil, ErrorNoEncapsulatedHeader.Error(nil)
	}
	fields := strings.Split(value, ",")
	parts := make([]encPart, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			return nil, ErrorInvalidEncapsulated.Error(nil)
		}
		off, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, ErrorInvalidEncapsulated.Error(err)
		}
		parts = append(parts, encPart{name: strings.TrimSpace(kv[0]), offset: off})
	}
	return parts, nil
}

// writeChunk writes one chunked-transfer-coding chunk; size 0 ends the
// stream with the terminating "0\r\n\r\n" chunk.
func writeChunk(w io.Writer, data []byte) error {
	if _, err := fmt.Fprintf(w, "%x\r\n", len(data)); err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// writeIeofChunk writes ICAP's preview-termination marker: a zero-size
// chunk carrying the "ieof" extension, signalling "this was the entire
// body, not just the preview".
func writeIeofChunk(w io.Writer) error {
	_, err := io.WriteString(w, "0; ieof\r\n\r\n")
	return err
}

// readChunkedBody reads a full chunked-transfer-coding body, returning the
// reassembled bytes and whether the stream ended on an "ieof" marker
// rather than a plain zero chunk.
func readChunkedBody(r *bufio.Reader, maxSize int) ([]byte, bool, errors.Error) {
	var out []byte
	for {
		sizeLine, err := r.ReadString('\n')
		if err != nil {
			return nil, false, ErrorChunkedBody.Error(err)
		}
		sizeLine = strings.TrimRight(sizeLine, "\r\n")
		ieof := false
		sizeField := sizeLine
		if idx := strings.IndexByte(sizeLine, ';'); idx >= 0 {
			sizeField = sizeLine[:idx]
			if strings.Contains(sizeLine[idx:], "ieof") {
				ieof = true
			}
		}
		size, perr := strconv.ParseInt(strings.TrimSpace(sizeField), 16, 64)
		if perr != nil {
			return nil, false, ErrorChunkedBody.Error(perr)
		}
		if size == 0 {
			// consume the trailing CRLF (or trailer block, unused here)
			if _, err := r.ReadString('\n'); err != nil && err != io.EOF {
				return nil, false, ErrorChunkedBody.Error(err)
			}
			return out, ieof, nil
		}
		if maxSize > 0 && len(out)+int(size) > maxSize {
			return nil, false, ErrorPreviewTooLarge.Error(nil)
		}
		chunk := make([]byte, size)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, false, ErrorChunkedBody.Error(err)
		}
		out = append(out, chunk...)
		// trailing CRLF after each chunk's data
		if _, err := io.ReadFull(r, make([]byte, 2)); err != nil {
			return nil, false, ErrorChunkedBody.Error(err)
		}
	}
}
