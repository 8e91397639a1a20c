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
	"bytes"
	"fmt"
	"io"

	"github.com/sabouaram/netproxy/errors"
)

type Method string

const (
	REQMOD  Method = "REQMOD"
	RESPMOD Method = "RESPMOD"
	OPTIONS Method = "OPTIONS"
)

// Request is one REQMOD/RESPMOD/OPTIONS exchange: the ICAP envelope plus
// the embedded HTTP message(s) it carries encapsulated, per RFC 3507.
// HTTPRequestHeader is always present for REQMOD; RESPMOD carries both the
// original HTTP request header (for context) and the HTTP response header
// being adapted. ClientAddr/ClientUsername/TransformedFrom mirror the
// X-Client-IP/X-Client-Username/X-Transformed-From extension headers
// g3proxy's ICAP client attaches to every adapted message.
type Request struct {
	Method  Method
	URI     string
	Host    string
	Headers map[string]string

	HTTPRequestHeader  []byte
	HTTPResponseHeader []byte
	Body               []byte
	BodyIeof           bool

	ClientAddr      string
	ClientUsername  string
	TransformedFrom string

	RespondSharedHeaders map[string]string
}

// adaptedHeaderBlock returns HTTPResponseHeader (for RESPMOD) or
// HTTPRequestHeader (for REQMOD) with the extension headers injected just
// before its terminating blank line, the way g3proxy's push_extended_headers
// does for the block it is about to encapsulate.
func (rq *Request) adaptedHeaderBlock() []byte {
	block := rq.HTTPResponseHeader
	if rq.Method == REQMOD || block == nil {
		block = rq.HTTPRequestHeader
	}
	if block == nil {
		return nil
	}

	trimmed := bytes.TrimSuffix(block, []byte("\r\n\r\n"))
	var buf bytes.Buffer
	buf.Write(trimmed)
	buf.WriteString("\r\n")
	if rq.TransformedFrom != "" {
		fmt.Fprintf(&buf, "X-Transformed-From: %s\r\n", rq.TransformedFrom)
	}
	if rq.ClientAddr != "" {
		fmt.Fprintf(&buf, "X-Client-IP: %s\r\n", rq.ClientAddr)
	}
	if rq.ClientUsername != "" {
		fmt.Fprintf(&buf, "X-Client-Username: %s\r\n", rq.ClientUsername)
	}
	for k, v := range rq.RespondSharedHeaders {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func (rq *Request) buildEncapsulated(bodyKind string) (reqHdr, adaptedHdr []byte, encValue string) {
	reqHdr = rq.HTTPRequestHeader
	adaptedHdr = rq.adaptedHeaderBlock()

	var parts []encPart
	offset := 0
	if rq.Method == RESPMOD {
		if reqHdr != nil {
			parts = append(parts, encPart{name: "req-hdr", offset: offset})
			offset += len(reqHdr)
		}
		parts = append(parts, encPart{name: "res-hdr", offset: offset})
		offset += len(adaptedHdr)
		parts = append(parts, encPart{name: bodyKindOrNull(bodyKind, "res-body"), offset: offset})
	} else {
		parts = append(parts, encPart{name: "req-hdr", offset: offset})
		offset += len(adaptedHdr)
		parts = append(parts, encPart{name: bodyKindOrNull(bodyKind, "req-body"), offset: offset})
	}
	return reqHdr, adaptedHdr, encapsulatedOffsets(parts)
}

func bodyKindOrNull(kind, name string) string {
	if kind == "" {
		return "null-body"
	}
	return name
}

func (rq *Request) writeEnvelope(w io.Writer, encValue string, previewSize int) error {
	if _, err := fmt.Fprintf(w, "%s %s ICAP/1.0\r\n", rq.Method, rq.URI); err != nil {
		return err
	}
	if rq.Host != "" {
		if _, err := fmt.Fprintf(w, "Host: %s\r\n", rq.Host); err != nil {
			return err
		}
	}
	for k, v := range rq.Headers {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
			return err
		}
	}
	if previewSize >= 0 {
		if _, err := fmt.Fprintf(w, "Preview: %d\r\n", previewSize); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "Encapsulated: %s\r\n\r\n", encValue); err != nil {
		return err
	}
	return nil
}

// Encode writes the full request, including its whole body (if any)
// chunk-encoded, with no preview negotiation.
func (rq *Request) Encode(w io.Writer) error {
	bodyKind := ""
	if len(rq.Body) > 0 {
		bodyKind = "body"
	}
	reqHdr, adaptedHdr, encValue := rq.buildEncapsulated(bodyKind)

	if err := rq.writeEnvelope(w, encValue, -1); err != nil {
		return err
	}
	if rq.Method == RESPMOD && reqHdr != nil {
		if _, err := w.Write(reqHdr); err != nil {
			return err
		}
	}
	if adaptedHdr != nil {
		if _, err := w.Write(adaptedHdr); err != nil {
			return err
		}
	}
	if bodyKind == "" {
		return nil
	}
	if err := writeChunk(w, rq.Body); err != nil {
		return err
	}
	return writeChunk(w, nil)
}

// EncodePreview writes the request with only the first previewSize bytes
// of Body, per RFC 3507 §4.5. If the whole body fits in the preview, the
// chunk stream ends with "ieof" and remainder is nil: the server already
// has everything and there is no continuation to send. Otherwise the
// stream ends on a plain zero chunk and remainder holds the rest of Body,
// to be sent via EncodeRemainder only if the server replies
// "100 Continue".
func (rq *Request) EncodePreview(w io.Writer, previewSize int) (remainder []byte, err error) {
	bodyKind := "body"
	if len(rq.Body) == 0 {
		bodyKind = ""
	}
	reqHdr, adaptedHdr, encValue := rq.buildEncapsulated(bodyKind)

	if err = rq.writeEnvelope(w, encValue, previewSize); err != nil {
		return nil, err
	}
	if rq.Method == RESPMOD && reqHdr != nil {
		if _, err = w.Write(reqHdr); err != nil {
			return nil, err
		}
	}
	if adaptedHdr != nil {
		if _, err = w.Write(adaptedHdr); err != nil {
			return nil, err
		}
	}
	if bodyKind == "" {
		return nil, nil
	}

	preview := rq.Body
	rest := []byte(nil)
	complete := true
	if len(preview) > previewSize {
		preview, rest = rq.Body[:previewSize], rq.Body[previewSize:]
		complete = false
	}
	if err = writeChunk(w, preview); err != nil {
		return nil, err
	}
	if complete {
		return nil, writeIeofChunk(w)
	}
	return rest, writeChunk(w, nil)
}

// EncodeRemainder finishes a preview exchange after the server replied
// "100 Continue", sending the rest of the body and the terminating chunk.
func EncodeRemainder(w io.Writer, remainder []byte) error {
	if len(remainder) > 0 {
		if err := writeChunk(w, remainder); err != nil {
			return err
		}
	}
	return writeChunk(w, nil)
}

// ParseRequest reads one REQMOD/RESPMOD/OPTIONS request line, its ICAP
// headers, the Encapsulated header's referenced blocks, and a
// chunk-encoded body (if the Encapsulated header declares one), bounded
// by maxHeaderSize for the header section and maxBodySize for the body.
func ParseRequest(r *bufio.Reader, maxHeaderSize, maxBodySize int) (*Request, errors.Error) {
	line, lerr := readStartLine(r, maxHeaderSize)
	if lerr != nil {
		return nil, lerr
	}
	method, uri, verr := parseRequestLine(line)
	if verr != nil {
		return nil, verr
	}

	hdr, herr := readHeaders(r, maxHeaderSize)
	if herr != nil {
		return nil, herr
	}

	rq := &Request{Method: method, URI: uri, Host: hdr.Get("Host"), Headers: flatten(hdr)}

	encValue := hdr.Get("Encapsulated")
	parts, perr := parseEncapsulated(encValue)
	if perr != nil {
		return nil, perr
	}

	if err := rq.readEncapsulatedParts(r, parts, maxBodySize); err != nil {
		return nil, err
	}
	return rq, nil
}

func (rq *Request) readEncapsulatedParts(r *bufio.Reader, parts []encPart, maxBodySize int) errors.Error {
	for i, p := range parts {
		switch p.name {
		case "req-hdr":
			block, err := readEmbeddedHeaderBlock(r)
			if err != nil {
				return err
			}
			rq.HTTPRequestHeader = block
		case "res-hdr":
			block, err := readEmbeddedHeaderBlock(r)
			if err != nil {
				return err
			}
			rq.HTTPResponseHeader = block
		case "req-body", "res-body", "opt-body":
			if i != len(parts)-1 {
				return ErrorInvalidEncapsulated.Error(nil)
			}
			body, ieof, err := readChunkedBody(r, maxBodySize)
			if err != nil {
				return err
			}
			rq.Body = body
			rq.BodyIeof = ieof
		case "null-body":
			// nothing follows
		default:
			return ErrorInvalidEncapsulated.Error(nil)
		}
	}
	return nil
}

func readEmbeddedHeaderBlock(r *bufio.Reader) ([]byte, errors.Error) {
	var buf bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, ErrorConnectionClosed.Error(err)
		}
		buf.WriteString(line)
		if line == "\r\n" || line == "\n" {
			break
		}
	}
	return buf.Bytes(), nil
}

func parseRequestLine(line string) (Method, string, errors.Error) {
	var method, uri, version string
	n, _ := fmt.Sscanf(line, "%s %s %s", &method, &uri, &version)
	if n != 3 {
		return "", "", ErrorInvalidStatusLine.Error(nil)
	}
	return Method(method), uri, nil
}

func flatten(hdr map[string][]string) map[string]string {
	out := make(map[string]string, len(hdr))
	for k, v := range hdr {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
