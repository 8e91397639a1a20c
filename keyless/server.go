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
	"io"
	"net"

	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"

	liberr "github.com/sabouaram/netproxy/errors"
)

// Handler serves the keyless protocol's server role: for each request
// frame, look up the targeted key by digest and perform the requested
// RSA/ECDSA operation, replying with a framed response carrying the
// result or a ServerErrorCode.
type Handler struct {
	Store *KeyStore
	Log   func() liblog.Logger
}

// Serve reads and answers request frames off conn until it hits EOF or a
// framing error; it does not close conn. Multiple requests may be
// pipelined back-to-back without waiting for earlier replies, matching
// how a remote Client multiplexes calls over the same connection.
func (h *Handler) Serve(conn net.Conn) liberr.Error {
	for {
		id, bodyLen, herr := readHeader(conn)
		if herr != nil {
			if isCleanClose(herr) {
				return nil
			}
			return herr
		}

		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(conn, body); err != nil {
			return ErrorInvalidMessageLength.Error(err)
		}

		if rerr := h.handleOne(conn, id, body); rerr != nil {
			return rerr
		}
	}
}

func (h *Handler) handleOne(conn net.Conn, id uint32, body []byte) liberr.Error {
	digest, op, payload, perr := ParseRequestBody(body)
	if perr != nil {
		return h.reply(conn, id, ServerErrorFormatError)
	}

	key := h.Store.Lookup(digest)
	if key == nil {
		h.logDenied(digest, op, ServerErrorKeyNotFound)
		return h.reply(conn, id, ServerErrorKeyNotFound)
	}

	result, xerr := Execute(op, key, payload)
	if xerr != nil {
		h.logDenied(digest, op, ServerErrorCryptographyFailure)
		return h.reply(conn, id, ServerErrorCryptographyFailure)
	}

	resp := buildResponseBody(opResponse, result)
	if werr := writeHeader(conn, id, len(resp)); werr != nil {
		return werr
	}
	_, werr := conn.Write(resp)
	if werr != nil {
		return ErrorInvalidMessageLength.Error(werr)
	}
	return nil
}

func (h *Handler) reply(conn net.Conn, id uint32, code ServerErrorCode) liberr.Error {
	resp := buildResponseBody(opError, []byte{byte(code)})
	if werr := writeHeader(conn, id, len(resp)); werr != nil {
		return werr
	}
	_, werr := conn.Write(resp)
	if werr != nil {
		return ErrorInvalidMessageLength.Error(werr)
	}
	return nil
}

func (h *Handler) logDenied(digest Digest, op OpCode, code ServerErrorCode) {
	if h.Log == nil {
		return
	}
	log := h.Log()
	if log == nil {
		return
	}
	log.Entry(loglvl.WarnLevel, "keyless request denied").
		FieldAdd("opcode", op.String()).
		FieldAdd("reason", code.String()).
		Log()
}

// isCleanClose reports whether herr wraps an io.EOF, the expected way a
// connection ends between requests rather than mid-frame.
func isCleanClose(herr liberr.Error) bool {
	return herr.HasError(io.EOF)
}
