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
	"net"
	"time"

	liberr "github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/mux"
)

// Client drives the REQMOD/RESPMOD client role over one persistent ICAP
// connection, reusing mux.Mux the same way keyless.Client does: one
// connection, many in-flight adaptations, correlated by Framer rather
// than by anything carried in the ICAP wire format itself.
type Client struct {
	mx            *mux.Mux
	maxHeaderSize int
	maxBodySize   int

	Host                 string
	ReqmodURI            string
	RespmodURI           string
	ClientAddr           string
	ClientUsername       string
	RespondSharedHeaders map[string]string
	PreviewSize          int // negative disables preview negotiation
}

// NewClient wraps conn with a Client. idleTimeout of 0 disables the mux's
// idle-close behavior.
func NewClient(conn net.Conn, idleTimeout time.Duration, maxHeaderSize, maxBodySize int) *Client {
	framer := NewFramer(maxHeaderSize, maxBodySize)
	return &Client{
		mx:            mux.New(conn, framer, idleTimeout),
		maxHeaderSize: framer.maxHeaderSize,
		maxBodySize:   maxBodySize,
		PreviewSize:   -1,
	}
}

func (c *Client) Close() { c.mx.Close() }

// Reqmod adapts an outbound HTTP request, returning either the original
// request unchanged (server replied 204) or the adapted HTTP request
// header/body the server returned.
func (c *Client) Reqmod(httpRequestHeader []byte, body []byte) (*Response, liberr.Error) {
	rq := &Request{
		Method:               REQMOD,
		URI:                  c.ReqmodURI,
		Host:                 c.Host,
		HTTPRequestHeader:    httpRequestHeader,
		Body:                 body,
		ClientAddr:           c.ClientAddr,
		ClientUsername:       c.ClientUsername,
		TransformedFrom:      "HTTP/1.1",
		RespondSharedHeaders: c.RespondSharedHeaders,
	}
	return c.call(rq)
}

// Respmod adapts an inbound HTTP response, returning either the original
// response unchanged (server replied 204) or the adapted HTTP response
// header/body the server returned.
func (c *Client) Respmod(httpRequestHeader, httpResponseHeader, body []byte) (*Response, liberr.Error) {
	rq := &Request{
		Method:               RESPMOD,
		URI:                  c.RespmodURI,
		Host:                 c.Host,
		HTTPRequestHeader:    httpRequestHeader,
		HTTPResponseHeader:   httpResponseHeader,
		Body:                 body,
		ClientAddr:           c.ClientAddr,
		ClientUsername:       c.ClientUsername,
		TransformedFrom:      "HTTP/2.0",
		RespondSharedHeaders: c.RespondSharedHeaders,
	}
	return c.call(rq)
}

func (c *Client) call(rq *Request) (*Response, liberr.Error) {
	var buf bytes.Buffer
	// mux.Mux models one request as one response with no interim reply, so
	// a preview is only worth sending when the whole body fits inside it:
	// the exchange then ends on "ieof" with nothing left to continue.
	// Larger bodies skip preview negotiation entirely rather than risk a
	// "100 Continue" this transport has no way to act on.
	if c.PreviewSize >= 0 && len(rq.Body) > 0 && len(rq.Body) <= c.PreviewSize {
		if _, err := rq.EncodePreview(&buf, c.PreviewSize); err != nil {
			return nil, ErrorConnectionClosed.Error(err)
		}
	} else if err := rq.Encode(&buf); err != nil {
		return nil, ErrorConnectionClosed.Error(err)
	}

	raw, rerr := c.mx.Request(buf.Bytes())
	if rerr != nil {
		return nil, rerr
	}

	rs, perr := ParseResponse(bufio.NewReaderSize(bytes.NewReader(raw), c.maxHeaderSize), c.maxHeaderSize, c.maxBodySize)
	if perr != nil {
		return nil, perr
	}
	return rs, nil
}
