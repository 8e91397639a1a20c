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
	"fmt"
	"net"
	"time"

	liberr "github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/mux"
)

// Client multiplexes concurrent sign/decrypt calls over one persistent
// connection to a remote keyless server, correlating requests to
// responses by id via mux.Mux. This is what a TLS interceptor reaches
// for when the private key it needs lives on a remote signer rather than
// locally.
type Client struct {
	mux *mux.Mux
}

// NewClient wraps conn with a Client. idleTimeout of 0 disables the
// mux's idle-close behavior.
func NewClient(conn net.Conn, idleTimeout time.Duration) *Client {
	return &Client{mux: mux.New(conn, Framer{}, idleTimeout)}
}

func (c *Client) Close() {
	c.mux.Close()
}

// Sign asks the remote server to sign hashed (already digested by the
// algorithm op names) with the key identified by digest.
func (c *Client) Sign(digest Digest, op OpCode, hashed []byte) ([]byte, liberr.Error) {
	return c.call(digest, op, hashed)
}

// Decrypt asks the remote server to RSA-decrypt ciphertext with the key
// identified by digest, using either PKCS#1v1.5 (OpRsaDecrypt) or raw
// (OpRsaRawDecrypt) decoding.
func (c *Client) Decrypt(digest Digest, op OpCode, ciphertext []byte) ([]byte, liberr.Error) {
	return c.call(digest, op, ciphertext)
}

func (c *Client) call(digest Digest, op OpCode, payload []byte) ([]byte, liberr.Error) {
	body, berr := BuildRequestBody(digest, op, payload)
	if berr != nil {
		return nil, berr
	}

	raw, rerr := c.mux.Request(body)
	if rerr != nil {
		return nil, rerr
	}
	if len(raw) < 1 {
		return nil, ErrorInvalidMessageLength.Error(nil)
	}

	marker, value := OpCode(raw[0]), raw[1:]
	if marker == opError {
		code := ServerErrorCode(0)
		if len(value) == 1 {
			code = ServerErrorCode(value[0])
		}
		return nil, ErrorServerError.Error(fmt.Errorf("%s", code))
	}
	return value, nil
}
