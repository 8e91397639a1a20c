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

package certagent

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

var mpHandle codec.MsgpackHandle

// wireRequest is the msgpack-encoded datagram sent to the generator (spec
// §4.8: "{host, service, usage, optional cert DER}").
type wireRequest struct {
	Host    string `codec:"host"`
	Service string `codec:"service"`
	Usage   string `codec:"usage"`
	CertDER []byte `codec:"cert_der,omitempty"`
}

// wireResponse carries the generated chain, private key and the
// generator-chosen TTL (0 meaning "use the protective default").
type wireResponse struct {
	Chain [][]byte `codec:"chain"`
	Key   []byte   `codec:"key"`
	TTL   uint32   `codec:"ttl"`
}

func encodeRequest(req wireRequest) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &mpHandle)
	if err := enc.Encode(req); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeResponse(data []byte) (wireResponse, error) {
	var resp wireResponse
	dec := codec.NewDecoder(bytes.NewReader(data), &mpHandle)
	err := dec.Decode(&resp)
	return resp, err
}

func decodeRequest(data []byte) (wireRequest, error) {
	var req wireRequest
	dec := codec.NewDecoder(bytes.NewReader(data), &mpHandle)
	err := dec.Decode(&req)
	return req, err
}

func encodeResponse(resp wireResponse) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &mpHandle)
	if err := enc.Encode(resp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
