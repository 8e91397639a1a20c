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

package mux_test

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/netproxy/mux"
)

// lenPrefixFramer frames a request/response as
// [u32 id][u32 length][payload], used only to exercise mux.Mux.
type lenPrefixFramer struct{}

func (lenPrefixFramer) WriteRequest(w io.Writer, id uint32, payload []byte) error {
	hdr := make([]byte, 8)
	binary.BigEndian.PutUint32(hdr[0:4], id)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	if _, e := w.Write(hdr); e != nil {
		return e
	}
	_, e := w.Write(payload)
	return e
}

func (lenPrefixFramer) ReadResponse(r io.Reader) (uint32, []byte, error) {
	hdr := make([]byte, 8)
	if _, e := io.ReadFull(r, hdr); e != nil {
		return 0, nil, e
	}
	id := binary.BigEndian.Uint32(hdr[0:4])
	n := binary.BigEndian.Uint32(hdr[4:8])
	payload := make([]byte, n)
	if n > 0 {
		if _, e := io.ReadFull(r, payload); e != nil {
			return 0, nil, e
		}
	}
	return id, payload, nil
}

// echoServer reads framed requests off conn and writes back the same
// frame, optionally reordering every other response to prove the mux
// correlates by id rather than arrival order.
func echoServer(conn net.Conn, reorder bool) {
	f := lenPrefixFramer{}
	type frame struct {
		id      uint32
		payload []byte
	}
	var pending []frame

	for {
		id, payload, err := f.ReadResponse(conn)
		if err != nil {
			return
		}
		if reorder {
			pending = append(pending, frame{id, payload})
			if len(pending) == 2 {
				_ = f.WriteRequest(conn, pending[1].id, pending[1].payload)
				_ = f.WriteRequest(conn, pending[0].id, pending[0].payload)
				pending = nil
			}
			continue
		}
		_ = f.WriteRequest(conn, id, payload)
	}
}

var _ = Describe("Mux", func() {
	It("correlates a single request/response round trip", func() {
		client, server := net.Pipe()
		go echoServer(server, false)

		m := mux.New(client, lenPrefixFramer{}, 0)
		DeferCleanup(m.Close)

		resp, e := m.Request([]byte("hello"))
		Expect(e).To(BeNil())
		Expect(resp).To(Equal([]byte("hello")))
	})

	It("correlates out-of-order responses by id", func() {
		client, server := net.Pipe()
		go echoServer(server, true)

		m := mux.New(client, lenPrefixFramer{}, 0)
		DeferCleanup(m.Close)

		type result struct {
			payload []byte
			err     error
		}
		results := make(chan result, 2)

		go func() {
			p, e := m.Request([]byte("first"))
			results <- result{p, e}
		}()
		go func() {
			p, e := m.Request([]byte("second"))
			results <- result{p, e}
		}()

		seen := map[string]bool{}
		for i := 0; i < 2; i++ {
			r := <-results
			Expect(r.err).To(BeNil())
			seen[string(r.payload)] = true
		}
		Expect(seen).To(HaveKey("first"))
		Expect(seen).To(HaveKey("second"))
	})

	It("fails every outstanding request when the peer closes", func() {
		client, server := net.Pipe()

		m := mux.New(client, lenPrefixFramer{}, 0)
		DeferCleanup(m.Close)

		errCh := make(chan error, 1)
		go func() {
			_, e := m.Request([]byte("never answered"))
			errCh <- e
		}()

		time.Sleep(20 * time.Millisecond)
		_ = server.Close()

		Eventually(errCh, time.Second).Should(Receive(HaveOccurred()))
	})
})
