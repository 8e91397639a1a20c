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

package certagent_test

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/ugorji/go/codec"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/netproxy/certagent"
)

type fakeWireResponse struct {
	Chain [][]byte `codec:"chain"`
	Key   []byte   `codec:"key"`
	TTL   uint32   `codec:"ttl"`
}

// startFakeAgent runs a trivial UDP server that replies to every datagram
// with a fixed certificate chain and the given ttl.
func startFakeAgent(ttl uint32) *net.UDPConn {
	conn, e := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	Expect(e).NotTo(HaveOccurred())

	go func() {
		buf := make([]byte, 65536)
		var mp codec.MsgpackHandle
		for {
			n, raddr, e := conn.ReadFromUDP(buf)
			if e != nil {
				return
			}
			_ = n

			resp := fakeWireResponse{Chain: [][]byte{[]byte("fake-leaf-der")}, Key: []byte("fake-key-der"), TTL: ttl}
			var out bytes.Buffer
			enc := codec.NewEncoder(&out, &mp)
			_ = enc.Encode(resp)
			_, _ = conn.WriteToUDP(out.Bytes(), raddr)
		}
	}()

	return conn
}

var _ = Describe("Client", func() {
	It("fetches and caches a fake certificate", func() {
		agent := startFakeAgent(60)
		DeferCleanup(agent.Close)

		cfg := certagent.DefaultConfig(agent.LocalAddr().(*net.UDPAddr))
		client, e := certagent.New(cfg)
		Expect(e).To(BeNil())
		DeferCleanup(client.Close)

		key := certagent.FingerprintKey{Service: certagent.ServiceHTTP, Usage: certagent.UsageTLSServer, Domain: "example.com"}
		pair, e2 := client.Fetch(context.Background(), key, nil)
		Expect(e2).To(BeNil())
		Expect(pair.Chain).To(HaveLen(1))
		Expect(string(pair.Key)).To(Equal("fake-key-der"))
	})

	It("clamps a zero ttl to the protective default", func() {
		agent := startFakeAgent(0)
		DeferCleanup(agent.Close)

		cfg := certagent.DefaultConfig(agent.LocalAddr().(*net.UDPAddr))
		cfg.ProtectiveCacheTTL = 50 * time.Millisecond
		client, e := certagent.New(cfg)
		Expect(e).To(BeNil())
		DeferCleanup(client.Close)

		key := certagent.FingerprintKey{Service: certagent.ServiceSMTP, Usage: certagent.UsageTLCPSign, Domain: "mail.example.com"}
		pair, e2 := client.Fetch(context.Background(), key, nil)
		Expect(e2).To(BeNil())
		Expect(pair.ExpiresAt).To(BeTemporally("~", time.Now().Add(50*time.Millisecond), 30*time.Millisecond))
	})

	It("falls back to a stale cached entry when the backend is unreachable", func() {
		agent := startFakeAgent(1)
		cfg := certagent.DefaultConfig(agent.LocalAddr().(*net.UDPAddr))
		cfg.QueryWaitTimeout = 50 * time.Millisecond
		client, e := certagent.New(cfg)
		Expect(e).To(BeNil())
		DeferCleanup(client.Close)

		key := certagent.FingerprintKey{Service: certagent.ServiceHTTP, Usage: certagent.UsageTLSServer, Domain: "stale.example.com"}
		_, e2 := client.Fetch(context.Background(), key, nil)
		Expect(e2).To(BeNil())

		time.Sleep(1200 * time.Millisecond) // let the cached entry expire
		agent.Close()                       // backend now unreachable

		pair, e3 := client.Fetch(context.Background(), key, nil)
		Expect(e3).To(BeNil())
		Expect(pair.Chain).To(HaveLen(1))
	})
})
