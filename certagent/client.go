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
	"context"
	"net"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	liberr "github.com/sabouaram/netproxy/errors"
)

// FakeCertPair is a mimicked certificate chain plus its private key, good
// until ExpiresAt.
type FakeCertPair struct {
	Chain     [][]byte
	Key       []byte
	ExpiresAt time.Time
}

func (p *FakeCertPair) expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Config bounds one Client's cache sizing, TTL clamping and UDP timeouts.
type Config struct {
	Addr               *net.UDPAddr
	MaxCacheEntries    int
	MaximumCacheTTL    time.Duration
	ProtectiveCacheTTL time.Duration
	QueryWaitTimeout   time.Duration
	MaxDatagramSize    int
}

func DefaultConfig(addr *net.UDPAddr) Config {
	return Config{
		Addr:               addr,
		MaxCacheEntries:    4096,
		MaximumCacheTTL:    time.Hour,
		ProtectiveCacheTTL: time.Minute * 5,
		QueryWaitTimeout:   time.Second * 2,
		MaxDatagramSize:    8192,
	}
}

// Client fetches fake certificates from an external generator over UDP,
// caching results keyed by FingerprintKey and coalescing concurrent
// fetches for the same key.
type Client struct {
	cfg   Config
	conn  *net.UDPConn
	cache *lru.Cache
	group singleflight.Group
}

func New(cfg Config) (*Client, liberr.Error) {
	if cfg.MaxCacheEntries <= 0 {
		cfg.MaxCacheEntries = 4096
	}
	if cfg.MaximumCacheTTL <= 0 {
		cfg.MaximumCacheTTL = time.Hour
	}
	if cfg.ProtectiveCacheTTL <= 0 {
		cfg.ProtectiveCacheTTL = time.Minute * 5
	}
	if cfg.QueryWaitTimeout <= 0 {
		cfg.QueryWaitTimeout = time.Second * 2
	}
	if cfg.MaxDatagramSize <= 0 {
		cfg.MaxDatagramSize = 8192
	}

	conn, e := net.DialUDP("udp", nil, cfg.Addr)
	if e != nil {
		return nil, ErrorQueryTimeout.Error(e)
	}

	c, e := lru.New(cfg.MaxCacheEntries)
	if e != nil {
		return nil, ErrorQueryTimeout.Error(e)
	}

	return &Client{cfg: cfg, conn: conn, cache: c}, nil
}

// Fetch resolves a FakeCertPair for key, going through the cache, then a
// single-flight-coalesced UDP round trip, falling back to a cached-but-
// stale ("protective") result if the backend is unreachable.
func (c *Client) Fetch(ctx context.Context, key FingerprintKey, upstreamCertDER []byte) (*FakeCertPair, liberr.Error) {
	if pair, ok := c.freshFromCache(key); ok {
		return pair, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		return c.query(ctx, key, upstreamCertDER)
	})
	if err != nil {
		if pair, ok := c.staleFromCache(key); ok {
			return pair, nil
		}
		return nil, ErrorNoProtectiveCache.Error(err)
	}

	return v.(*FakeCertPair), nil
}

func (c *Client) freshFromCache(key FingerprintKey) (*FakeCertPair, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	pair := v.(*FakeCertPair)
	if pair.expired(time.Now()) {
		return nil, false
	}
	return pair, true
}

func (c *Client) staleFromCache(key FingerprintKey) (*FakeCertPair, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*FakeCertPair), true
}

func (c *Client) query(ctx context.Context, key FingerprintKey, upstreamCertDER []byte) (*FakeCertPair, error) {
	req := wireRequest{
		Host:    key.Domain,
		Service: key.Service.String(),
		Usage:   key.Usage.String(),
		CertDER: upstreamCertDER,
	}

	data, e := encodeRequest(req)
	if e != nil {
		return nil, e
	}
	if len(data) > c.cfg.MaxDatagramSize {
		return nil, ErrorRequestTooLarge.Error(nil)
	}

	deadline := time.Now().Add(c.cfg.QueryWaitTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = c.conn.SetDeadline(deadline)

	if _, e = c.conn.Write(data); e != nil {
		return nil, e
	}

	buf := make([]byte, 65536)
	n, e := c.conn.Read(buf)
	if e != nil {
		if ne, ok := e.(net.Error); ok && ne.Timeout() {
			return nil, ErrorQueryTimeout.Error(e)
		}
		return nil, e
	}

	resp, e := decodeResponse(buf[:n])
	if e != nil {
		return nil, ErrorDecodeFailed.Error(e)
	}

	ttl := time.Duration(resp.TTL) * time.Second
	switch {
	case ttl <= 0:
		ttl = c.cfg.ProtectiveCacheTTL
	case ttl > c.cfg.MaximumCacheTTL:
		ttl = c.cfg.MaximumCacheTTL
	}

	pair := &FakeCertPair{Chain: resp.Chain, Key: resp.Key, ExpiresAt: time.Now().Add(ttl)}
	c.cache.Add(key, pair)
	return pair, nil
}

// Close releases the underlying UDP socket.
func (c *Client) Close() error {
	return c.conn.Close()
}
