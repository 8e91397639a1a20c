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

// Package pool implements the keyed connection pool: FIFO
// reuse of idle connections guarded by a per-connection EOF watcher, and
// single-flight coalescing of concurrent builders for the same key.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	liberr "github.com/sabouaram/netproxy/errors"
)

// Config bounds one Pool's FIFO behavior.
type Config struct {
	IdleExpire    time.Duration
	MaxIdlePerKey int
	ReuseLimit    uint32 // 0 = unlimited
}

func DefaultConfig() Config {
	return Config{
		IdleExpire:    time.Minute,
		MaxIdlePerKey: 8,
	}
}

// Pool is a keyed set of reusable connections. K must be comparable
// (typically addr.UpstreamAddr's String()); V must satisfy Conn.
type Pool[K comparable, V Conn] struct {
	cfg Config

	mu    sync.Mutex
	idle  map[K][]*entry[V]
	group singleflight.Group

	closed bool
}

func New[K comparable, V Conn](cfg Config) *Pool[K, V] {
	if cfg.IdleExpire <= 0 {
		cfg.IdleExpire = time.Minute
	}
	if cfg.MaxIdlePerKey <= 0 {
		cfg.MaxIdlePerKey = 8
	}
	return &Pool[K, V]{
		cfg:  cfg,
		idle: make(map[K][]*entry[V]),
	}
}

// Builder constructs a brand-new connection for key when the pool has none
// available to reuse.
type Builder[V any] func(ctx context.Context) (V, error)

// GetOrBuild pops a FIFO entry for key whose watcher has not fired and
// whose reuse count is under the configured limit; otherwise it runs
// build, coalescing concurrent callers for the same key onto the first
// builder: multiple concurrent callers for the same key coalesce onto
// the first builder, which publishes the result to all waiters.
// reused reports whether the returned connection came from the pool.
func (p *Pool[K, V]) GetOrBuild(ctx context.Context, key K, build Builder[V]) (conn V, reused bool, e liberr.Error) {
	if c, ok := p.popReusable(key); ok {
		return c, true, nil
	}

	keyStr := anyKeyString(key)
	v, err, _ := p.group.Do(keyStr, func() (interface{}, error) {
		return build(ctx)
	})
	if err != nil {
		var zero V
		return zero, false, ErrorBuildFailed.Error(err)
	}

	return v.(V), false, nil
}

// popReusable returns the oldest enqueued, not-yet-expired, not-fired entry
// for key: FIFO reuse maximises keep-alive hit rate before idle expiry,
// since the oldest entry is also the one closest to IdleExpire. Entries
// past IdleExpire are dropped and closed as they're encountered.
func (p *Pool[K, V]) popReusable(key K) (V, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero V
	if p.closed {
		return zero, false
	}

	list := p.idle[key]
	for len(list) > 0 {
		e := list[0]
		list = list[1:]

		if time.Since(e.enqueuedAt) > p.cfg.IdleExpire || e.watcher.Fired() {
			_ = e.conn.Close()
			continue
		}

		if p.cfg.ReuseLimitExceeded(e.reuseCount) {
			_ = e.conn.Close()
			continue
		}

		reclaim(e.conn, e.watcher)
		e.reuseCount++
		p.idle[key] = list
		return e.conn, true
	}

	p.idle[key] = list
	return zero, false
}

// ReuseLimitExceeded reports whether count has reached the pool's
// configured per-connection reuse cap (0 means unlimited).
func (c Config) ReuseLimitExceeded(count uint32) bool {
	return c.ReuseLimit > 0 && count >= c.ReuseLimit
}

// PutBack enqueues conn for future reuse under key, spawning its EOF
// watcher. If MaxIdlePerKey is exceeded the oldest idle entry for key is
// evicted and closed.
func (p *Pool[K, V]) PutBack(key K, conn V, reuseCount uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = conn.Close()
		return
	}

	w := startEOFWatcher(conn)
	list := p.idle[key]
	list = append(list, &entry[V]{conn: conn, watcher: w, enqueuedAt: time.Now(), reuseCount: reuseCount})

	for len(list) > p.cfg.MaxIdlePerKey {
		oldest := list[0]
		list = list[1:]
		_ = oldest.conn.Close()
	}

	p.idle[key] = list
}

// Close closes every idle connection in the pool and marks it closed;
// subsequent GetOrBuild/PutBack calls are no-ops / immediate closes.
func (p *Pool[K, V]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for k, list := range p.idle {
		for _, e := range list {
			_ = e.conn.Close()
		}
		delete(p.idle, k)
	}
}

// Len returns the number of idle connections currently pooled for key.
func (p *Pool[K, V]) Len(key K) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[key])
}

func anyKeyString(key any) string {
	if s, ok := key.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}
