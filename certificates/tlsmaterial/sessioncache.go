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

package tlsmaterial

import (
	"crypto/tls"

	lru "github.com/hashicorp/golang-lru"
)

const shardCount = 16

// SessionCache is a 16-way sharded LRU of opaque TLS session blobs, shard
// selection a function of the cache key's leading hex nibble. Sharding
// exists purely to spread lock contention across concurrently-resuming
// connections; any given key always lands on the same shard.
//
// The same type backs both trust boundaries named in the data model: one
// instance plugged into a client-facing Config's session-ticket wrap/unwrap
// hooks (server-side store of this proxy's own handshakes), and a second,
// independent instance plugged into an upstream-facing Config's
// ClientSessionCache (client-side store of resumption tickets this proxy
// received from real origins). The two are never shared: crossing them
// would let a ticket minted for one leg resume a session on the other.
type SessionCache struct {
	shards [shardCount]*lru.Cache
}

// NewSessionCache builds a SessionCache whose 16 shards each hold up to
// perShardCapacity entries.
func NewSessionCache(perShardCapacity int) (*SessionCache, error) {
	if perShardCapacity <= 0 {
		perShardCapacity = 256
	}
	c := &SessionCache{}
	for i := range c.shards {
		s, e := lru.New(perShardCapacity)
		if e != nil {
			return nil, e
		}
		c.shards[i] = s
	}
	return c, nil
}

func (c *SessionCache) shard(key string) *lru.Cache {
	if key == "" {
		return c.shards[0]
	}
	return c.shards[key[0]>>4]
}

// Get implements crypto/tls.ClientSessionCache, making a *SessionCache
// directly assignable to tls.Config.ClientSessionCache for client-side
// resumption on an upstream-facing connection.
func (c *SessionCache) Get(sessionKey string) (*tls.ClientSessionState, bool) {
	v, ok := c.shard(sessionKey).Get(sessionKey)
	if !ok {
		return nil, false
	}
	cs, ok := v.(*tls.ClientSessionState)
	return cs, ok
}

// Put implements crypto/tls.ClientSessionCache. A nil cs evicts the entry,
// matching crypto/tls's own eviction convention.
func (c *SessionCache) Put(sessionKey string, cs *tls.ClientSessionState) {
	if cs == nil {
		c.shard(sessionKey).Remove(sessionKey)
		return
	}
	c.shard(sessionKey).Add(sessionKey, cs)
}

// GetBlob returns the raw opaque blob stored under key, for server-side
// stateful session-ticket storage (a Config's UnwrapSession hook).
func (c *SessionCache) GetBlob(key string) ([]byte, bool) {
	v, ok := c.shard(key).Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// PutBlob stores a raw opaque blob under key, for server-side stateful
// session-ticket storage (a Config's WrapSession hook).
func (c *SessionCache) PutBlob(key string, blob []byte) {
	c.shard(key).Add(key, blob)
}
