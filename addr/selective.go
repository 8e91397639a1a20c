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

package addr

import (
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync/atomic"
)

// Selective is a weighted, ordered sequence supporting deterministic
// pick-by-key (rendezvous hashing), random pick and round-robin pick, the
// three selection strategies a WeightedSelectiveSet supports.
type Selective[T any] struct {
	members []member[T]
	rr      uint64
}

type member[T any] struct {
	value  T
	weight uint32
	label  string
}

// NewSelective builds a Selective set from items paired with a weight and a
// stable label used as the rendezvous-hash input (e.g. the string form of
// an IP, or an escaper name).
func NewSelective[T any]() *Selective[T] {
	return &Selective[T]{}
}

func (s *Selective[T]) Add(label string, weight uint32, value T) {
	if weight == 0 {
		weight = 1
	}
	s.members = append(s.members, member[T]{value: value, weight: weight, label: label})
}

func (s *Selective[T]) Len() int {
	return len(s.members)
}

// PickRendezvous deterministically selects the member with the highest
// weighted rendezvous score for the given key; the same key always maps to
// the same member as long as the member set is unchanged.
func (s *Selective[T]) PickRendezvous(key string) (T, bool) {
	var zero T
	if len(s.members) == 0 {
		return zero, false
	}

	var (
		bestScore float64
		bestIdx   = -1
	)

	for i, m := range s.members {
		h := fnv.New64a()
		_, _ = h.Write([]byte(key))
		_, _ = h.Write([]byte(m.label))
		score := float64(h.Sum64()) * float64(m.weight)
		if bestIdx == -1 || score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	return s.members[bestIdx].value, true
}

// PickRandom selects a member at random, weighted by each member's Weight.
func (s *Selective[T]) PickRandom() (T, bool) {
	var zero T
	if len(s.members) == 0 {
		return zero, false
	}

	var total uint64
	for _, m := range s.members {
		total += uint64(m.weight)
	}

	if total == 0 {
		return zero, false
	}

	pick := uint64(rand.Int63n(int64(total))) // #nosec G404 -- load balancing, not security sensitive
	var acc uint64
	for _, m := range s.members {
		acc += uint64(m.weight)
		if pick < acc {
			return m.value, true
		}
	}

	return s.members[len(s.members)-1].value, true
}

// PickRoundRobin advances an internal atomic counter and returns the member
// at that position modulo the set size. Weight is ignored: round-robin is
// plain rotation over the member list.
func (s *Selective[T]) PickRoundRobin() (T, bool) {
	var zero T
	if len(s.members) == 0 {
		return zero, false
	}

	idx := atomic.AddUint64(&s.rr, 1) - 1
	return s.members[idx%uint64(len(s.members))].value, true
}

// Key builds a stable rendezvous label from any integer-ish identifier.
func Key(i int) string {
	return strconv.Itoa(i)
}
