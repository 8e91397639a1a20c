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

package task

import (
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/sabouaram/netproxy/addr"
	"github.com/sabouaram/netproxy/escaper"
)

// AlivePermit is a released-once guard on a per-request concurrency
// budget (spec's "alive-request permit"); semaphore.Semaphore's worker
// slots satisfy this interface.
type AlivePermit interface {
	Release()
}

// UserStats accumulates per-user counters across every task the user
// opens; lifetime exceeds any one task.
type UserStats interface {
	RecordTaskReady(d time.Duration)
}

// UserContext is the per-request view of an authenticated user: identity,
// a config snapshot and stats reference that outlive the task, and the
// request's own alive permit. Lifetime is bounded by the owning task.
type UserContext struct {
	Username     string
	ConfigHash   string
	Stats        UserStats
	AlivePermit  AlivePermit
}

// RecordTaskReady forwards to the user's shared stats once a task reaches
// StageRelaying, if both a Stats backend and the field are set.
func (u *UserContext) RecordTaskReady(d time.Duration) {
	if u != nil && u.Stats != nil {
		u.Stats.RecordTaskReady(d)
	}
}

// Notes is the per-accepted-connection mutable bag threaded through every
// stage of one task (spec's TaskNotes). It is never shared across
// connections.
type Notes struct {
	ID         uuid.UUID
	ClientAddr net.Addr
	ServerAddr net.Addr
	WorkerID   int

	Stage Stage

	createdAt time.Time
	waitTime  time.Duration
	readyTime time.Duration

	UserCtx *UserContext

	EgressPathSelection string
	OverrideNextHop     *addr.UpstreamAddr

	AuditCtx *escaper.AuditContext
}

// NewNotes builds a fresh Notes at StageCreated. waitTime is however long
// the connection sat queued (e.g. behind a listener backlog or a
// semaphore) before this task began running.
func NewNotes(clientAddr, serverAddr net.Addr, workerID int, userCtx *UserContext, waitTime time.Duration) *Notes {
	return &Notes{
		ID:         uuid.New(),
		ClientAddr: clientAddr,
		ServerAddr: serverAddr,
		WorkerID:   workerID,
		Stage:      StageCreated,
		createdAt:  time.Now(),
		waitTime:   waitTime,
		UserCtx:    userCtx,
		AuditCtx:   escaper.NewAuditContext(),
	}
}

// TimeElapsed is the wall-clock duration since this Notes was created.
func (n *Notes) TimeElapsed() time.Duration {
	return time.Since(n.createdAt)
}

// WaitTime is how long the connection waited before the task started.
func (n *Notes) WaitTime() time.Duration { return n.waitTime }

// ReadyTime is how long it took, from task creation, to reach
// StageRelaying; zero until that stage is reached.
func (n *Notes) ReadyTime() time.Duration { return n.readyTime }

// markStage advances Stage; it never moves backward.
func (n *Notes) markStage(s Stage) {
	if s > n.Stage {
		n.Stage = s
	}
}

// MarkRelaying records the ready-time split and notifies the user's stats
// backend, mirroring ServerTaskNotes::mark_relaying.
func (n *Notes) MarkRelaying() {
	n.markStage(StageRelaying)
	n.readyTime = time.Since(n.createdAt)
	if n.UserCtx != nil {
		n.UserCtx.RecordTaskReady(n.readyTime)
	}
}

func (n *Notes) RawUserName() string {
	if n.UserCtx == nil {
		return ""
	}
	return n.UserCtx.Username
}
