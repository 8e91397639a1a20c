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
	"context"
	"net"
	"time"

	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"

	"github.com/sabouaram/netproxy/acl"
	liberr "github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/escaper"
	"github.com/sabouaram/netproxy/idlewheel"
	"github.com/sabouaram/netproxy/ratelimit"
	"github.com/sabouaram/netproxy/stats"
)

// Reply performs the protocol-specific acknowledgement once the upstream
// connection is live (e.g. a SOCKS5 reply frame or an HTTP "200
// Connection established" line). It runs at StageReplying, before the
// byte pump starts.
type Reply func(ctx context.Context, client net.Conn, upstream net.Conn, notes *Notes) error

// Config holds everything a Runner needs that is shared across every task
// it drives: process-lifetime collaborators, not per-connection state.
type Config struct {
	ACL            *acl.Engine
	Escaper        escaper.Escaper
	Stats          *stats.Escaper
	Wheel          *idlewheel.Wheel
	MaxIdleTicks   uint32
	ConnectTimeout time.Duration
	LimitUpstream  *ratelimit.Limiter
	LimitClient    *ratelimit.Limiter
	Log            func() liblog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxIdleTicks == 0 {
		c.MaxIdleTicks = 30
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

// Runner drives one accepted connection at a time through the task state
// machine; it holds no per-connection state of its own and is safe to
// share across every task on a worker.
type Runner struct {
	cfg Config
}

func New(cfg Config) *Runner {
	return &Runner{cfg: cfg.withDefaults()}
}

// Run executes one full task through the state machine: ACL check,
// escaper connect, protocol reply, relay, and a final structured log
// line. client is already accepted; Run takes ownership of closing it.
func (r *Runner) Run(ctx context.Context, client net.Conn, notes *Notes, req escaper.Request, reply Reply) liberr.Error {
	defer client.Close()

	if r.cfg.Stats != nil {
		r.cfg.Stats.TaskStart()
	}

	notes.markStage(StagePreparing)

	if verdict, ferr := r.checkACL(notes, req); ferr != nil {
		r.logFinish(notes, req, verdict, ferr)
		r.taskEnd(false)
		return ferr
	}

	notes.markStage(StageConnecting)
	if r.cfg.Stats != nil {
		r.cfg.Stats.ConnAttempt()
	}

	upstream, cerr := r.connect(ctx, req, notes.AuditCtx)
	if cerr != nil {
		r.logFinish(notes, req, acl.Permit, cerr)
		r.taskEnd(false)
		return cerr
	}
	defer upstream.Close()

	if r.cfg.Stats != nil {
		r.cfg.Stats.ConnSuccess()
	}
	notes.markStage(StageConnected)

	notes.markStage(StageReplying)
	if reply != nil {
		if rerr := reply(ctx, client, upstream, notes); rerr != nil {
			err := ErrorReplyFailed.Error(rerr)
			r.logFinish(notes, req, acl.Permit, err)
			r.taskEnd(false)
			return err
		}
	}

	notes.MarkRelaying()

	handle, herr := r.cfg.Wheel.Register(r.cfg.MaxIdleTicks)
	if herr != nil {
		r.taskEnd(false)
		return herr
	}
	defer handle.Unregister()

	result, rerr := Relay(ctx, client, upstream, r.cfg.LimitUpstream, r.cfg.LimitClient, handle)

	notes.markStage(StageFinished)
	if r.cfg.Stats != nil {
		r.cfg.Stats.AddTCPOut(result.BytesToUpstream)
		r.cfg.Stats.AddTCPIn(result.BytesFromUpstream)
	}

	var asErr liberr.Error
	if rerr != nil {
		asErr = ErrorRelayFailed.Error(rerr)
	}
	r.logFinish(notes, req, acl.Permit, asErr)
	r.taskEnd(asErr == nil)
	return asErr
}

func (r *Runner) taskEnd(ok bool) {
	if r.cfg.Stats != nil {
		r.cfg.Stats.TaskEnd(ok)
	}
}

func (r *Runner) checkACL(notes *Notes, req escaper.Request) (acl.Action, liberr.Error) {
	if r.cfg.ACL == nil {
		return acl.Permit, nil
	}

	verdict := r.cfg.ACL.Evaluate(acl.Request{
		IP:        req.Upstream.Host().IP(),
		Domain:    req.Upstream.Host().String(),
		Port:      req.Upstream.Port(),
		UserAgent: req.UserAgent,
	})

	if verdict.Action.IsForbidden() {
		if r.cfg.Stats != nil {
			r.cfg.Stats.Forbidden(verdict.ForbidReason)
		}
		return verdict.Action, ErrorForbiddenByACL.Error(nil)
	}
	return verdict.Action, nil
}

func (r *Runner) connect(ctx context.Context, req escaper.Request, audit *escaper.AuditContext) (net.Conn, liberr.Error) {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	defer cancel()

	conn, err := r.cfg.Escaper.TCPSetupConnection(cctx, req, audit)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (r *Runner) logFinish(notes *Notes, req escaper.Request, verdict acl.Action, taskErr liberr.Error) {
	if r.cfg.Log == nil {
		return
	}
	log := r.cfg.Log()
	if log == nil {
		return
	}

	lvl := loglvl.InfoLevel
	var errs []error
	if taskErr != nil {
		lvl = loglvl.WarnLevel
		errs = []error{taskErr}
	}

	escName := ""
	if r.cfg.Escaper != nil {
		escName = r.cfg.Escaper.Name()
	}

	log.Entry(lvl, "task finished").
		FieldAdd("task_id", notes.ID.String()).
		FieldAdd("client_addr", fmtAddr(notes.ClientAddr)).
		FieldAdd("server_addr", fmtAddr(notes.ServerAddr)).
		FieldAdd("upstream", req.Upstream.String()).
		FieldAdd("escaper", escName).
		FieldAdd("acl_action", verdict.String()).
		FieldAdd("stage", notes.Stage.String()).
		FieldAdd("wait_ms", notes.WaitTime().Milliseconds()).
		FieldAdd("ready_ms", notes.ReadyTime().Milliseconds()).
		FieldAdd("total_ms", notes.TimeElapsed().Milliseconds()).
		ErrorAdd(true, errs...).
		Log()
}

func fmtAddr(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
