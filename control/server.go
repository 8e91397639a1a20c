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

// Package control implements the per-daemon UNIX-domain control socket
// (spec §6 "Control socket"): a small text protocol carrying one
// command per line, plus an RPC-mode switch for a future structured
// protocol. It is built entirely on top of
// github.com/nabbar/golib/socket/server/unix, the same transport the
// rest of this module's dependency stack already carries, rather than
// a hand-rolled listener.
package control

import (
	"bufio"
	"context"
	"io"
	"strings"

	libprm "github.com/nabbar/golib/file/perm"
	libptc "github.com/nabbar/golib/network/protocol"
	libsck "github.com/nabbar/golib/socket"
	sckcfg "github.com/nabbar/golib/socket/config"
	scksru "github.com/nabbar/golib/socket/server/unix"

	liberr "github.com/sabouaram/netproxy/errors"
)

// Handlers is one callback per text command §6 names. A nil entry makes
// that command answer "ERR not implemented".
type Handlers struct {
	Version           func() string
	Offline           func() error
	ReleaseController func() error
	CancelShutdown    func() error
}

// Server is one daemon's control socket: a UNIX-domain listener
// dispatching §6's line commands to Handlers.
type Server struct {
	srv scksru.ServerUnix
	h   Handlers
}

// New binds a control socket at path with the given file permission
// (owner-only, 0600, is the sane default for an admin surface) and
// optional group id (-1 leaves the umask default). It does not start
// accepting connections until Listen is called.
func New(path string, perm uint32, group int32, h Handlers) (*Server, liberr.Error) {
	cfg := sckcfg.Server{
		Network:   libptc.NetworkUnix,
		Address:   path,
		PermFile:  libprm.Perm(perm),
		GroupPerm: group,
	}

	c := &Server{h: h}

	srv, err := scksru.New(nil, c.handle, cfg)
	if err != nil {
		return nil, ErrorListenFailed.Error(err)
	}
	c.srv = srv
	return c, nil
}

// Listen accepts connections until ctx is cancelled or Shutdown/Close is
// called; it is meant to run in its own goroutine for the lifetime of
// the daemon.
func (s *Server) Listen(ctx context.Context) error {
	return s.srv.Listen(ctx)
}

// Shutdown stops accepting new connections and waits for in-flight ones
// to finish, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Close tears the listener down immediately.
func (s *Server) Close() error {
	return s.srv.Close()
}

// OpenConnections reports the number of control clients currently
// connected.
func (s *Server) OpenConnections() int64 {
	return s.srv.OpenConnections()
}

func (s *Server) handle(c libsck.Context) {
	defer func() { _ = c.Close() }()

	scanner := bufio.NewScanner(c)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == "capnp" {
			s.reply(c, "ERR "+ErrorRPCModeUnsupported.Error(nil).Error())
			continue
		}

		s.reply(c, s.dispatch(line))
	}
}

func (s *Server) dispatch(cmd string) string {
	switch cmd {
	case "version":
		if s.h.Version == nil {
			return "ERR not implemented"
		}
		return "OK " + s.h.Version()
	case "offline":
		return s.runOrErr(s.h.Offline)
	case "release-controller":
		return s.runOrErr(s.h.ReleaseController)
	case "cancel-shutdown":
		return s.runOrErr(s.h.CancelShutdown)
	default:
		return "ERR " + ErrorUnknownCommand.Error(nil).Error()
	}
}

func (s *Server) runOrErr(fn func() error) string {
	if fn == nil {
		return "ERR not implemented"
	}
	if err := fn(); err != nil {
		return "ERR " + err.Error()
	}
	return "OK"
}

func (s *Server) reply(w io.Writer, msg string) {
	_, _ = w.Write([]byte(msg + "\n"))
}
