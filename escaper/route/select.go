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

package route

import (
	"context"

	"github.com/sabouaram/netproxy/addr"
	liberr "github.com/sabouaram/netproxy/errors"
	"github.com/sabouaram/netproxy/escaper"
)

// SelectMode picks the tie-break policy a Select escaper applies to its
// member set.
type SelectMode uint8

const (
	SelectRandom SelectMode = iota
	SelectRoundRobin
	SelectRendezvous
)

// Member is one weighted entry in a route-select escaper's member list.
type Member struct {
	Escaper string
	Weight  uint32
}

// SelectConfig configures a route-select escaper.
type SelectConfig struct {
	Name     string
	Registry *escaper.Registry
	Members  []Member
	Mode     SelectMode
}

// Select is the route-select escaper: weighted selection among its member
// escapers by random draw, round-robin rotation, or deterministic
// rendezvous hash keyed on the requested upstream.
type Select struct {
	escaper.Base
	cfg  SelectConfig
	pool *addr.Selective[string]
}

func NewSelect(cfg SelectConfig) *Select {
	set := addr.NewSelective[string]()
	for _, m := range cfg.Members {
		set.Add(m.Escaper, m.Weight, m.Escaper)
	}
	return &Select{cfg: cfg, pool: set}
}

func (s *Select) Name() string { return s.cfg.Name }

func (s *Select) Capabilities() escaper.Capability {
	return escaper.CapTCPSetupConnection |
		escaper.CapTLSSetupConnection |
		escaper.CapUDPSetupConnection |
		escaper.CapHTTPForwardNewConnection |
		escaper.CapHTTPSForwardNewConnection |
		escaper.CapFTPNewConnection
}

func (s *Select) CheckOutNextEscaper(_ context.Context, req escaper.Request, _ *escaper.AuditContext) (escaper.Escaper, liberr.Error) {
	name, ok := s.pick(req)
	if !ok {
		return nil, escaper.ErrorNoMember.Error(nil)
	}
	return s.cfg.Registry.Get(name)
}

func (s *Select) pick(req escaper.Request) (string, bool) {
	switch s.cfg.Mode {
	case SelectRoundRobin:
		return s.pool.PickRoundRobin()
	case SelectRendezvous:
		return s.pool.PickRendezvous(req.Upstream.String())
	default:
		return s.pool.PickRandom()
	}
}
