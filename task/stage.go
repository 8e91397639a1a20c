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

// Package task drives one accepted connection through its full lifecycle
// (§4.13): classify, authenticate, ACL-check, escaper-connect, protocol
// reply, relay, and a final structured log line. It is the layer that
// wires acl, escaper, copier, intercept and idlewheel together into an
// actual connection-handling loop.
package task

// Stage is one step of the per-connection state machine. Stages only move
// forward; there is no transition back to an earlier stage.
type Stage uint8

const (
	StageCreated Stage = iota
	StagePreparing
	StageConnecting
	StageConnected
	StageReplying
	StageLoggedIn
	StageRelaying
	StageFinished
)

func (s Stage) String() string {
	switch s {
	case StageCreated:
		return "Created"
	case StagePreparing:
		return "Preparing"
	case StageConnecting:
		return "Connecting"
	case StageConnected:
		return "Connected"
	case StageReplying:
		return "Replying"
	case StageLoggedIn:
		return "LoggedIn"
	case StageRelaying:
		return "Relaying"
	case StageFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}
