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

// Package buildinfo centralizes the libver.Version construction shared by
// every cmd/*d entrypoint, so release/hash/time are stamped the same way
// across binaries and only ldflags-injected once per build.
package buildinfo

import (
	libver "github.com/nabbar/golib/version"
)

// Release, Hash and Time are meant to be set at build time with
// -ldflags "-X .../buildinfo.Release=... -X .../buildinfo.Hash=... -X .../buildinfo.Time=...".
// Empty values fall back to "dev"/"unknown" so a plain `go build` still runs.
var (
	Release = ""
	Hash    = ""
	Time    = ""
)

const author = "netproxy maintainers"

// New builds the libver.Version one cmd/*d binary reports through --version
// and the cobra wrapper's generated help header.
func New(name, description string) libver.Version {
	release := Release
	if release == "" {
		release = "dev"
	}
	hash := Hash
	if hash == "" {
		hash = "unknown"
	}
	buildTime := Time
	if buildTime == "" {
		buildTime = "unknown"
	}

	return libver.NewVersion(
		libver.License_MIT,
		name,
		description,
		buildTime,
		hash,
		release,
		author,
		name,
		nil,
		0,
	)
}
