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

// Package daemonflags registers the flag set every cmd/*d binary shares
// (config-file, control-dir, group-name, verbose, test-config) on top of
// the base's cobra wrapper, so each daemon's main.go only adds the flags
// specific to itself.
package daemonflags

import (
	loglvl "github.com/nabbar/golib/logger/level"

	libcbr "github.com/sabouaram/netproxy/cobra"
)

// Common holds the values bound to the shared flags once cobra parses
// the command line.
type Common struct {
	ConfigFile string
	ControlDir string
	GroupName  string
	Verbose    int
	TestConfig bool
}

// Register adds the shared flags to app as persistent flags (so they are
// also accepted by any subcommand) and returns the struct they are bound
// to.
func Register(app libcbr.Cobra) *Common {
	c := &Common{}
	app.AddFlagString(true, &c.ConfigFile, "config-file", "c", "", "path to the YAML/JSON configuration file")
	app.AddFlagString(true, &c.ControlDir, "control-dir", "", "/var/run/netproxy", "directory holding this daemon's control socket")
	app.AddFlagString(true, &c.GroupName, "group-name", "", "", "process group name, used to namespace the control socket and log fields")
	app.AddFlagCount(true, &c.Verbose, "verbose", "v", "increase log verbosity (repeatable)")
	app.AddFlagBool(true, &c.TestConfig, "test-config", "", false, "load and validate the configuration, then exit without starting")
	return c
}

// LogLevel maps the repeated -v count to a log level, matching the
// convention the task state machine and every cmd/*d entrypoint shares:
// 0 verbose flags means InfoLevel, each extra -v drops one level down to
// DebugLevel.
func (c *Common) LogLevel() loglvl.Level {
	switch {
	case c.Verbose <= 0:
		return loglvl.InfoLevel
	case c.Verbose == 1:
		return loglvl.DebugLevel
	default:
		return loglvl.DebugLevel
	}
}
