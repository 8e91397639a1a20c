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

import "github.com/sabouaram/netproxy/errors"

const (
	ErrorForbiddenByACL errors.CodeError = iota + errors.MinPkgTask
	ErrorConnectTimeout
	ErrorAlivePermitDenied
	ErrorAlreadyFinished
	ErrorRelayFailed
	ErrorReplyFailed
)

func init() {
	errors.RegisterIdFctMessage(ErrorForbiddenByACL, getMessage)
}

func getMessage(code errors.CodeError) string {
	switch code {
	case errors.UNK_ERROR:
		return ""
	case ErrorForbiddenByACL:
		return "task: connection forbidden by ACL engine"
	case ErrorConnectTimeout:
		return "task: escaper connect exceeded its timeout"
	case ErrorAlivePermitDenied:
		return "task: no alive-request permit available"
	case ErrorAlreadyFinished:
		return "task: operation attempted on a finished task"
	case ErrorRelayFailed:
		return "task: relay ended with an error on one side"
	case ErrorReplyFailed:
		return "task: protocol reply callback failed"
	}
	return ""
}
