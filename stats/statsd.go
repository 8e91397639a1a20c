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

package stats

import (
	"strconv"
	"strings"

	"github.com/sabouaram/netproxy/errors"
)

const (
	ErrorStatsdMalformedLine errors.CodeError = iota + errors.MinPkgStats + 10
	ErrorStatsdUnknownType
)

func init() {
	errors.RegisterIdFctMessage(ErrorStatsdMalformedLine, getStatsdMessage)
}

func getStatsdMessage(code errors.CodeError) string {
	switch code {
	case ErrorStatsdMalformedLine:
		return "stats: malformed statsd line"
	case ErrorStatsdUnknownType:
		return "stats: unknown statsd metric type"
	}
	return ""
}

// SampleType distinguishes the handful of statsd metric-type suffixes this
// ingester understands.
type SampleType uint8

const (
	SampleCounter SampleType = iota
	SampleGauge
	SampleTiming
)

// Sample is one parsed statsd datagram line: "name:value|type|#tag:val,..."
type Sample struct {
	Name  string
	Value float64
	Type  SampleType
	Tags  map[string]string
}

// ParseStatsdLine parses one line of a statsd datagram. Supported type
// suffixes are "c" (counter), "g" (gauge) and "ms" (timing, milliseconds);
// everything else is rejected. A trailing "|#k:v,k2:v2" segment, as emitted
// by DogStatsD-style clients, is parsed into Tags; plain statsd lines carry
// no tags.
func ParseStatsdLine(line string) (Sample, errors.Error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Sample{}, ErrorStatsdMalformedLine.Error(nil)
	}

	parts := strings.Split(line, "|")
	if len(parts) < 2 {
		return Sample{}, ErrorStatsdMalformedLine.Error(nil)
	}

	nameValue := strings.SplitN(parts[0], ":", 2)
	if len(nameValue) != 2 || nameValue[0] == "" {
		return Sample{}, ErrorStatsdMalformedLine.Error(nil)
	}

	value, err := strconv.ParseFloat(nameValue[1], 64)
	if err != nil {
		return Sample{}, ErrorStatsdMalformedLine.Error(err)
	}

	var typ SampleType
	switch parts[1] {
	case "c":
		typ = SampleCounter
	case "g":
		typ = SampleGauge
	case "ms":
		typ = SampleTiming
	default:
		return Sample{}, ErrorStatsdUnknownType.Error(nil)
	}

	s := Sample{Name: nameValue[0], Value: value, Type: typ}
	for _, seg := range parts[2:] {
		if !strings.HasPrefix(seg, "#") {
			continue
		}
		s.Tags = parseTagSegment(seg[1:])
	}
	return s, nil
}

func parseTagSegment(seg string) map[string]string {
	tags := make(map[string]string)
	for _, kv := range strings.Split(seg, ",") {
		if kv == "" {
			continue
		}
		pair := strings.SplitN(kv, ":", 2)
		if len(pair) == 2 {
			tags[pair[0]] = pair[1]
		} else {
			tags[pair[0]] = ""
		}
	}
	return tags
}
