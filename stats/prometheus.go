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
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusBridge re-exposes ingested statsd samples as Prometheus
// collectors. Counters and gauges are created lazily, keyed by metric name
// plus the sorted set of tag keys seen on its first sample — a statsd
// metric emitted with varying tag sets across the process lifetime is
// treated as distinct series per tag-key-set, which keeps this bridge a
// plain map instead of a full label-schema registry.
type PrometheusBridge struct {
	reg *prometheus.Registry

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	timings  map[string]prometheus.Histogram
}

func NewPrometheusBridge() *PrometheusBridge {
	return &PrometheusBridge{
		reg:      prometheus.NewRegistry(),
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
		timings:  make(map[string]prometheus.Histogram),
	}
}

func (b *PrometheusBridge) Registry() *prometheus.Registry { return b.reg }

// Observe folds one parsed statsd sample into the bridge's collectors.
func (b *PrometheusBridge) Observe(s Sample) {
	switch s.Type {
	case SampleCounter:
		b.counter(s).With(s.Tags).Add(s.Value)
	case SampleGauge:
		b.gauge(s).With(s.Tags).Set(s.Value)
	case SampleTiming:
		b.timing(s.Name).Observe(s.Value / 1000)
	}
}

func (b *PrometheusBridge) counter(s Sample) *prometheus.CounterVec {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := metricKey(s.Name, s.Tags)
	if c, ok := b.counters[key]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: sanitizeName(s.Name)}, tagKeys(s.Tags))
	b.reg.MustRegister(c)
	b.counters[key] = c
	return c
}

func (b *PrometheusBridge) gauge(s Sample) *prometheus.GaugeVec {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := metricKey(s.Name, s.Tags)
	if g, ok := b.gauges[key]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: sanitizeName(s.Name)}, tagKeys(s.Tags))
	b.reg.MustRegister(g)
	b.gauges[key] = g
	return g
}

func (b *PrometheusBridge) timing(name string) prometheus.Histogram {
	b.mu.Lock()
	defer b.mu.Unlock()

	if h, ok := b.timings[name]; ok {
		return h
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    sanitizeName(name),
		Buckets: prometheus.DefBuckets,
	})
	b.reg.MustRegister(h)
	b.timings[name] = h
	return h
}

func tagKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func metricKey(name string, tags map[string]string) string {
	var b strings.Builder
	b.WriteString(name)
	for _, k := range tagKeys(tags) {
		b.WriteByte('\x00')
		b.WriteString(k)
	}
	return b.String()
}

// sanitizeName replaces statsd's '.' separator with Prometheus's '_', the
// only divergence between the two naming conventions this bridge cares to
// bridge.
func sanitizeName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}
