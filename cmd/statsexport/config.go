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

package main

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is statsexport's configuration surface: where it listens for
// statsd lines, where it exposes the Prometheus bridge, and an optional
// NATS subject it fans every accepted line out to verbatim.
type Config struct {
	StatsdNetwork string `mapstructure:"statsd_network"` // "udp" or "unixgram"
	StatsdAddr    string `mapstructure:"statsd_addr"`
	MetricsListen string `mapstructure:"metrics_listen"`

	NATS *NATSConfig `mapstructure:"nats"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

func defaultConfig() Config {
	return Config{
		StatsdNetwork: "udp",
		StatsdAddr:    "127.0.0.1:8125",
		MetricsListen: "127.0.0.1:9090",
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("reading config file %q: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if cfg.StatsdNetwork != "udp" && cfg.StatsdNetwork != "unixgram" {
		return cfg, fmt.Errorf("statsd_network must be %q or %q", "udp", "unixgram")
	}
	return cfg, nil
}
