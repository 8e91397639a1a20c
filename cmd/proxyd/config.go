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
	"time"

	"github.com/spf13/viper"
)

// Config is proxyd's whole configuration surface, loaded from the YAML/JSON
// file named by --config-file.
type Config struct {
	Listen string `mapstructure:"listen"`

	Resolver  ResolverConfig   `mapstructure:"resolver"`
	Pool      PoolConfig       `mapstructure:"pool"`
	Egress    EgressConfig     `mapstructure:"egress"`
	ACL       []ACLRuleConfig  `mapstructure:"acl"`
	RateLimit RateLimitConfig  `mapstructure:"rate_limit"`
	Auth      *AuthConfig      `mapstructure:"auth"`

	MaxIdleTicks       uint32        `mapstructure:"max_idle_ticks"`
	IdleTickInterval   time.Duration `mapstructure:"idle_tick_interval"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	MaxConcurrentTasks int64         `mapstructure:"max_concurrent_tasks"`
}

type ResolverConfig struct {
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
	PositiveTTL    time.Duration `mapstructure:"positive_ttl"`
	NegativeMinTTL time.Duration `mapstructure:"negative_min_ttl"`
	PreferIPv6     bool          `mapstructure:"prefer_ipv6"`
}

type PoolConfig struct {
	IdleExpire    time.Duration `mapstructure:"idle_expire"`
	MaxIdlePerKey int           `mapstructure:"max_idle_per_key"`
	ReuseLimit    uint32        `mapstructure:"reuse_limit"`
}

// EgressConfig configures proxyd's sole direct-fixed escaper. A richer,
// multi-escaper topology (parent proxies, route policies) is left to a
// dedicated escaper-config file a future revision can layer on top of this
// one; today every task exits through this single egress.
type EgressConfig struct {
	Name        string        `mapstructure:"name"`
	BindIPv4    string        `mapstructure:"bind_ipv4"`
	BindIPv6    string        `mapstructure:"bind_ipv6"`
	PreferIPv6  bool          `mapstructure:"prefer_ipv6"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// ACLRuleConfig is one rule entry. Kind selects which acl.NewXxxRule
// constructor builds it; Value/Port are interpreted accordingly.
type ACLRuleConfig struct {
	Kind   string `mapstructure:"kind"`
	Value  string `mapstructure:"value"`
	Port   uint16 `mapstructure:"port"`
	Action string `mapstructure:"action"`
}

type RateLimitConfig struct {
	UpstreamShiftMillis uint8 `mapstructure:"upstream_shift_millis"`
	UpstreamMaxBytes    int64 `mapstructure:"upstream_max_bytes"`
	ClientShiftMillis   uint8 `mapstructure:"client_shift_millis"`
	ClientMaxBytes      int64 `mapstructure:"client_max_bytes"`
}

// AuthConfig, when non-nil, requires RFC 1929 username/password
// subnegotiation; Users maps username to its expected password.
type AuthConfig struct {
	Users map[string]string `mapstructure:"users"`
}

func defaultConfig() Config {
	return Config{
		Listen: "127.0.0.1:1080",
		Resolver: ResolverConfig{
			QueryTimeout:   2 * time.Second,
			PositiveTTL:    5 * time.Minute,
			NegativeMinTTL: 2 * time.Second,
		},
		Pool: PoolConfig{
			IdleExpire:    time.Minute,
			MaxIdlePerKey: 8,
		},
		Egress: EgressConfig{
			Name:        "direct",
			DialTimeout: 10 * time.Second,
		},
		MaxIdleTicks:     30,
		IdleTickInterval: time.Second,
		ConnectTimeout:   10 * time.Second,
	}
}

// loadConfig reads path (YAML or JSON, by extension) over the defaults and
// validates the result.
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

	if cfg.Listen == "" {
		return cfg, fmt.Errorf("listen address must not be empty")
	}
	return cfg, nil
}
