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

// Config is certgend's configuration surface.
type Config struct {
	Listen     string        `mapstructure:"listen"`
	CACertFile string        `mapstructure:"ca_cert_file"`
	CAKeyFile  string        `mapstructure:"ca_key_file"`
	LeafTTL    time.Duration `mapstructure:"leaf_ttl"`
	CacheSize  int           `mapstructure:"cache_size"`
}

func defaultConfig() Config {
	return Config{
		Listen:    "127.0.0.1:9443",
		LeafTTL:   24 * time.Hour,
		CacheSize: 4096,
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, fmt.Errorf("certgend requires --config-file (ca_cert_file/ca_key_file have no default)")
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("reading config file %q: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if cfg.CACertFile == "" || cfg.CAKeyFile == "" {
		return cfg, fmt.Errorf("ca_cert_file and ca_key_file are both required")
	}
	return cfg, nil
}
