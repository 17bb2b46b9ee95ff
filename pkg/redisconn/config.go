// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package redisconn builds go-redis clients from configuration shared by the
// Redis-backed idempotency store and slot manager.
package redisconn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrEmptyAddress indicates that the Redis address is empty.
	ErrEmptyAddress = errors.New("redis address cannot be empty")

	// ErrInvalidDB indicates that the Redis DB number is invalid.
	ErrInvalidDB = errors.New("redis DB number must be >= 0")

	// ErrInvalidPoolSize indicates that the pool size is invalid.
	ErrInvalidPoolSize = errors.New("pool size must be positive")
)

// Config holds the configuration for a Redis connection.
type Config struct {
	// Addr is the Redis server address in the format "host:port".
	Addr string `mapstructure:"addr" json:"addr"`

	// Username for Redis ACL authentication. Optional.
	Username string `mapstructure:"username" json:"username"`

	// Password for Redis authentication. Optional.
	Password string `mapstructure:"password" json:"-"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" json:"db"`

	// KeyPrefix is prepended to every key written by atelier.
	KeyPrefix string `mapstructure:"key_prefix" json:"key_prefix"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size" json:"pool_size"`
}

// DefaultConfig returns a config for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		KeyPrefix:    "atelier:",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return ErrEmptyAddress
	}
	if c.DB < 0 {
		return ErrInvalidDB
	}
	if c.PoolSize < 0 {
		return ErrInvalidPoolSize
	}
	return nil
}

// Options converts the config to go-redis options.
func (c *Config) Options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     c.PoolSize,
	}
}

// Connect creates a client and verifies connectivity with a ping.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := redis.NewClient(cfg.Options())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
