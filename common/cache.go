// Copyright 2021-2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/zeebo/blake3"
)

var (
	ErrInvalidCacheSize = errors.New("cache size must be positive")
)

// CacheConfig controls the response cache. A zero TTL keeps entries until they
// are evicted from the LRU.
type CacheConfig struct {
	LocalSize int
	TTL       time.Duration
	RedisURL  string
}

// Cache stores lz4 compressed byte payloads in a local LRU and, when configured,
// a shared redis instance. Entries older than the TTL are treated as misses.
type Cache struct {
	local *lru.Cache
	rdb   *redis.Client
	ttl   time.Duration

	mu  sync.Mutex
	now func() time.Time
}

type cacheEntry struct {
	data    []byte
	expires time.Time
}

// NewCacheFromViper builds a cache from the cache.* configuration keys
func NewCacheFromViper() (*Cache, error) {
	cfg := CacheConfig{
		LocalSize: viper.GetInt("cache.local_size"),
		TTL:       time.Duration(viper.GetInt("cache.ttl")) * time.Second,
	}
	if viper.GetBool("cache.redis") {
		cfg.RedisURL = viper.GetString("cache.redis_url")
	}
	return NewCache(cfg)
}

// NewCache creates a new cache
func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.LocalSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCacheSize, cfg.LocalSize)
	}

	local, err := lru.New(cfg.LocalSize)
	if err != nil {
		return nil, err
	}

	cache := &Cache{
		local: local,
		ttl:   cfg.TTL,
		now:   time.Now,
	}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error().Err(err).Msg("could not parse redis URL")
			return nil, err
		}
		cache.rdb = redis.NewClient(opt)
	}

	return cache, nil
}

// SetClock overrides the time source used for expiry
func (cache *Cache) SetClock(now func() time.Time) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.now = now
}

func (cache *Cache) clock() time.Time {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return cache.now()
}

// CacheKey hashes the supplied parts into a fixed length key
func CacheKey(parts ...string) string {
	hasher := blake3.New()
	for _, part := range parts {
		_, _ = hasher.WriteString(part)
		_, _ = hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Set stores val under key
func (cache *Cache) Set(ctx context.Context, key string, val []byte) error {
	compressed, err := compress(val)
	if err != nil {
		return err
	}

	entry := &cacheEntry{data: compressed}
	if cache.ttl > 0 {
		entry.expires = cache.clock().Add(cache.ttl)
	}
	cache.local.Add(key, entry)

	if cache.rdb != nil {
		return cache.rdb.Set(ctx, key, compressed, cache.ttl).Err()
	}
	return nil
}

// Get returns the payload stored under key. The second return value is false on
// a miss or an expired entry.
func (cache *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := cache.local.Get(key); ok {
		entry := v.(*cacheEntry)
		if entry.expires.IsZero() || cache.clock().Before(entry.expires) {
			val, err := decompress(entry.data)
			if err != nil {
				log.Warn().Err(err).Str("Key", key).Msg("could not decompress cached value")
				return nil, false
			}
			return val, true
		}
		cache.local.Remove(key)
	}

	if cache.rdb == nil {
		return nil, false
	}

	compressed, err := cache.rdb.GetEx(ctx, key, cache.ttl).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("Key", key).Msg("redis lookup failed")
		}
		return nil, false
	}

	val, err := decompress(compressed)
	if err != nil {
		log.Warn().Err(err).Str("Key", key).Msg("could not decompress cached value")
		return nil, false
	}

	entry := &cacheEntry{data: compressed}
	if cache.ttl > 0 {
		entry.expires = cache.clock().Add(cache.ttl)
	}
	cache.local.Add(key, entry)
	return val, true
}

// Len returns the number of entries held locally
func (cache *Cache) Len() int {
	return cache.local.Len()
}

func compress(val []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := io.Copy(zw, bytes.NewReader(val)); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(val []byte) ([]byte, error) {
	var buf bytes.Buffer
	zr := lz4.NewReader(bytes.NewReader(val))
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
