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
	"encoding/hex"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
)

// ArgsKey hashes the JSON encoding of args. Map keys are sorted by the encoder so
// equal arguments always produce the same key.
func ArgsKey(args ...interface{}) (string, error) {
	buf, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// Memo caches the results of an expensive computation keyed by its arguments.
// Errors are not cached.
type Memo[T any] struct {
	name    string
	mu      sync.Mutex
	entries map[string]T
	hits    int
	misses  int
}

// NewMemo creates an empty memo; name is used in log messages
func NewMemo[T any](name string) *Memo[T] {
	return &Memo[T]{
		name:    name,
		entries: make(map[string]T),
	}
}

// Do returns the cached result for args or calls fn and stores its result.
// Arguments that cannot be encoded bypass the memo.
func (memo *Memo[T]) Do(fn func() (T, error), args ...interface{}) (T, error) {
	key, err := ArgsKey(args...)
	if err != nil {
		log.Debug().Str("Memo", memo.name).Err(err).Msg("arguments cannot be hashed; calling through")
		return fn()
	}

	memo.mu.Lock()
	if val, ok := memo.entries[key]; ok {
		memo.hits++
		memo.mu.Unlock()
		log.Debug().Str("Memo", memo.name).Str("Key", key).Msg("memo hit")
		return val, nil
	}
	memo.misses++
	memo.mu.Unlock()

	val, err := fn()
	if err != nil {
		return val, err
	}

	memo.mu.Lock()
	memo.entries[key] = val
	memo.mu.Unlock()
	return val, nil
}

// Stats returns the number of hits and misses
func (memo *Memo[T]) Stats() (hits, misses int) {
	memo.mu.Lock()
	defer memo.mu.Unlock()
	return memo.hits, memo.misses
}
