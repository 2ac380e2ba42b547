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

package common_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/penny-vault/fundperf/common"
)

var _ = Describe("Cache", func() {
	var (
		cache *common.Cache
		now   time.Time
		ctx   context.Context
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		cache, err = common.NewCache(common.CacheConfig{LocalSize: 2, TTL: time.Hour})
		Expect(err).To(BeNil())
		cache.SetClock(func() time.Time { return now })
	})

	It("round trips a payload through compression", func() {
		payload := []byte(strings.Repeat("Ticker,Weight (%)\n", 100))
		Expect(cache.Set(ctx, "holdings", payload)).To(Succeed())

		val, ok := cache.Get(ctx, "holdings")
		Expect(ok).To(BeTrue())
		Expect(val).To(Equal(payload))
	})

	It("misses on an unknown key", func() {
		_, ok := cache.Get(ctx, "nope")
		Expect(ok).To(BeFalse())
	})

	It("expires entries after the TTL", func() {
		Expect(cache.Set(ctx, "nav", []byte("[]"))).To(Succeed())

		now = now.Add(59 * time.Minute)
		_, ok := cache.Get(ctx, "nav")
		Expect(ok).To(BeTrue())

		now = now.Add(2 * time.Minute)
		_, ok = cache.Get(ctx, "nav")
		Expect(ok).To(BeFalse())
		Expect(cache.Len()).To(Equal(0))
	})

	It("evicts the least recently used entry", func() {
		Expect(cache.Set(ctx, "a", []byte("1"))).To(Succeed())
		Expect(cache.Set(ctx, "b", []byte("2"))).To(Succeed())
		_, _ = cache.Get(ctx, "a")
		Expect(cache.Set(ctx, "c", []byte("3"))).To(Succeed())

		_, ok := cache.Get(ctx, "b")
		Expect(ok).To(BeFalse())
		_, ok = cache.Get(ctx, "a")
		Expect(ok).To(BeTrue())
	})

	It("rejects a non-positive size", func() {
		_, err := common.NewCache(common.CacheConfig{LocalSize: 0})
		Expect(errors.Is(err, common.ErrInvalidCacheSize)).To(BeTrue())
	})

	It("hashes keys deterministically", func() {
		k1 := common.CacheKey("XUS", "2024-03-01")
		Expect(k1).To(HaveLen(64))
		Expect(common.CacheKey("XUS", "2024-03-01")).To(Equal(k1))
		Expect(common.CacheKey("XUS2024", "-03-01")).ToNot(Equal(k1))
	})
})

var _ = Describe("Memo", func() {
	It("computes once per distinct argument set", func() {
		memo := common.NewMemo[int]("square")
		calls := 0
		square := func(n int) (int, error) {
			return memo.Do(func() (int, error) {
				calls++
				return n * n, nil
			}, "square", n)
		}

		Expect(square(3)).To(Equal(9))
		Expect(square(3)).To(Equal(9))
		Expect(square(4)).To(Equal(16))
		Expect(calls).To(Equal(2))

		hits, misses := memo.Stats()
		Expect(hits).To(Equal(1))
		Expect(misses).To(Equal(2))
	})

	It("does not cache errors", func() {
		memo := common.NewMemo[string]("flaky")
		fail := true
		fn := func() (string, error) {
			if fail {
				return "", errors.New("boom")
			}
			return "ok", nil
		}

		_, err := memo.Do(fn, 1)
		Expect(err).To(HaveOccurred())
		fail = false
		Expect(memo.Do(fn, 1)).To(Equal("ok"))
	})

	It("calls through when the arguments cannot be encoded", func() {
		memo := common.NewMemo[int]("nan")
		calls := 0
		fn := func() (int, error) {
			calls++
			return calls, nil
		}
		Expect(memo.Do(fn, math.NaN())).To(Equal(1))
		Expect(memo.Do(fn, math.NaN())).To(Equal(2))
	})

	It("produces the same key for maps regardless of insertion order", func() {
		a := map[string]float64{"XBB": 0.6, "XIU": 0.14}
		b := map[string]float64{"XIU": 0.14, "XBB": 0.6}
		ka, err := common.ArgsKey(a, 52)
		Expect(err).To(BeNil())
		kb, err := common.ArgsKey(b, 52)
		Expect(err).To(BeNil())
		Expect(ka).To(Equal(kb))
	})
})

var _ = DescribeTable("LogLevel",
	func(name string, expected zerolog.Level) {
		Expect(common.LogLevel(name)).To(Equal(expected))
	},
	Entry("debug", "debug", zerolog.DebugLevel),
	Entry("upper case", "ERROR", zerolog.ErrorLevel),
	Entry("warning", "warning", zerolog.WarnLevel),
	Entry("unknown falls back to warn", "verbose", zerolog.WarnLevel),
)

var _ = Describe("Version", func() {
	It("formats a prerelease version", func() {
		v := common.Version{Major: 1, Minor: 2, Patch: 3, Suffix: "rc1"}
		Expect(v.String()).To(HavePrefix("1.2.3-rc1"))
		Expect(common.Version{Major: 1}.String()).To(Equal("1.0.0"))
	})

	It("names the program in the version string", func() {
		Expect(common.BuildVersionString(false)).To(HavePrefix("fundperf v"))
	})
})
