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

package data

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/penny-vault/fundperf/common"
	"github.com/penny-vault/fundperf/observability/opentelemetry"
)

// DefaultUserAgent is sent with every vendor request; both vendors reject the
// default Go user agent
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:122.0) Gecko/20100101 Firefox/122.0"

// Client performs throttled, optionally cached GET requests against vendor endpoints
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	cache     *common.Cache
	userAgent string
}

// Option configures a Client
type Option func(*Client)

// WithRateLimit throttles requests to perSecond with the given burst
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithCache stores successful response bodies keyed by URL
func WithCache(cache *common.Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithUserAgent overrides DefaultUserAgent
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewHTTPClient builds the single http.Client shared by every vendor source
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// NewClient wraps httpClient; a nil httpClient uses NewHTTPClient(30s)
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(30 * time.Second)
	}
	c := &Client{
		http:      httpClient,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch gets url and hands the body to decode. Transport failures and HTTP
// status codes >= 400 are reported as ErrVendorFetch. The body is cached only
// once decode accepts it, so a malformed payload is requested again next time.
func (c *Client) Fetch(ctx context.Context, url string, decode func(body []byte) error) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.Fetch")
	defer span.End()

	span.SetAttributes(attribute.KeyValue{
		Key:   "Url",
		Value: attribute.StringValue(url),
	})

	subLog := log.With().Str("Url", url).Logger()

	cacheKey := common.CacheKey("GET", url)
	if c.cache != nil {
		if body, ok := c.cache.Get(ctx, cacheKey); ok {
			span.SetAttributes(attribute.Bool("CacheHit", true))
			subLog.Debug().Msg("serving vendor response from cache")
			return decode(body)
		}
	}

	body, err := c.get(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vendor fetch failed")
		return err
	}

	if err := decode(body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not decode vendor body")
		subLog.Warn().Err(err).Msg("vendor payload rejected; not caching")
		return err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, body); err != nil {
			subLog.Warn().Err(err).Msg("could not cache vendor response")
		}
	}

	return nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "data.get")
	defer span.End()

	subLog := log.With().Str("Url", url).Logger()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rate limiter wait failed")
			return nil, fmt.Errorf("%w: %s", ErrVendorFetch, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not build request")
		return nil, fmt.Errorf("%w: %s", ErrVendorFetch, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		msg := "vendor http request failed"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Err(err).Msg(msg)
		return nil, fmt.Errorf("%w: %s", ErrVendorFetch, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.KeyValue{
		Key:   "StatusCode",
		Value: attribute.IntValue(resp.StatusCode),
	})

	if resp.StatusCode >= 400 {
		msg := "vendor returned invalid response code"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Int("HTTPResponseStatusCode", resp.StatusCode).Msg(msg)
		return nil, fmt.Errorf("%w: HTTP status code %d", ErrVendorFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		msg := "could not read vendor body"
		span.SetStatus(codes.Error, msg)
		subLog.Warn().Err(err).Msg(msg)
		return nil, fmt.Errorf("%w: %s", ErrVendorFetch, err)
	}

	return body, nil
}
