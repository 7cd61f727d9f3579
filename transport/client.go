// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transport retrieves resources from the data server over HTTP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/cachecontrol"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sitedb/sitesync/response"
)

const (
	// CacheBypass is sent when a resource must not be answered from a cache
	CacheBypass = "max-age=0, must-revalidate"

	headerRequestID = "X-Request-Id"

	tracerName = "github.com/sitedb/sitesync/transport"
)

// maxResponseBytes limits a single resource reply to 64 MiB after decoding
const maxResponseBytes = 64 << 20

// Request identifies a resource to fetch
type Request struct {
	Instance string
	Resource string
	// Reload bypasses every cache on the way to the server
	Reload bool
	// Revalidate allows a conditional request; set when the caller still
	// holds a value it can reuse on a not-modified reply
	Revalidate bool
}

func (r Request) cacheKey() string {
	return r.Instance + "/" + r.Resource
}

// Client fetches resources from the data server
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	cache      *Cache
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *clientMetrics
	now        func() time.Time
}

// ClientOption is a functional option for configuring a Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom *http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCache enables answering and revalidating requests from cache
func WithCache(cache *Cache) ClientOption {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(registry prometheus.Registerer) ClientOption {
	return func(c *Client) {
		if registry != nil {
			c.metrics = newClientMetrics(registry)
		}
	}
}

// WithTracerProvider specifies the tracer provider used for fetch spans
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewClient creates a client for the data server rooted at serverURL.
// Resources are read from {serverURL}/data/{instance}/{resource}.
func NewClient(serverURL string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server URL scheme %q", base.Scheme)
	}
	c := &Client{
		baseURL: base,
		// No overall timeout: fetches end by completing or being cancelled
		httpClient: &http.Client{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c, nil
}

// URL returns the endpoint of a resource
func (c *Client) URL(instance string, resource string) string {
	return c.baseURL.JoinPath("data", instance, resource).String()
}

// Fetch retrieves a resource. Replies of any status are returned as a
// payload; only a failure to talk to the server is returned as an error.
func (c *Client) Fetch(
	ctx context.Context,
	req Request,
) (*response.Payload, error) {
	ctx, span := c.tracer.Start(
		ctx,
		"transport.Fetch",
		trace.WithAttributes(
			attribute.String("sitesync.instance", req.Instance),
			attribute.String("sitesync.resource", req.Resource),
			attribute.Bool("sitesync.reload", req.Reload),
		),
	)
	defer span.End()

	var cached *CacheEntry
	if c.cache != nil && !req.Reload {
		entry, err := c.cache.Get(req.cacheKey())
		if err != nil {
			c.logger.Warn(
				"failed to read reply cache",
				"component", "transport",
				"resource", req.Resource,
				"error", err,
			)
		}
		cached = entry
	}
	if cached != nil && cached.Fresh(c.now()) {
		c.metrics.cacheHit()
		span.SetAttributes(attribute.Bool("sitesync.cache_hit", true))
		return &response.Payload{
			StatusCode:  http.StatusOK,
			Status:      http.StatusText(http.StatusOK),
			ContentType: cached.ContentType,
			Body:        cached.Body,
			FromCache:   true,
		}, nil
	}
	c.metrics.cacheMiss()

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.URL(req.Instance, req.Resource),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", response.MediaTypeJSON)
	httpReq.Header.Set("Accept-Encoding", acceptEncoding)
	httpReq.Header.Set(headerRequestID, requestID)
	if req.Reload {
		httpReq.Header.Set("Cache-Control", CacheBypass)
	} else if cached != nil && req.Revalidate {
		if cached.ETag != "" {
			httpReq.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			httpReq.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	c.logger.Debug(
		"fetching resource",
		"component", "transport",
		"resource", req.Resource,
		"instance", req.Instance,
		"reload", req.Reload,
		"request_id", requestID,
	)
	resp, err := c.httpClient.Do(httpReq) //nolint:gosec // URL is built from the configured server base
	if err != nil {
		c.metrics.request("error")
		if !errors.Is(err, context.Canceled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.request(strconv.Itoa(resp.StatusCode))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := readBody(resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("reading reply: %w", err)
	}
	payload := &response.Payload{
		Header:      resp.Header,
		StatusCode:  resp.StatusCode,
		Status:      resp.Status,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
	if c.cache != nil {
		switch resp.StatusCode {
		case http.StatusOK:
			c.store(req, httpReq, resp, body)
		case http.StatusNotModified:
			if cached != nil {
				c.refresh(req, httpReq, resp, cached)
			}
		}
	}
	return payload, nil
}

func (c *Client) store(
	req Request,
	httpReq *http.Request,
	resp *http.Response,
	body []byte,
) {
	// Only replies that can decode are worth replaying
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != response.MediaTypeJSON {
		return
	}
	entry := &CacheEntry{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		ContentType:  resp.Header.Get("Content-Type"),
		Body:         body,
		Expires:      c.expiry(httpReq, resp),
	}
	if !entry.Revalidatable() && entry.Expires == 0 {
		return
	}
	if err := c.cache.Put(req.cacheKey(), entry); err != nil {
		c.logger.Warn(
			"failed to store reply in cache",
			"component", "transport",
			"resource", req.Resource,
			"error", err,
		)
	}
}

// refresh extends the freshness of a revalidated entry
func (c *Client) refresh(
	req Request,
	httpReq *http.Request,
	resp *http.Response,
	cached *CacheEntry,
) {
	cached.Expires = c.expiry(httpReq, resp)
	if etag := resp.Header.Get("ETag"); etag != "" {
		cached.ETag = etag
	}
	if err := c.cache.Put(req.cacheKey(), cached); err != nil {
		c.logger.Warn(
			"failed to refresh cached reply",
			"component", "transport",
			"resource", req.Resource,
			"error", err,
		)
	}
}

// expiry returns the end of the freshness lifetime of a reply in Unix
// nanoseconds, or zero if it must be revalidated on every use
func (c *Client) expiry(httpReq *http.Request, resp *http.Response) int64 {
	reasons, expires, err := cachecontrol.CachableResponse(
		httpReq,
		resp,
		cachecontrol.Options{PrivateCache: true},
	)
	if err != nil || len(reasons) > 0 || expires.IsZero() {
		return 0
	}
	if !expires.After(c.now()) {
		return 0
	}
	return expires.UnixNano()
}
