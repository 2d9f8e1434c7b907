// File: internal/network/httpclient.go
package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Defaults for the fetch client. It downloads a handful of static assets per
// run, so the pool is small.
const (
	DefaultDialTimeout           = 5 * time.Second
	DefaultKeepAliveInterval     = 15 * time.Second
	DefaultTLSHandshakeTimeout   = 5 * time.Second
	DefaultResponseHeaderTimeout = 10 * time.Second
	DefaultRequestTimeout        = 30 * time.Second
	DefaultIdleConnTimeout       = 30 * time.Second
	DefaultMaxIdleConnsPerHost   = 2

	// MaxBodySize caps downloaded bodies. axe.min.js is roughly 550KB.
	MaxBodySize = 16 << 20
)

// UserAgent identifies the tool on outbound fetches.
const UserAgent = "scalpel-a11y (+https://github.com/xkilldash9x/scalpel-a11y)"

// ClientConfig holds the configuration for the HTTP client and transport layers.
type ClientConfig struct {
	IgnoreTLSErrors       bool
	RequestTimeout        time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	Logger                *zap.Logger
}

// NewDefaultClientConfig returns the baseline configuration.
func NewDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		RequestTimeout:        DefaultRequestTimeout,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		Logger:                zap.NewNop(),
	}
}

// Client is a thin wrapper around http.Client whose transport negotiates and
// transparently decodes compressed responses.
//
// The caller is responsible for closing Response.Body when using the embedded
// http.Client methods directly; Fetch handles that itself.
type Client struct {
	*http.Client
	logger *zap.Logger
}

// NewHTTPTransport creates the base transport from the configuration. Compression
// is disabled at this layer because CompressionMiddleware owns it.
func NewHTTPTransport(cfg *ClientConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   DefaultDialTimeout,
		KeepAlive: DefaultKeepAliveInterval,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.IgnoreTLSErrors, MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		ForceAttemptHTTP2:     true,
		DisableCompression:    true,
	}
}

// NewClient builds a Client. A nil config selects NewDefaultClientConfig.
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = NewDefaultClientConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	return &Client{
		Client: &http.Client{
			Transport: NewCompressionMiddleware(NewHTTPTransport(cfg)),
			Timeout:   cfg.RequestTimeout,
		},
		logger: cfg.Logger.Named("httpclient"),
	}
}

// Fetch performs a GET and returns the decoded body. Non-2xx statuses are errors.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", UserAgent)

	start := time.Now()
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body from %s: %w", rawURL, err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("body from %s exceeds %d bytes", rawURL, MaxBodySize)
	}

	c.logger.Debug("Fetched resource",
		zap.String("url", rawURL),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return body, nil
}
