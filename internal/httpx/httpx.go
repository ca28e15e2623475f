package httpx

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DefaultUserAgent is sent when a request carries none.
const DefaultUserAgent = "quotebroker/1.0"

// Client is a small wrapper around http.Client with sane defaults for
// vendor APIs. It satisfies the HTTPClient interfaces of the vendor clients.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
}

// Option customizes the transport built by New.
type Option func(*http.Transport) error

// WithProxy routes every request through proxyURL instead of the
// environment proxy.
func WithProxy(proxyURL string) Option {
	return func(t *http.Transport) error {
		if proxyURL == "" {
			return nil
		}
		u, err := url.Parse(proxyURL)
		if err != nil {
			return fmt.Errorf("parsing proxy url: %w", err)
		}
		t.Proxy = http.ProxyURL(u)
		return nil
	}
}

// New returns a client whose requests time out after timeout.
func New(timeout time.Duration, opts ...Option) (*Client, error) {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(transport); err != nil {
			return nil, err
		}
	}
	return &Client{HTTP: &http.Client{Timeout: timeout, Transport: transport}, UserAgent: DefaultUserAgent}, nil
}

// Do sends req after filling in the user agent and default headers.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}
