package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
)

const baseURL = "https://api.twelvedata.com"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=twelvedata_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the Twelve Data REST API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient performs the requests.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains additional query parameters to be sent with each request.
	query url.Values
}

// Option is a configuration option for the client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a new Twelve Data client. An empty key is accepted; the
// API then answers with an error payload.
func NewClient(key string, options ...Option) (*Client, error) {
	var client = &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	if key != "" {
		// https://twelvedata.com/docs#authentication
		client.query.Set("apikey", key)
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

// APIError is the error payload Twelve Data returns with HTTP 200.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twelvedata: %d %s", e.Code, e.Message)
}

// get performs a GET on path with params merged over the client query and
// decodes the body into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any, opts ...Option) error {
	var override = &Client{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
		query:      c.query,
	}
	for _, opt := range opts {
		opt(override)
	}

	query := maps.Clone(override.query)
	if query == nil {
		query = url.Values{}
	}
	for k, v := range params {
		query[k] = v
	}

	u := fmt.Sprintf("%s%s?%s", override.baseURL, path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header

	res, err := override.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusBadRequest:
		return fmt.Errorf("bad request for %s", params.Encode())

	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized")

	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited")

	default:
		return fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	var apiErr APIError
	if err := json.Unmarshal(raw, &apiErr); err == nil && (apiErr.Status == "error" || apiErr.Message != "") {
		return &apiErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
