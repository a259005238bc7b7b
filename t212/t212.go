// Package t212 retrieves account reports from the Trading 212 public API.
//
// See https://t212public-api-docs.redoc.ly/. Every request carries the account API key
// in the Authorization header.
package t212

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/etnz/brokerage"
	"github.com/etnz/brokerage/httpcache"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the live environment; "https://demo.trading212.com" is the paper one.
const DefaultBaseURL = "https://live.trading212.com"

// DefaultMaxResponseSize caps response bodies, the instruments list being the largest.
const DefaultMaxResponseSize int64 = 1024 * 1024 * 10 // 10MB

// paths of the endpoints, keyed by report kind name.
var paths = map[string]string{
	"cash":        "/api/v0/equity/account/cash",
	"portfolio":   "/api/v0/equity/portfolio",
	"instruments": "/api/v0/equity/metadata/instruments",
	"pies":        "/api/v0/equity/pies",
}

// limits are the documented minimum intervals between two calls of an endpoint.
var limits = map[string]time.Duration{
	"cash":        2 * time.Second,
	"portfolio":   5 * time.Second,
	"instruments": 50 * time.Second,
	"pies":        30 * time.Second,
}

// Config holds the endpoint URLs and the request headers.
//
// The JSON form is a flat object: every key is an endpoint URL except "headers".
//
//	{
//	  "cash": "https://live.trading212.com/api/v0/equity/account/cash",
//	  "portfolio": "https://live.trading212.com/api/v0/equity/portfolio",
//	  "headers": {"Authorization": "<api key>"}
//	}
type Config struct {
	Endpoints map[string]string
	Headers   http.Header
}

// NewConfig returns the configuration of every known endpoint of baseURL.
func NewConfig(baseURL, apiKey string) *Config {
	c := &Config{Endpoints: make(map[string]string), Headers: make(http.Header)}
	for name, p := range paths {
		c.Endpoints[name] = strings.TrimSuffix(baseURL, "/") + p
	}
	c.Headers.Set("Authorization", apiKey)
	return c
}

// LoadConfig reads a configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read t212 config: %w", err)
	}
	return DecodeConfig(data)
}

// DecodeConfig decodes the JSON form of a configuration.
func DecodeConfig(data []byte) (*Config, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("could not decode t212 config json: %w", err)
	}
	c := &Config{Endpoints: make(map[string]string), Headers: make(http.Header)}
	for key, value := range raw {
		if key == "headers" {
			var headers map[string]string
			if err := json.Unmarshal(value, &headers); err != nil {
				return nil, fmt.Errorf("invalid t212 config headers: %w", err)
			}
			for k, v := range headers {
				c.Headers.Set(k, v)
			}
			continue
		}
		var addr string
		if err := json.Unmarshal(value, &addr); err != nil {
			return nil, fmt.Errorf("invalid t212 config endpoint %q: %w", key, err)
		}
		c.Endpoints[strings.ToLower(key)] = addr
	}
	if c.Headers.Get("Authorization") == "" {
		return nil, errors.New("t212 config has no Authorization header")
	}
	return c, nil
}

// Client is a stateless Trading 212 client.
type Client struct {
	config          *Config
	client          *http.Client // account data, never cached
	cached          *http.Client // reference data, cached for the month
	limiters        map[string]*rate.Limiter
	MaxResponseSize int64
}

// New returns a client for the configuration.
func New(config *Config) *Client {
	c := &Client{
		config:          config,
		client:          &http.Client{Timeout: 30 * time.Second},
		cached:          httpcache.NewClient(httpcache.Monthly),
		limiters:        make(map[string]*rate.Limiter),
		MaxResponseSize: DefaultMaxResponseSize,
	}
	for name := range config.Endpoints {
		every, ok := limits[name]
		if !ok {
			every = time.Second
		}
		c.limiters[name] = rate.NewLimiter(rate.Every(every), 1)
	}
	return c
}

// WithHTTPClient makes every request, cached or not, go through hc.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client, c.cached = hc, hc
	return c
}

// Fetch implements brokerage.Fetcher.
func (c *Client) Fetch(ctx context.Context, kind brokerage.Kind) (brokerage.Payload, error) {
	return c.Get(ctx, kind.String())
}

// Get queries the endpoint and returns its JSON body.
func (c *Client) Get(ctx context.Context, endpoint string) (brokerage.Payload, error) {
	addr, ok := c.config.Endpoints[endpoint]
	if !ok {
		return nil, fmt.Errorf("%w: t212 has no %q endpoint", brokerage.ErrUnknownReportKind, endpoint)
	}
	if l, ok := c.limiters[endpoint]; ok {
		if err := l.Wait(ctx); err != nil {
			return nil, &brokerage.TransportError{Broker: "t212", Op: endpoint, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create http request %q: %w", addr, err)
	}
	req.Header = c.config.Headers.Clone()
	req.Header.Set("Accept", "application/json")

	hc := c.client
	if endpoint == "instruments" {
		hc = c.cached
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, &brokerage.TransportError{Broker: "t212", Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := c.readResponse(resp.Body)
	if err != nil {
		return nil, &brokerage.TransportError{Broker: "t212", Op: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("GET %s: %s", endpoint, resp.Status)
		return nil, &brokerage.TransportError{Broker: "t212", Op: endpoint, StatusCode: resp.StatusCode, Body: body}
	}
	return brokerage.Payload(body), nil
}

var errTooLarge = errors.New("response body too large")

func (c *Client) readResponse(body io.Reader) ([]byte, error) {
	if c.MaxResponseSize <= 0 {
		return io.ReadAll(body)
	}
	buf, err := io.ReadAll(io.LimitReader(body, c.MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(buf)) > c.MaxResponseSize {
		return nil, errTooLarge
	}
	return buf, nil
}
