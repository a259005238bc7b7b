// Package httpcache implements a disk cache for HTTP responses that expires at the end
// of the current day or month.
package httpcache

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"time"
)

// Period is the lifetime of a cached response.
type Period int

const (
	Daily Period = iota
	Monthly
)

func (p Period) String() string {
	if p == Monthly {
		return "monthly"
	}
	return "daily"
}

// stamp identifies the current period: a cached entry is valid while it does not change.
func (p Period) stamp(t time.Time) string {
	if p == Monthly {
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}

// Transport is an http.RoundTripper that serves successful GET responses from disk.
type Transport struct {
	Base   http.RoundTripper // nil is http.DefaultTransport
	Period Period
	Dir    string           // empty is os.TempDir()
	Now    func() time.Time // nil is time.Now
}

// NewClient returns a client caching its GET responses for the period.
func NewClient(p Period) *http.Client {
	return &http.Client{Transport: &Transport{Period: p}}
}

// RoundTrip implements the http.RoundTripper interface. It checks for a cached
// response on disk first. If none is found, it proceeds with the actual HTTP request
// and caches the new response if it's successful.
func (c *Transport) RoundTrip(req *http.Request) (resp *http.Response, err error) {
	if req.Method != http.MethodGet {
		return c.base().RoundTrip(req)
	}
	// responses are per account: the credentials are part of the (hashed) key
	key := fmt.Sprintf("%s %s %s %s", c.Period.stamp(c.now()), req.Method, req.URL.String(), req.Header.Get("Authorization"))
	key = fmt.Sprintf("%s-%x", c.Period, sha1.Sum([]byte(key)))

	if cached, err := c.get(key, req); err == nil { // Cache hit
		return cached, nil
	}

	resp, err = c.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}
	log.Printf("%v %v%v %v", req.Method, req.URL.Host, req.URL.Path, resp.Status)
	if resp.StatusCode >= 300 {
		return resp, nil
	}

	if err := c.put(key, resp); err != nil {
		log.Printf("cache write err (ignored): %v", err)
	}
	return resp, nil
}

func (c *Transport) base() http.RoundTripper {
	if c.Base == nil {
		return http.DefaultTransport
	}
	return c.Base
}

func (c *Transport) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Transport) file(key string) string {
	dir := c.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, key)
}

// get retrieves a cached response from disk.
func (c *Transport) get(key string, req *http.Request) (*http.Response, error) {
	content, err := os.ReadFile(c.file(key))
	if err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(content)), req)
}

// put stores a response to disk. DumpResponse leaves resp.Body readable.
func (c *Transport) put(key string, resp *http.Response) error {
	content, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return err
	}
	return os.WriteFile(c.file(key), content, 0o600)
}
