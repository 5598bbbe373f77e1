// Package client fetches pages from the auction site with request pacing,
// bounded retries and an optional robots.txt gate.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sethvargo/go-retry"
	"github.com/temoto/robotstxt"

	"enchimmo/internal/config"
)

// ErrRobotsDisallowed reports a path the site's robots.txt excludes.
var ErrRobotsDisallowed = errors.New("path disallowed by robots.txt")

// TransportError is a fetch failure after retries were exhausted. Status is
// zero for connection-level failures.
type TransportError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

var retryStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client is a polite fetcher bound to one base URL. One request is in
// flight at a time; the pacing mutex serializes callers.
type Client struct {
	base    *url.URL
	http    *http.Client
	cfg     config.ClientConfig
	respect bool
	logger  *slog.Logger

	mu     sync.Mutex
	lastAt time.Time

	robotsOnce sync.Once
	robots     *robotstxt.RobotsData
}

// New builds a client from the HTTP and robots configuration.
func New(cfg config.ClientConfig, robots config.RobotsConfig, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", cfg.BaseURL, err)
	}
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout()},
		cfg:     cfg,
		respect: robots.Respect,
		logger:  logger,
	}, nil
}

// Get fetches a path relative to the base URL (absolute URLs are accepted
// too) and returns the parsed document. It paces every attempt, retries
// transient failures and returns a *TransportError once retries are
// exhausted. Bodies are decoded as UTF-8 regardless of headers; the site
// serves UTF-8 only.
func (c *Client) Get(ctx context.Context, path string) (*goquery.Document, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	target := c.base.ResolveReference(ref)

	if !c.allowed(ctx, target.Path) {
		return nil, fmt.Errorf("%s: %w", target.Path, ErrRobotsDisallowed)
	}

	attempt := 0
	backoff := retry.WithMaxRetries(c.maxRetries(), retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(c.cfg.RetryBackoff * float64(attempt) * float64(time.Second)), false
	}))

	var doc *goquery.Document
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.pace(ctx); err != nil {
			return err
		}
		d, ferr := c.fetchOnce(ctx, target.String())
		if ferr != nil {
			var te *TransportError
			if errors.As(ferr, &te) && (te.Status == 0 || retryStatus[te.Status]) {
				c.logger.Warn("fetch failed, will retry",
					"url", target.String(), "status", te.Status, "attempt", attempt+1)
				return retry.RetryableError(ferr)
			}
			return ferr
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) maxRetries() uint64 {
	if c.cfg.MaxRetries <= 1 {
		return 0
	}
	return uint64(c.cfg.MaxRetries - 1)
}

// pace sleeps so that the gap since the end of the previous sleep is a
// uniform draw from [min_delay, max_delay]. The anchor advances after the
// sleep, before the network round trip.
func (c *Client) pace(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delay := c.cfg.MinDelay() +
		time.Duration(rand.Float64()*float64(c.cfg.MaxDelay()-c.cfg.MinDelay()))
	if !c.lastAt.IsZero() {
		if wait := delay - time.Since(c.lastAt); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	c.lastAt = time.Now()
	return nil
}

func (c *Client) fetchOnce(ctx context.Context, target string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{URL: target, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: target, Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", target, err)
	}
	c.logger.Debug("fetched", "url", target, "bytes", len(body))
	return doc, nil
}

// allowed loads robots.txt once and tests the path against it. Any failure
// to load or parse leaves the gate open.
func (c *Client) allowed(ctx context.Context, path string) bool {
	if !c.respect {
		return true
	}
	c.robotsOnce.Do(func() { c.loadRobots(ctx) })
	if c.robots == nil {
		return true
	}
	return c.robots.TestAgent(path, c.cfg.UserAgent)
}

func (c *Client) loadRobots(ctx context.Context) {
	target := c.base.ResolveReference(&url.URL{Path: "/robots.txt"}).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("robots.txt unavailable", "error", err)
		return
	}
	defer resp.Body.Close()

	// Only a 2xx body is authoritative. A missing or erroring robots.txt
	// must not block the crawl.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		c.logger.Debug("robots.txt unparseable", "error", err)
		return
	}
	c.robots = data
}
