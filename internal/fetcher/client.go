// Package fetcher wraps net/http with the request conventions the engine
// needs: immutable per-client options, credentials, per-host spacing and
// robots checks for page fetches.
package fetcher

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/elsanchez/resfetch/internal/domain"
)

// DefaultUserAgents are browser strings rotated between clients.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// DefaultHeaders are sent on every request unless overridden.
var DefaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,*/*;q=0.8",
	"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
}

// Options configure a Factory. They are copied on construction.
type Options struct {
	UserAgents    []string
	Headers       map[string]string
	Credentials   Credentials
	RequestDelay  time.Duration
	RespectRobots bool
	RobotsAgent   string
	MaxPageBytes  int64
	Transport     http.RoundTripper
}

// Factory hands out Clients. Clients with equal credentials are shared;
// all of them share the host limiter and the robots cache.
type Factory struct {
	opts    Options
	http    *http.Client
	limiter *HostLimiter
	robots  *RobotsAgent

	mu      sync.Mutex
	clients map[string]*Client
}

// NewFactory builds a factory from options.
func NewFactory(opts Options) *Factory {
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = DefaultUserAgents
	}
	opts.UserAgents = append([]string(nil), opts.UserAgents...)
	opts.Headers = mergeMaps(DefaultHeaders, opts.Headers)
	if opts.MaxPageBytes <= 0 {
		opts.MaxPageBytes = 10 * 1024 * 1024
	}
	if opts.RobotsAgent == "" {
		opts.RobotsAgent = "resfetch"
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	hc := &http.Client{Transport: transport}

	f := &Factory{
		opts:    opts,
		http:    hc,
		limiter: NewHostLimiter(opts.RequestDelay),
		clients: make(map[string]*Client),
	}
	if opts.RespectRobots {
		f.robots = NewRobotsAgent(hc, opts.RobotsAgent, 0)
	}
	return f
}

// Shared returns the client carrying only the factory's base credentials.
func (f *Factory) Shared() *Client {
	return f.Client(Credentials{})
}

// Client returns a client for the base credentials merged with extra.
func (f *Factory) Client(extra Credentials) *Client {
	creds := f.opts.Credentials.Merge(extra)
	key := creds.Key()

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[key]; ok {
		return c
	}
	c := &Client{
		http:      f.http,
		headers:   f.opts.Headers,
		userAgent: f.opts.UserAgents[rand.IntN(len(f.opts.UserAgents))],
		creds:     creds,
		limiter:   f.limiter,
		robots:    f.robots,
		maxPage:   f.opts.MaxPageBytes,
	}
	f.clients[key] = c
	return c
}

// Client sends requests with a fixed user agent, headers and credentials.
// It holds no mutable state of its own and is safe for concurrent use.
type Client struct {
	http      *http.Client
	headers   map[string]string
	userAgent string
	creds     Credentials
	limiter   *HostLimiter
	robots    *RobotsAgent
	maxPage   int64
}

// UserAgent returns the user agent the client sends.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// NewRequest builds a request bound to ctx.
func (c *Client) NewRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, "build request", rawURL, err)
	}
	return req, nil
}

// Do sends req after applying headers and credentials and waiting for the
// host's turn. Transport failures come back as network errors; the status
// code is left to the caller.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for k, v := range c.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	c.creds.apply(req)

	if err := c.limiter.Wait(req.Context(), req.URL.Host); err != nil {
		return nil, classifyTransport(req, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(req, err)
	}
	return resp, nil
}

func classifyTransport(req *http.Request, err error) error {
	if errors.Is(req.Context().Err(), context.Canceled) {
		return domain.NewError(domain.KindCanceled, req.Method, req.URL.String(), err)
	}
	return domain.NewError(domain.KindNetwork, req.Method, req.URL.String(), err)
}
