package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsAgent caches robots.txt per origin and answers whether a page may
// be fetched. Unreachable robots files allow everything.
type RobotsAgent struct {
	client  *http.Client
	agent   string
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsAgent creates an agent that matches rules for the given agent name.
func NewRobotsAgent(client *http.Client, agent string, timeout time.Duration) *RobotsAgent {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RobotsAgent{
		client:  client,
		agent:   agent,
		timeout: timeout,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether rawURL may be fetched.
func (a *RobotsAgent) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	origin := u.Scheme + "://" + u.Host

	a.mu.Lock()
	data, ok := a.cache[origin]
	a.mu.Unlock()

	if !ok {
		data = a.load(ctx, origin)
		a.mu.Lock()
		a.cache[origin] = data
		a.mu.Unlock()
	}
	if data == nil {
		return true
	}

	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	return data.TestAgent(p, a.agent)
}

func (a *RobotsAgent) load(ctx context.Context, origin string) *robotstxt.RobotsData {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil
	}
	return data
}
