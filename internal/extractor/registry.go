// Package extractor derives candidates from fetched page content.
//
// Extractors are looked up by normalized domain in a Registry; domains
// without a registered extractor get the generic one.
package extractor

import (
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/media"
)

// Extractor turns page content into candidates. sourceURL is the URL the
// content was fetched from and is used to resolve relative references.
type Extractor interface {
	Extract(content []byte, sourceURL string) ([]domain.Candidate, error)
}

// Func adapts a function to Extractor.
type Func func(content []byte, sourceURL string) ([]domain.Candidate, error)

func (f Func) Extract(content []byte, sourceURL string) ([]domain.Candidate, error) {
	return f(content, sourceURL)
}

// Registry maps normalized domains to extractors.
type Registry struct {
	mu       sync.RWMutex
	byDomain map[string]Extractor
	fallback Extractor
	feed     Extractor
}

// NewRegistry creates a registry whose fallback is the given extractor.
func NewRegistry(fallback Extractor) *Registry {
	return &Registry{
		byDomain: make(map[string]Extractor),
		fallback: fallback,
	}
}

// DefaultRegistry has the generic extractor as fallback, the feed extractor
// for RSS/Atom content and the embed detectors for the video hosts the
// generic scan cannot download from.
func DefaultRegistry() *Registry {
	generic := NewGeneric()
	r := NewRegistry(generic)
	r.SetFeed(NewFeed())
	for _, e := range defaultEmbeds(generic) {
		for _, d := range e.domains {
			r.Register(d, e)
		}
	}
	return r
}

// Register associates an extractor with a domain.
func (r *Registry) Register(domainName string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byDomain[NormalizeDomain(domainName)] = e
}

// SetFeed sets the extractor used for feed content on unregistered domains.
func (r *Registry) SetFeed(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feed = e
}

// For returns the extractor registered for the domain or one of its parent
// domains, else the fallback.
func (r *Registry) For(domainName string) Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d := NormalizeDomain(domainName)
	for d != "" {
		if e, ok := r.byDomain[d]; ok {
			return e
		}
		_, parent, found := strings.Cut(d, ".")
		if !found || !strings.Contains(parent, ".") {
			break
		}
		d = parent
	}
	return r.fallback
}

// ForContent is For, except that feed content on a domain without a
// specific extractor goes to the feed extractor.
func (r *Registry) ForContent(domainName, contentType string) Extractor {
	e := r.For(domainName)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if e == r.fallback && r.feed != nil && media.IsFeed(contentType) {
		return r.feed
	}
	return e
}

// Domains lists the registered domains.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byDomain))
	for d := range r.byDomain {
		out = append(out, d)
	}
	return out
}

// NormalizeDomain lower-cases a host, strips the port, a trailing dot and a
// leading "www.". Full URLs are accepted.
func NormalizeDomain(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Host
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(s, ".")
	return strings.TrimPrefix(s, "www.")
}
