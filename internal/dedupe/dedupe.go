// Package dedupe removes duplicate candidates while preserving the order in
// which they were discovered.
package dedupe

import (
	"net/url"
	"sort"
	"strings"

	"github.com/elsanchez/resfetch/internal/domain"
)

// Policy tunes how URLs are canonicalized.
type Policy struct {
	// SortQuery orders query parameters by key before comparing.
	SortQuery bool
}

// Dedupe returns candidates with duplicates removed. The first occurrence of
// a canonical URL keeps its position; if a later duplicate carries a higher
// confidence, that slot takes the stronger strategy, confidence and hint.
// The input slice is not modified.
func Dedupe(candidates []domain.Candidate, policy Policy) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(candidates))
	seen := make(map[string]int, len(candidates))

	for _, c := range candidates {
		key := Canonical(c.URL, policy)
		i, dup := seen[key]
		if !dup {
			seen[key] = len(out)
			out = append(out, c)
			continue
		}
		if c.Confidence > out[i].Confidence {
			kept := out[i]
			kept.Strategy = c.Strategy
			kept.Confidence = c.Confidence
			if c.ContentTypeHint != "" {
				kept.ContentTypeHint = c.ContentTypeHint
			}
			if kept.NameHint == "" {
				kept.NameHint = c.NameHint
			}
			out[i] = kept
		}
	}
	return out
}

// Canonical returns the comparison key for a URL: lower-cased scheme and
// host, default port dropped, fragment dropped, path and query kept. URLs
// that do not parse are compared verbatim.
func Canonical(raw string, policy Policy) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !isDefaultPort(scheme, port) {
		host += ":" + port
	}

	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}

	query := u.RawQuery
	if policy.SortQuery && query != "" {
		query = sortQuery(query)
	}

	key := scheme + "://" + host + p
	if query != "" {
		key += "?" + query
	}
	return key
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// sortQuery orders the raw "k=v" pairs by key, keeping the relative order
// of repeated keys and the original escaping.
func sortQuery(raw string) string {
	pairs := strings.Split(raw, "&")
	sort.SliceStable(pairs, func(i, j int) bool {
		ki, _, _ := strings.Cut(pairs[i], "=")
		kj, _, _ := strings.Cut(pairs[j], "=")
		return ki < kj
	})
	return strings.Join(pairs, "&")
}

// Rank sorts candidates by confidence, highest first, keeping discovery
// order among equals.
func Rank(candidates []domain.Candidate) []domain.Candidate {
	out := append([]domain.Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}
