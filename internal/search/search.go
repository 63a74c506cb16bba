// Package search finds resource URLs embedded in arbitrary JSON payloads.
//
// A string value is a field match when its enclosing key is one of the
// configured hints and the value looks like a URL; field matches never go
// through the content matchers. Any other string accepted by a content
// matcher is a keyword match and ranks below every field match.
package search

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/media"
)

// Mode selects between single-shot extraction and enumeration.
type Mode int

const (
	FindFirst Mode = iota
	EnumerateAll
)

// MatchKind says which rule accepted a value.
type MatchKind int

const (
	FieldMatch MatchKind = iota
	ContentMatch
)

// Match is one URL-shaped string found in the tree.
type Match struct {
	Value string
	Key   string
	Kind  MatchKind
}

// Confidence maps the match kind onto the candidate ranking.
func (m Match) Confidence() domain.Confidence {
	if m.Kind == FieldMatch {
		return domain.ConfidenceField
	}
	return domain.ConfidenceKeyword
}

// Searcher holds the field hints and content matchers for a search.
type Searcher struct {
	hints    map[string]struct{}
	matchers []Matcher
}

// New builds a Searcher. Hints are compared case-insensitively.
func New(fieldHints []string, matchers ...Matcher) *Searcher {
	hints := make(map[string]struct{}, len(fieldHints))
	for _, h := range fieldHints {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hints[h] = struct{}{}
		}
	}
	return &Searcher{hints: hints, matchers: matchers}
}

// Search walks v and returns the matches. In FindFirst mode at most one
// match is returned: the first field match in traversal order, else the
// first content match. In EnumerateAll mode all field matches come first,
// then all content matches, each group in traversal order.
func (s *Searcher) Search(v Value, mode Mode) ([]Match, error) {
	if !v.IsContainer() {
		return nil, domain.NewError(domain.KindInvalidInput, "structured search", "", fmt.Errorf("cannot traverse a %s", v.Kind()))
	}

	var fields, contents []Match
	Walk(v, func(key string, node Value) bool {
		if node.Kind() != String {
			return true
		}
		text := strings.TrimSpace(node.Text())
		if text == "" {
			return true
		}

		if _, ok := s.hints[strings.ToLower(key)]; ok && LooksLikeURL(text) {
			fields = append(fields, Match{Value: text, Key: key, Kind: FieldMatch})
			// a field hit is final in FindFirst mode
			return mode == EnumerateAll
		}

		if mode == FindFirst && len(contents) > 0 {
			return true
		}
		for _, m := range s.matchers {
			if m.Match(key, text) {
				contents = append(contents, Match{Value: text, Key: key, Kind: ContentMatch})
				break
			}
		}
		return true
	})

	if mode == FindFirst {
		switch {
		case len(fields) > 0:
			return fields[:1], nil
		case len(contents) > 0:
			return contents[:1], nil
		}
		return nil, nil
	}
	return append(fields, contents...), nil
}

// SearchBytes decodes a JSON document and searches it.
func (s *Searcher) SearchBytes(data []byte, mode Mode) ([]Match, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return s.Search(v, mode)
}

// URLs flattens matches to their string values.
func URLs(matches []Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Value)
	}
	return out
}

// LooksLikeURL accepts absolute http(s) URLs and root-relative paths.
func LooksLikeURL(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), "http") || strings.HasPrefix(s, "/")
}

// ToCandidates resolves matches against the URL of the document they came
// from and turns them into candidates. Matches that cannot be resolved to an
// absolute http(s) URL are dropped.
func ToCandidates(matches []Match, source string, targetID string) []domain.Candidate {
	base, _ := url.Parse(source)

	out := make([]domain.Candidate, 0, len(matches))
	for _, m := range matches {
		ref, err := url.Parse(m.Value)
		if err != nil {
			continue
		}
		if !ref.IsAbs() {
			if base == nil || !base.IsAbs() {
				continue
			}
			ref = base.ResolveReference(ref)
		}
		if ref.Scheme != "http" && ref.Scheme != "https" {
			continue
		}
		abs := ref.String()
		out = append(out, domain.Candidate{
			URL:             abs,
			Strategy:        domain.StrategyStructuredSearch,
			ContentTypeHint: media.ContentTypeForExtension(media.URLExtension(abs)),
			Confidence:      m.Confidence(),
			TargetID:        targetID,
			Source:          source,
		})
	}
	return out
}
