package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elsanchez/resfetch/internal/domain"
)

func cand(u string, conf domain.Confidence) domain.Candidate {
	return domain.Candidate{URL: u, Confidence: conf, Strategy: domain.StrategyLinkScan}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		policy Policy
		want   string
	}{
		{"lowercase host and scheme", "HTTPS://Example.COM/A.mp4", Policy{}, "https://example.com/A.mp4"},
		{"drop default https port", "https://example.com:443/a.mp4", Policy{}, "https://example.com/a.mp4"},
		{"drop default http port", "http://example.com:80/a.mp4", Policy{}, "http://example.com/a.mp4"},
		{"keep other port", "http://example.com:8080/a.mp4", Policy{}, "http://example.com:8080/a.mp4"},
		{"drop fragment", "https://example.com/a.mp4#t=10", Policy{}, "https://example.com/a.mp4"},
		{"empty path", "https://example.com", Policy{}, "https://example.com/"},
		{"query order kept", "https://h/a?b=2&a=1", Policy{}, "https://h/a?b=2&a=1"},
		{"query order sorted", "https://h/a?b=2&a=1", Policy{SortQuery: true}, "https://h/a?a=1&b=2"},
		{"not a url", "::nope", Policy{}, "::nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonical(tt.in, tt.policy))
		})
	}
}

func TestDedupe_FirstSeenOrder(t *testing.T) {
	in := []domain.Candidate{
		cand("https://h/b.mp4", 25),
		cand("https://h/a.mp4", 25),
		cand("https://H/b.mp4#x", 25),
		cand("https://h/c.mp4", 25),
		cand("https://h:443/a.mp4", 25),
	}
	out := Dedupe(in, Policy{})

	require.Len(t, out, 3)
	assert.Equal(t, "https://h/b.mp4", out[0].URL)
	assert.Equal(t, "https://h/a.mp4", out[1].URL)
	assert.Equal(t, "https://h/c.mp4", out[2].URL)
}

func TestDedupe_IdempotentAndNonIncreasing(t *testing.T) {
	inputs := [][]domain.Candidate{
		nil,
		{cand("https://h/a.mp4", 20)},
		{cand("https://h/a.mp4", 20), cand("https://h/a.mp4", 20), cand("https://h/a.mp4", 20)},
		{cand("https://h/a?x=1&y=2", 20), cand("https://h/a?y=2&x=1", 30), cand("https://h/b", 5)},
	}
	for _, policy := range []Policy{{}, {SortQuery: true}} {
		for _, in := range inputs {
			once := Dedupe(in, policy)
			twice := Dedupe(once, policy)
			assert.LessOrEqual(t, len(once), len(in))
			assert.Equal(t, once, twice)
		}
	}
}

func TestDedupe_UpgradesConfidenceInPlace(t *testing.T) {
	in := []domain.Candidate{
		{URL: "https://h/x", Confidence: domain.ConfidencePotential, Strategy: domain.StrategyDirectProbe, NameHint: "first"},
		cand("https://h/other.mp4", domain.ConfidenceLink),
		{URL: "https://h/x", Confidence: domain.ConfidenceField, Strategy: domain.StrategyStructuredSearch, ContentTypeHint: "audio/mpeg", NameHint: "second"},
	}
	out := Dedupe(in, Policy{})

	require.Len(t, out, 2)
	assert.Equal(t, "https://h/x", out[0].URL)
	assert.Equal(t, domain.ConfidenceField, out[0].Confidence)
	assert.Equal(t, domain.StrategyStructuredSearch, out[0].Strategy)
	assert.Equal(t, "audio/mpeg", out[0].ContentTypeHint)
	assert.Equal(t, "first", out[0].NameHint)
	assert.True(t, out[0].IsDownloadable())

	assert.Equal(t, domain.ConfidencePotential, in[0].Confidence, "input must not be modified")
}

func TestDedupe_SortQueryPolicy(t *testing.T) {
	in := []domain.Candidate{cand("https://h/a?b=2&a=1", 20), cand("https://h/a?a=1&b=2", 20)}

	assert.Len(t, Dedupe(in, Policy{}), 2)
	assert.Len(t, Dedupe(in, Policy{SortQuery: true}), 1)
}

func TestRank(t *testing.T) {
	in := []domain.Candidate{
		cand("https://h/regex", domain.ConfidenceRegex),
		cand("https://h/tag1", domain.ConfidenceTag),
		cand("https://h/direct", domain.ConfidenceDirect),
		cand("https://h/tag2", domain.ConfidenceTag),
	}
	out := Rank(in)

	urls := make([]string, len(out))
	for i, c := range out {
		urls[i] = c.URL
	}
	assert.Equal(t, []string{"https://h/direct", "https://h/tag1", "https://h/tag2", "https://h/regex"}, urls)
	assert.Equal(t, "https://h/regex", in[0].URL)
}
