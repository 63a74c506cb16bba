package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elsanchez/resfetch/internal/domain"
)

const page = `<html><head><title>Lesson 1</title></head><body>
<video src="/media/intro.mp4" title="Intro"><source src="clip.webm" type="video/webm"></video>
<audio><source src="https://cdn.example.com/track.mp3"></audio>
<iframe src="https://www.youtube.com/embed/dQw4w9WgXcQ"></iframe>
<iframe src="https://ads.example.com/banner"></iframe>
<a href="downloads/lesson.mkv">Download lesson</a>
<a href="/about">About</a>
<script>var player = {file: "https://stream.example.com/hls/master.m3u8", alt: 'https://alt.example.com/v.mov'};</script>
</body></html>`

func TestGeneric_RunsAllScansInOrder(t *testing.T) {
	got, err := NewGeneric().Extract([]byte(page), "https://example.com/course/1")
	require.NoError(t, err)

	var strategies []domain.Strategy
	urls := make(map[string]domain.Strategy)
	for _, c := range got {
		strategies = append(strategies, c.Strategy)
		if _, seen := urls[c.URL]; !seen {
			urls[c.URL] = c.Strategy
		}
	}

	assert.Equal(t, domain.StrategyTagScan, urls["https://example.com/media/intro.mp4"])
	assert.Equal(t, domain.StrategyTagScan, urls["https://example.com/course/clip.webm"])
	assert.Equal(t, domain.StrategyTagScan, urls["https://cdn.example.com/track.mp3"])
	assert.Equal(t, domain.StrategyEmbedScan, urls["https://www.youtube.com/embed/dQw4w9WgXcQ"])
	assert.Equal(t, domain.StrategyLinkScan, urls["https://example.com/course/downloads/lesson.mkv"])
	assert.Equal(t, domain.StrategyRegexScan, urls["https://stream.example.com/hls/master.m3u8"])
	assert.Equal(t, domain.StrategyRegexScan, urls["https://alt.example.com/v.mov"])
	assert.NotContains(t, urls, "https://ads.example.com/banner")
	assert.NotContains(t, urls, "https://example.com/about")

	// scans are concatenated: tags, frames, links, then raw matches
	require.NotEmpty(t, strategies)
	assert.Equal(t, domain.StrategyTagScan, strategies[0])
	assert.Equal(t, domain.StrategyRegexScan, strategies[len(strategies)-1])

	for _, c := range got {
		assert.Contains(t, c.URL, "://", "candidate urls leave extraction absolute")
	}
}

func TestGeneric_RespectsBaseElement(t *testing.T) {
	doc := `<html><head><base href="https://static.example.net/assets/"></head>
<body><a href="v/1.mp4">one</a></body></html>`

	got, err := NewGeneric().Extract([]byte(doc), "https://example.com/page")
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "https://static.example.net/assets/v/1.mp4", got[0].URL)
	assert.Equal(t, "one", got[0].NameHint)
	assert.Equal(t, "video/mp4", got[0].ContentTypeHint)
}

func TestRegistry_DispatchByNormalizedDomain(t *testing.T) {
	r := DefaultRegistry()

	assert.IsType(t, &Generic{}, r.For("unknown.example.org"))
	assert.IsType(t, &Embed{}, r.For("WWW.YouTube.com"))
	assert.IsType(t, &Embed{}, r.For("m.youtube.com"))
	assert.IsType(t, &Embed{}, r.For("https://www.bilibili.com/video/BV1xx"))
	assert.IsType(t, &Feed{}, r.ForContent("podcasts.example.org", "application/rss+xml; charset=utf-8"))
	assert.IsType(t, &Embed{}, r.ForContent("vimeo.com", "application/rss+xml"))

	custom := Func(func(content []byte, sourceURL string) ([]domain.Candidate, error) {
		return []domain.Candidate{{URL: sourceURL + "/custom.mp3"}}, nil
	})
	r.Register("www.Example.org:8443", custom)
	got, err := r.For("example.org").Extract(nil, "https://example.org")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/custom.mp3", got[0].URL)
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"www.Example.com", "example.com"},
		{"example.com:8080", "example.com"},
		{"https://www.example.com/path?q=1", "example.com"},
		{"example.com.", "example.com"},
		{"  CDN.example.com ", "cdn.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDomain(tt.in))
		})
	}
}

func TestEmbed_RecordsCanonicalURL(t *testing.T) {
	r := DefaultRegistry()
	got, err := r.For("youtu.be").Extract([]byte(page), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	require.NotEmpty(t, got)

	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", got[0].URL)
	assert.Equal(t, domain.StrategyEmbedScan, got[0].Strategy)
	assert.Equal(t, "Lesson 1", got[0].NameHint)
	assert.False(t, got[0].IsDownloadable())
	assert.Greater(t, len(got), 1, "generic scan still runs")
}

func TestFeed_Enclosures(t *testing.T) {
	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Show</title>
<item><title>Episode 1</title><link>https://pod.example.com/ep1</link>
<enclosure url="https://pod.example.com/audio/ep1.mp3" length="123456" type="audio/mpeg"/></item>
<item><title>Episode 2</title><link>https://pod.example.com/ep2.m4a</link></item>
</channel></rss>`

	got, err := NewFeed().Extract([]byte(rss), "https://pod.example.com/feed.xml")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "https://pod.example.com/audio/ep1.mp3", got[0].URL)
	assert.Equal(t, domain.StrategyFeedScan, got[0].Strategy)
	assert.Equal(t, "audio/mpeg", got[0].ContentTypeHint)
	assert.Equal(t, "Episode 1", got[0].NameHint)
	assert.Equal(t, domain.StrategyLinkScan, got[1].Strategy)

	_, err = NewFeed().Extract([]byte("not a feed"), "https://pod.example.com/feed.xml")
	require.Error(t, err)
	assert.Equal(t, domain.KindDecode, domain.KindOf(err))
}
