package extractor

import (
	"regexp"

	"github.com/elsanchez/resfetch/internal/domain"
)

// Embed recognizes pages on streaming hosts whose media cannot be fetched
// directly. It records the canonical page URL as an embed candidate, for
// the report, and then runs the wrapped extractor over the page.
type Embed struct {
	name      string
	domains   []string
	pattern   *regexp.Regexp
	canonical func(m []string) string
	next      Extractor
}

func defaultEmbeds(next Extractor) []*Embed {
	return []*Embed{
		{
			name:    "youtube",
			domains: []string{"youtube.com", "youtu.be"},
			pattern: regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([a-zA-Z0-9_-]{11})`),
			canonical: func(m []string) string {
				return "https://www.youtube.com/watch?v=" + m[1]
			},
			next: next,
		},
		{
			name:    "bilibili",
			domains: []string{"bilibili.com"},
			pattern: regexp.MustCompile(`bilibili\.com/video/(BV[a-zA-Z0-9]+|av\d+)`),
			canonical: func(m []string) string {
				return "https://www.bilibili.com/video/" + m[1]
			},
			next: next,
		},
		{
			name:    "vimeo",
			domains: []string{"vimeo.com"},
			pattern: regexp.MustCompile(`vimeo\.com/(?:video/)?(\d+)`),
			canonical: func(m []string) string {
				return "https://vimeo.com/" + m[1]
			},
			next: next,
		},
		{
			name:    "dailymotion",
			domains: []string{"dailymotion.com"},
			pattern: regexp.MustCompile(`dailymotion\.com/video/([a-zA-Z0-9]+)`),
			canonical: func(m []string) string {
				return "https://www.dailymotion.com/video/" + m[1]
			},
			next: next,
		},
	}
}

// Name returns the host family the extractor handles.
func (e *Embed) Name() string {
	return e.name
}

func (e *Embed) Extract(content []byte, sourceURL string) ([]domain.Candidate, error) {
	var out []domain.Candidate
	if m := e.pattern.FindStringSubmatch(sourceURL); m != nil {
		out = append(out, domain.Candidate{
			URL:        e.canonical(m),
			Strategy:   domain.StrategyEmbedScan,
			Confidence: domain.ConfidenceEmbed,
			NameHint:   Title(content),
			Source:     sourceURL,
		})
	}

	if e.next == nil {
		return out, nil
	}
	rest, err := e.next.Extract(content, sourceURL)
	if err != nil {
		return out, err
	}
	return append(out, rest...), nil
}
