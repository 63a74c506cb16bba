package extractor

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/media"
)

// videoHostPatterns match iframe sources served by external video hosts.
var videoHostPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(^|//)([a-z0-9-]+\.)*youtube(-nocookie)?\.com/`),
	regexp.MustCompile(`(?i)(^|//)youtu\.be/`),
	regexp.MustCompile(`(?i)(^|//)([a-z0-9-]+\.)*vimeo\.com/`),
	regexp.MustCompile(`(?i)(^|//)([a-z0-9-]+\.)*dailymotion\.com/`),
	regexp.MustCompile(`(?i)(^|//)([a-z0-9-]+\.)*bilibili\.com/`),
}

// Generic runs the four page scans: media tags, video-host iframes, media
// links and a raw regex over the document. All scans always run and their
// results are concatenated in that order.
type Generic struct {
	rawURL []*regexp.Regexp
}

// NewGeneric builds the generic extractor for the recognized media extensions.
func NewGeneric() *Generic {
	exts := make([]string, 0, len(media.Extensions()))
	for _, e := range media.Extensions() {
		exts = append(exts, regexp.QuoteMeta(strings.TrimPrefix(e, ".")))
	}
	alt := strings.Join(exts, "|")

	return &Generic{
		rawURL: []*regexp.Regexp{
			regexp.MustCompile(`(?i)https?://[^\s"'<>]+\.(?:` + alt + `)(?:\?[^\s"'<>]*)?`),
			regexp.MustCompile(`(?i)"(https?://[^"]+\.(?:` + alt + `))"`),
			regexp.MustCompile(`(?i)'(https?://[^']+\.(?:` + alt + `))'`),
		},
	}
}

func (g *Generic) Extract(content []byte, sourceURL string) ([]domain.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, domain.NewError(domain.KindDecode, "parse html", sourceURL, err)
	}

	base := documentBase(doc, sourceURL)
	c := collector{base: base, source: sourceURL}

	g.scanMediaTags(doc, &c)
	g.scanFrames(doc, &c)
	g.scanLinks(doc, &c)
	g.scanRaw(content, &c)

	return c.out, nil
}

func (g *Generic) scanMediaTags(doc *goquery.Document, c *collector) {
	doc.Find("video, audio").Each(func(_ int, s *goquery.Selection) {
		title := firstNonEmpty(attr(s, "title"), attr(s, "alt"))
		if src := attr(s, "src"); src != "" {
			c.add(src, domain.StrategyTagScan, domain.ConfidenceTag, attr(s, "type"), title)
		}
		s.Find("source").Each(func(_ int, src *goquery.Selection) {
			if v := attr(src, "src"); v != "" {
				c.add(v, domain.StrategyTagScan, domain.ConfidenceTag, attr(src, "type"), firstNonEmpty(title, attr(src, "title")))
			}
		})
	})
}

func (g *Generic) scanFrames(doc *goquery.Document, c *collector) {
	doc.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		src := attr(s, "src")
		for _, re := range videoHostPatterns {
			if re.MatchString(src) {
				c.add(src, domain.StrategyEmbedScan, domain.ConfidenceEmbed, "", attr(s, "title"))
				return
			}
		}
	})
}

func (g *Generic) scanLinks(doc *goquery.Document, c *collector) {
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := attr(s, "href")
		if media.HasMediaExtension(href) {
			c.add(href, domain.StrategyLinkScan, domain.ConfidenceLink, "", strings.TrimSpace(s.Text()))
		}
	})
}

func (g *Generic) scanRaw(content []byte, c *collector) {
	text := string(content)
	for _, re := range g.rawURL {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			u := m[0]
			if len(m) > 1 {
				u = m[1]
			}
			c.add(u, domain.StrategyRegexScan, domain.ConfidenceRegex, "", "")
		}
	}
}

// Title returns the document title, or "" when the content is not HTML.
func Title(content []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// collector resolves references once, at the extraction boundary.
type collector struct {
	base   *url.URL
	source string
	out    []domain.Candidate
}

func (c *collector) add(ref string, strategy domain.Strategy, conf domain.Confidence, typeHint, name string) {
	abs, ok := resolve(c.base, ref)
	if !ok {
		return
	}
	if typeHint == "" {
		typeHint = media.ContentTypeForExtension(media.URLExtension(abs))
	}
	c.out = append(c.out, domain.Candidate{
		URL:             abs,
		Strategy:        strategy,
		ContentTypeHint: typeHint,
		Confidence:      conf,
		NameHint:        name,
		Source:          c.source,
	})
}

func documentBaseURL(sourceURL string) *url.URL {
	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil
	}
	return base
}

func documentBase(doc *goquery.Document, sourceURL string) *url.URL {
	base := documentBaseURL(sourceURL)
	if base == nil {
		return nil
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := url.Parse(strings.TrimSpace(href)); err == nil {
			return base.ResolveReference(b)
		}
	}
	return base
}

func resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		if base == nil || !base.IsAbs() {
			return "", false
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
