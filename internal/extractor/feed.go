package extractor

import (
	"bytes"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/media"
)

// Feed extracts enclosures from RSS and Atom documents.
type Feed struct{}

// NewFeed creates a feed extractor.
func NewFeed() *Feed {
	return &Feed{}
}

func (f *Feed) Extract(content []byte, sourceURL string) ([]domain.Candidate, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(content))
	if err != nil {
		return nil, domain.NewError(domain.KindDecode, "parse feed", sourceURL, err)
	}

	base := documentBaseURL(sourceURL)
	c := collector{base: base, source: sourceURL}

	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		title := strings.TrimSpace(item.Title)
		for _, enc := range item.Enclosures {
			if enc == nil || enc.URL == "" {
				continue
			}
			c.add(enc.URL, domain.StrategyFeedScan, domain.ConfidenceFeed, enc.Type, title)
		}
		if media.HasMediaExtension(item.Link) {
			c.add(item.Link, domain.StrategyLinkScan, domain.ConfidenceLink, "", title)
		}
	}
	return c.out, nil
}
