package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/net/html/charset"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/media"
)

// Page is a fetched document with its body decoded to UTF-8 when the
// response is text.
type Page struct {
	URL         string
	ContentType string
	StatusCode  int
	Body        []byte
}

// FetchPage downloads a page. robots.txt is consulted first when the
// factory was built with RespectRobots; a denial is a disallowed error.
// Non-2xx responses are returned as status errors without a body.
func (c *Client) FetchPage(ctx context.Context, rawURL string) (*Page, error) {
	if c.robots != nil && !c.robots.Allowed(ctx, rawURL) {
		return nil, domain.NewError(domain.KindDisallowed, "fetch page", rawURL, fmt.Errorf("blocked by robots.txt"))
	}

	req, err := c.NewRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.StatusError("fetch page", rawURL, resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxPage))
	if err != nil {
		return nil, domain.NewError(domain.KindNetwork, "read page", rawURL, err)
	}

	body := raw
	if isText(ct) {
		body, err = decode(raw, ct)
		if err != nil {
			return nil, domain.NewError(domain.KindDecode, "decode page", rawURL, err)
		}
	}

	return &Page{
		URL:         resp.Request.URL.String(),
		ContentType: ct,
		StatusCode:  resp.StatusCode,
		Body:        body,
	}, nil
}

func isText(contentType string) bool {
	base := media.BaseType(contentType)
	switch {
	case base == "":
		return true
	case base == "text/html", base == "application/xhtml+xml", base == "text/plain":
		return true
	case media.IsFeed(contentType):
		// XML declares its own encoding; gofeed handles it.
		return false
	}
	return false
}

// decode converts raw to UTF-8 using the declared charset, a BOM or a
// <meta charset> sniff, in that order.
func decode(raw []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
