package cookies

import (
	"context"
	"fmt"
	"strings"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/chrome"
	_ "github.com/browserutils/kooky/browser/chromium"
	_ "github.com/browserutils/kooky/browser/edge"
	_ "github.com/browserutils/kooky/browser/firefox"
	_ "github.com/browserutils/kooky/browser/opera"
)

// BrowserExtractor handles extraction of cookies from web browsers
type BrowserExtractor struct {
	parser *CookieParser
	read   func(ctx context.Context, filters ...kooky.Filter) (kooky.Cookies, error)
}

// NewBrowserExtractor creates a new browser cookie extractor
func NewBrowserExtractor() *BrowserExtractor {
	return &BrowserExtractor{
		parser: NewCookieParser(),
		read:   kooky.ReadCookies,
	}
}

// SupportedBrowsers returns a list of supported browser names
func (e *BrowserExtractor) SupportedBrowsers() []string {
	return []string{
		"chrome",
		"chromium",
		"firefox",
		"edge",
		"opera",
	}
}

// ExtractOptions contains options for browser cookie extraction
type ExtractOptions struct {
	Browser    string // Browser name (chrome, firefox, etc.), empty for all
	Domain     string // Domain to filter cookies (e.g., "example.com")
	OutputPath string // Path to save cookies in Netscape format
}

// Extract reads the cookies of a domain from the installed browsers and
// optionally saves them in Netscape format
func (e *BrowserExtractor) Extract(ctx context.Context, opts ExtractOptions) ([]NetscapeCookie, error) {
	browser := strings.ToLower(opts.Browser)

	var filters []kooky.Filter
	if opts.Domain != "" {
		// Match cookies for domain and its subdomains
		filters = append(filters, kooky.DomainHasSuffix(opts.Domain))
	}

	cookies, err := e.read(ctx, filters...)
	if err != nil && len(cookies) == 0 {
		return nil, fmt.Errorf("read cookies from browser: %w", err)
	}

	if len(cookies) == 0 {
		return nil, fmt.Errorf("no cookies found for domain: %s", opts.Domain)
	}

	netscapeCookies := make([]NetscapeCookie, 0, len(cookies))
	for _, cookie := range e.matching(ctx, cookies, browser, filters) {
		netscapeCookies = append(netscapeCookies, fromKooky(cookie))
	}

	if len(netscapeCookies) == 0 {
		return nil, fmt.Errorf("no cookies found for browser '%s' and domain '%s'", browser, opts.Domain)
	}

	if opts.OutputPath != "" {
		if err := e.parser.WriteFile(opts.OutputPath, netscapeCookies); err != nil {
			return nil, fmt.Errorf("save cookies: %w", err)
		}
	}

	return netscapeCookies, nil
}

// GetBrowserCookieCount returns the number of cookies for a domain in a browser
func (e *BrowserExtractor) GetBrowserCookieCount(ctx context.Context, browser, domain string) (int, error) {
	filter := kooky.DomainHasSuffix(domain)
	cookies, err := e.read(ctx, filter)
	if err != nil && len(cookies) == 0 {
		return 0, fmt.Errorf("read cookies: %w", err)
	}

	return len(e.matching(ctx, cookies, strings.ToLower(browser), []kooky.Filter{filter})), nil
}

// matching applies the filters again after reading, since kooky.ReadCookies
// does not pass them on to the cookie stores.
func (e *BrowserExtractor) matching(ctx context.Context, cookies kooky.Cookies, browser string, filters []kooky.Filter) []*kooky.Cookie {
	out := make([]*kooky.Cookie, 0, len(cookies))
	for _, cookie := range cookies {
		if cookie == nil || !browserMatches(cookie, browser) {
			continue
		}
		if !kooky.FilterCookie(ctx, cookie, filters...) {
			continue
		}
		out = append(out, cookie)
	}
	return out
}

func browserMatches(cookie *kooky.Cookie, browser string) bool {
	if browser == "" {
		return true
	}
	if cookie.Browser == nil {
		return false
	}
	return strings.Contains(strings.ToLower(cookie.Browser.Browser()), browser)
}

func fromKooky(cookie *kooky.Cookie) NetscapeCookie {
	domain := cookie.Domain
	if domain != "" && !strings.HasPrefix(domain, ".") {
		domain = "." + domain
	}

	expiration := cookie.Expires.Unix()
	if cookie.Expires.IsZero() || expiration < 0 {
		expiration = 0
	}

	return NetscapeCookie{
		Domain:     domain,
		Flag:       "TRUE",
		Path:       cookie.Path,
		Secure:     cookie.Secure,
		HttpOnly:   cookie.HttpOnly,
		Expiration: expiration,
		Name:       cookie.Name,
		Value:      cookie.Value,
	}
}
