package cookies

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/extractor"
	"github.com/elsanchez/resfetch/internal/fetcher"
)

const defaultCheckTimeout = 10 * time.Second

// ValidationResult contains the result of cookie validation
type ValidationResult struct {
	IsValid   bool
	Status    string // "valid", "expired", "invalid", "unknown"
	Message   string
	ExpiresAt *time.Time
}

// CookieValidator handles validation of cookies
type CookieValidator struct {
	parser    *CookieParser
	factory   *fetcher.Factory
	checkURLs map[string]string
	timeout   time.Duration
	now       func() time.Time
}

// NewCookieValidator creates a validator. checkURLs maps a domain to a page
// that only answers 200 for a logged-in session; factory may be nil when
// only expiration checks are needed.
func NewCookieValidator(factory *fetcher.Factory, checkURLs map[string]string) *CookieValidator {
	urls := make(map[string]string, len(checkURLs))
	for d, u := range checkURLs {
		urls[extractor.NormalizeDomain(d)] = u
	}
	return &CookieValidator{
		parser:    NewCookieParser(),
		factory:   factory,
		checkURLs: urls,
		timeout:   defaultCheckTimeout,
		now:       time.Now,
	}
}

// ValidateFile validates a cookie file by checking expiration timestamps
func (v *CookieValidator) ValidateFile(path string) (*ValidationResult, error) {
	cookies, err := v.parser.ParseFile(path)
	if err != nil {
		return &ValidationResult{
			IsValid: false,
			Status:  domain.ValidationStatusInvalid,
			Message: fmt.Sprintf("failed to parse cookie file: %v", err),
		}, nil
	}

	return v.ValidateExpiration(cookies), nil
}

// ValidateExpiration checks if cookies are expired. Session cookies count
// as valid.
func (v *CookieValidator) ValidateExpiration(cookies []NetscapeCookie) *ValidationResult {
	if len(cookies) == 0 {
		return &ValidationResult{
			IsValid: false,
			Status:  domain.ValidationStatusInvalid,
			Message: "no cookies found",
		}
	}

	now := v.now()
	expiredCount := 0
	for _, cookie := range cookies {
		if cookie.Expired(now) {
			expiredCount++
		}
	}

	var expiresAt *time.Time
	if earliest := v.parser.FindEarliestExpiration(cookies); !earliest.IsZero() {
		expiresAt = &earliest
	}

	switch {
	case expiredCount == len(cookies):
		return &ValidationResult{
			IsValid:   false,
			Status:    domain.ValidationStatusExpired,
			Message:   fmt.Sprintf("all %d cookies expired", len(cookies)),
			ExpiresAt: expiresAt,
		}
	case expiredCount > 0:
		return &ValidationResult{
			IsValid:   false,
			Status:    domain.ValidationStatusExpired,
			Message:   fmt.Sprintf("%d of %d cookies expired", expiredCount, len(cookies)),
			ExpiresAt: expiresAt,
		}
	}

	msg := fmt.Sprintf("all %d cookies valid", len(cookies))
	if expiresAt != nil {
		msg += ", expires " + expiresAt.Format("2006-01-02")
	}
	return &ValidationResult{
		IsValid:   true,
		Status:    domain.ValidationStatusValid,
		Message:   msg,
		ExpiresAt: expiresAt,
	}
}

// CheckURL returns the configured check URL for a domain or one of its
// parent domains.
func (v *CookieValidator) CheckURL(dom string) (string, bool) {
	for _, d := range domainChain(extractor.NormalizeDomain(dom)) {
		if u, ok := v.checkURLs[d]; ok {
			return u, true
		}
	}
	return "", false
}

// ValidateHTTP sends the cookies to the domain's check URL. A 200 that does
// not land on a login page means the session works.
func (v *CookieValidator) ValidateHTTP(ctx context.Context, dom string, cookiePath string) (*ValidationResult, error) {
	endpoint, ok := v.CheckURL(dom)
	if !ok || v.factory == nil {
		return &ValidationResult{
			IsValid: false,
			Status:  domain.ValidationStatusUnknown,
			Message: fmt.Sprintf("no check URL configured for domain: %s", dom),
		}, nil
	}

	cookies, err := v.parser.ParseFile(cookiePath)
	if err != nil {
		return &ValidationResult{
			IsValid: false,
			Status:  domain.ValidationStatusInvalid,
			Message: fmt.Sprintf("failed to load cookies: %v", err),
		}, nil
	}

	client := v.factory.Client(fetcher.Credentials{Cookies: v.parser.ToHTTPCookies(cookies, v.now())})

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := client.NewRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &ValidationResult{
			IsValid: false,
			Status:  domain.ValidationStatusInvalid,
			Message: fmt.Sprintf("HTTP request failed: %v", err),
		}, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode == http.StatusOK && isLoginPage(resp.Request.URL.Path):
		return &ValidationResult{
			IsValid: false,
			Status:  domain.ValidationStatusInvalid,
			Message: "redirected to login page",
		}, nil
	case resp.StatusCode == http.StatusOK:
		return &ValidationResult{
			IsValid: true,
			Status:  domain.ValidationStatusValid,
			Message: "HTTP validation successful",
		}, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &ValidationResult{
			IsValid: false,
			Status:  domain.ValidationStatusInvalid,
			Message: fmt.Sprintf("authentication failed (HTTP %d)", resp.StatusCode),
		}, nil
	}

	return &ValidationResult{
		IsValid: false,
		Status:  domain.ValidationStatusInvalid,
		Message: fmt.Sprintf("unexpected HTTP status: %d", resp.StatusCode),
	}, nil
}

// ValidateAccount validates an account's cookies by checking expiration timestamps
func (v *CookieValidator) ValidateAccount(account *domain.Account) (*ValidationResult, error) {
	return v.ValidateFile(account.CookiePath)
}

// ValidateAccountHTTP validates an account's cookies against its domain's
// check URL. It runs even when some cookies expired, since non-critical
// cookies may expire while the session cookie is still accepted.
func (v *CookieValidator) ValidateAccountHTTP(ctx context.Context, account *domain.Account) (*ValidationResult, error) {
	return v.ValidateHTTP(ctx, account.Domain, account.CookiePath)
}

func isLoginPage(path string) bool {
	p := strings.ToLower(path)
	return strings.Contains(p, "login") || strings.Contains(p, "signin") || strings.Contains(p, "sign_in")
}

// domainChain lists a domain followed by its parents down to two labels:
// "a.b.example.com" gives a.b.example.com, b.example.com, example.com.
func domainChain(dom string) []string {
	if dom == "" {
		return nil
	}
	chain := []string{dom}
	for strings.Count(dom, ".") > 1 {
		dom = dom[strings.Index(dom, ".")+1:]
		chain = append(chain, dom)
	}
	return chain
}
