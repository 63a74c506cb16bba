package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Credentials is an immutable bundle of auth material applied to every
// request a Client sends. Build it once per credential source and share it.
type Credentials struct {
	BearerToken string
	Cookies     []*http.Cookie
	Headers     map[string]string
	QueryParams map[string]string
}

// IsZero reports whether no auth material is set.
func (c Credentials) IsZero() bool {
	return c.BearerToken == "" && len(c.Cookies) == 0 && len(c.Headers) == 0 && len(c.QueryParams) == 0
}

// Merge returns a copy of c with the non-empty parts of other layered on top.
func (c Credentials) Merge(other Credentials) Credentials {
	out := Credentials{
		BearerToken: c.BearerToken,
		Cookies:     append(append([]*http.Cookie(nil), c.Cookies...), other.Cookies...),
		Headers:     mergeMaps(c.Headers, other.Headers),
		QueryParams: mergeMaps(c.QueryParams, other.QueryParams),
	}
	if other.BearerToken != "" {
		out.BearerToken = other.BearerToken
	}
	return out
}

// Key is a stable fingerprint used to share clients between tasks that
// carry the same credentials.
func (c Credentials) Key() string {
	if c.IsZero() {
		return ""
	}
	var b strings.Builder
	b.WriteString("bearer=" + c.BearerToken + "\n")

	cookies := make([]string, 0, len(c.Cookies))
	for _, ck := range c.Cookies {
		cookies = append(cookies, ck.Domain+"|"+ck.Path+"|"+ck.Name+"="+ck.Value)
	}
	sort.Strings(cookies)
	for _, ck := range cookies {
		b.WriteString("cookie=" + ck + "\n")
	}
	writeSorted(&b, "header", c.Headers)
	writeSorted(&b, "query", c.QueryParams)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// apply adds the credentials to a request without overriding values the
// caller already set.
func (c Credentials) apply(req *http.Request) {
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	if c.BearerToken != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	for _, ck := range c.Cookies {
		if cookieMatches(ck, req.URL) {
			req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
		}
	}
	if len(c.QueryParams) > 0 {
		q := req.URL.Query()
		for k, v := range c.QueryParams {
			if !q.Has(k) {
				q.Set(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}
}

// cookieMatches applies the domain and path rules of a cookie file entry.
// Cookies without a domain are sent everywhere.
func cookieMatches(ck *http.Cookie, u *url.URL) bool {
	if ck.Domain != "" {
		host := strings.ToLower(u.Hostname())
		d := strings.ToLower(strings.TrimPrefix(ck.Domain, "."))
		if host != d && !strings.HasSuffix(host, "."+d) {
			return false
		}
	}
	if ck.Path != "" && ck.Path != "/" && !strings.HasPrefix(u.Path, ck.Path) {
		return false
	}
	if ck.Secure && u.Scheme != "https" {
		return false
	}
	return true
}

func mergeMaps(a, b map[string]string) map[string]string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func writeSorted(b *strings.Builder, prefix string, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(prefix + "=" + k + ":" + m[k] + "\n")
	}
}
