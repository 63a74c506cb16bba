package cookies

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// httpOnlyPrefix marks HttpOnly entries in files written by curl and browsers.
const httpOnlyPrefix = "#HttpOnly_"

// NetscapeCookie represents a single cookie from Netscape format
type NetscapeCookie struct {
	Domain     string
	Flag       string
	Path       string
	Secure     bool
	HttpOnly   bool
	Expiration int64 // Unix timestamp, 0 for session cookies
	Name       string
	Value      string
}

// Expired reports whether the cookie carries an expiration before now.
// Session cookies never expire.
func (c NetscapeCookie) Expired(now time.Time) bool {
	return c.Expiration > 0 && c.Expiration < now.Unix()
}

// CookieParser handles parsing of Netscape cookie format files
type CookieParser struct{}

// NewCookieParser creates a new cookie parser
func NewCookieParser() *CookieParser {
	return &CookieParser{}
}

// ParseFile parses a Netscape format cookie file
func (p *CookieParser) ParseFile(path string) ([]NetscapeCookie, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cookie file: %w", err)
	}
	defer file.Close()

	return p.Parse(file)
}

// Parse reads Netscape format cookies.
// Format: domain	flag	path	secure	expiration	name	value
func (p *CookieParser) Parse(r io.Reader) ([]NetscapeCookie, error) {
	var cookies []NetscapeCookie
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			line = strings.TrimPrefix(line, httpOnlyPrefix)
			httpOnly = true
		}

		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			// Try space-separated as fallback
			fields = strings.Fields(line)
			if len(fields) < 7 {
				return nil, fmt.Errorf("line %d: invalid format (expected 7 fields, got %d)", lineNum, len(fields))
			}
		}

		expiration, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid expiration timestamp: %w", lineNum, err)
		}

		// Clean cookie value - remove surrounding quotes if present
		value := fields[6]
		if len(value) >= 2 && strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"") {
			value = value[1 : len(value)-1]
		}

		cookies = append(cookies, NetscapeCookie{
			Domain:     fields[0],
			Flag:       fields[1],
			Path:       fields[2],
			Secure:     strings.EqualFold(fields[3], "TRUE"),
			HttpOnly:   httpOnly,
			Expiration: expiration,
			Name:       fields[5],
			Value:      value,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}

	if len(cookies) == 0 {
		return nil, fmt.Errorf("no valid cookies found in file")
	}

	return cookies, nil
}

// WriteFile saves cookies in Netscape format with owner-only permissions
func (p *CookieParser) WriteFile(path string, cookies []NetscapeCookie) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if err := p.Write(file, cookies); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Write serializes cookies in Netscape format
func (p *CookieParser) Write(w io.Writer, cookies []NetscapeCookie) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString("# Netscape HTTP Cookie File\n"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, cookie := range cookies {
		domain := cookie.Domain
		if cookie.HttpOnly {
			domain = httpOnlyPrefix + domain
		}

		flag := cookie.Flag
		if flag == "" {
			flag = "FALSE"
			if strings.HasPrefix(cookie.Domain, ".") {
				flag = "TRUE"
			}
		}

		path := cookie.Path
		if path == "" {
			path = "/"
		}

		secure := "FALSE"
		if cookie.Secure {
			secure = "TRUE"
		}

		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			domain, flag, path, secure, cookie.Expiration, cookie.Name, cookie.Value); err != nil {
			return fmt.Errorf("write cookie: %w", err)
		}
	}

	return bw.Flush()
}

// ToHTTPCookies converts the file entries into request cookies. Expired
// entries and values net/http refuses to send are dropped.
func (p *CookieParser) ToHTTPCookies(cookies []NetscapeCookie, now time.Time) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c.Expired(now) || c.Name == "" {
			continue
		}
		// Values with backslashes or quotes are rejected by net/http
		if strings.ContainsAny(c.Value, "\\\"") {
			continue
		}

		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if c.Expiration > 0 {
			hc.Expires = time.Unix(c.Expiration, 0)
		}
		out = append(out, hc)
	}
	return out
}

// FindEarliestExpiration returns the earliest expiration time from a list of
// cookies, ignoring session cookies
func (p *CookieParser) FindEarliestExpiration(cookies []NetscapeCookie) time.Time {
	var earliest int64
	for _, cookie := range cookies {
		if cookie.Expiration <= 0 {
			continue
		}
		if earliest == 0 || cookie.Expiration < earliest {
			earliest = cookie.Expiration
		}
	}

	if earliest == 0 {
		return time.Time{}
	}
	return time.Unix(earliest, 0)
}

// DetectDomain returns the registrable-looking domain most cookies belong to
func (p *CookieParser) DetectDomain(cookies []NetscapeCookie) string {
	if len(cookies) == 0 {
		return ""
	}

	counts := make(map[string]int)
	for _, cookie := range cookies {
		d := baseDomain(strings.TrimPrefix(strings.ToLower(cookie.Domain), "."))
		if d != "" {
			counts[d]++
		}
	}

	// Most common domain, ties broken alphabetically
	best, bestCount := "", 0
	for d, n := range counts {
		if n > bestCount || (n == bestCount && d < best) {
			best, bestCount = d, n
		}
	}

	return best
}

// CountCookies returns the total number of cookies
func (p *CookieParser) CountCookies(cookies []NetscapeCookie) int {
	return len(cookies)
}

// GetDomains returns the sorted unique domains in the cookies
func (p *CookieParser) GetDomains(cookies []NetscapeCookie) []string {
	domainSet := make(map[string]bool)
	for _, cookie := range cookies {
		domainSet[strings.TrimPrefix(cookie.Domain, ".")] = true
	}

	domains := make([]string, 0, len(domainSet))
	for domain := range domainSet {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	return domains
}

// baseDomain reduces a host to its eTLD+1: "api.example.co.uk" becomes
// "example.co.uk". Hosts the suffix list rejects are returned as is.
func baseDomain(host string) string {
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}
