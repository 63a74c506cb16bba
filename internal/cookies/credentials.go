package cookies

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/elsanchez/resfetch/internal/engine"
	"github.com/elsanchez/resfetch/internal/extractor"
	"github.com/elsanchez/resfetch/internal/fetcher"
	"github.com/elsanchez/resfetch/internal/repository"
)

var _ engine.CredentialSource = (*AccountCredentials)(nil)

// AccountCredentials serves the cookies of the active account for a domain.
// Parent domains are tried when the exact host has no account, so an
// account for example.com also covers api.example.com. Parsed files are
// cached by path and modification time.
type AccountCredentials struct {
	accounts repository.AccountRepository
	parser   *CookieParser
	log      *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedFile
}

type cachedFile struct {
	modTime time.Time
	cookies []NetscapeCookie
}

// NewAccountCredentials creates a credential source backed by the account store
func NewAccountCredentials(accounts repository.AccountRepository, log *slog.Logger) *AccountCredentials {
	if log == nil {
		log = slog.Default()
	}
	return &AccountCredentials{
		accounts: accounts,
		parser:   NewCookieParser(),
		log:      log,
		now:      time.Now,
		cache:    make(map[string]cachedFile),
	}
}

// CredentialsFor returns the cookies of the active account for dom. A domain
// without an account yields empty credentials and no error.
func (a *AccountCredentials) CredentialsFor(ctx context.Context, dom string) (fetcher.Credentials, error) {
	for _, d := range domainChain(extractor.NormalizeDomain(dom)) {
		acc, err := a.accounts.GetActive(ctx, d)
		if err != nil {
			return fetcher.Credentials{}, fmt.Errorf("lookup account for %s: %w", d, err)
		}
		if acc == nil {
			continue
		}

		cookies, err := a.load(acc.CookiePath)
		if err != nil {
			return fetcher.Credentials{}, fmt.Errorf("load cookies of %s/%s: %w", acc.Domain, acc.Name, err)
		}

		if err := a.accounts.UpdateLastUsed(ctx, acc.ID); err != nil {
			a.log.Debug("update last used failed", "account", acc.Name, "error", err)
		}
		a.log.Debug("using account", "domain", acc.Domain, "account", acc.Name, "cookies", len(cookies))
		return fetcher.Credentials{Cookies: a.parser.ToHTTPCookies(cookies, a.now())}, nil
	}
	return fetcher.Credentials{}, nil
}

func (a *AccountCredentials) load(path string) ([]NetscapeCookie, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.cache[path]; ok && c.modTime.Equal(info.ModTime()) {
		return c.cookies, nil
	}

	cookies, err := a.parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	a.cache[path] = cachedFile{modTime: info.ModTime(), cookies: cookies}
	return cookies, nil
}
