package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elsanchez/resfetch/internal/domain"
)

// echoServer reports the auth material it received.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Auth", r.Header.Get("Authorization"))
		w.Header().Set("X-Cookie", r.Header.Get("Cookie"))
		w.Header().Set("X-Query", r.URL.RawQuery)
		w.Header().Set("X-UA", r.Header.Get("User-Agent"))
		w.Header().Set("X-Custom", r.Header.Get("X-Custom"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_AppliesCredentials(t *testing.T) {
	srv := echoServer(t)
	f := NewFactory(Options{
		UserAgents: []string{"test-agent"},
		Credentials: Credentials{
			BearerToken: "uid-sid",
			Headers:     map[string]string{"X-Custom": "yes"},
			QueryParams: map[string]string{"token": "abc"},
		},
	})
	c := f.Client(Credentials{Cookies: []*http.Cookie{
		{Name: "sid", Value: "s1"},
		{Name: "other", Value: "o1", Domain: ".other.example"},
	}})

	req, err := c.NewRequest(context.Background(), http.MethodGet, srv.URL+"/api?a=1", nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer uid-sid", resp.Header.Get("X-Auth"))
	assert.Equal(t, "sid=s1", resp.Header.Get("X-Cookie"))
	assert.Equal(t, "a=1&token=abc", resp.Header.Get("X-Query"))
	assert.Equal(t, "test-agent", resp.Header.Get("X-UA"))
	assert.Equal(t, "yes", resp.Header.Get("X-Custom"))
}

func TestClient_KeepsCallerValues(t *testing.T) {
	srv := echoServer(t)
	c := NewFactory(Options{Credentials: Credentials{
		BearerToken: "default",
		QueryParams: map[string]string{"token": "abc"},
	}}).Shared()

	req, err := c.NewRequest(context.Background(), http.MethodGet, srv.URL+"/?token=mine", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic x")
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Basic x", resp.Header.Get("X-Auth"))
	assert.Equal(t, "token=mine", resp.Header.Get("X-Query"))
}

func TestCredentials_MergeAndKey(t *testing.T) {
	base := Credentials{
		BearerToken: "a",
		Headers:     map[string]string{"X-One": "1"},
	}
	extra := Credentials{
		BearerToken: "b",
		Cookies:     []*http.Cookie{{Name: "sid", Value: "s"}},
		Headers:     map[string]string{"X-Two": "2"},
	}

	merged := base.Merge(extra)
	assert.Equal(t, "b", merged.BearerToken)
	assert.Len(t, merged.Cookies, 1)
	assert.Equal(t, map[string]string{"X-One": "1", "X-Two": "2"}, merged.Headers)
	assert.Equal(t, "a", base.BearerToken, "merge must not modify the receiver")
	assert.Len(t, base.Headers, 1)

	assert.True(t, Credentials{}.IsZero())
	assert.Empty(t, Credentials{}.Key())
	assert.Equal(t, merged.Key(), base.Merge(extra).Key())
	assert.NotEqual(t, merged.Key(), base.Key())
}

func TestFactory_SharesClientsByCredentials(t *testing.T) {
	f := NewFactory(Options{})
	sid := Credentials{Cookies: []*http.Cookie{{Name: "sid", Value: "1"}}}

	assert.Same(t, f.Shared(), f.Client(Credentials{}))
	assert.Same(t, f.Client(sid), f.Client(Credentials{Cookies: []*http.Cookie{{Name: "sid", Value: "1"}}}))
	assert.NotSame(t, f.Shared(), f.Client(sid))
}

func TestHostLimiter_SpacesSameHost(t *testing.T) {
	l := NewHostLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx, "example.com"))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, l.Wait(canceled, "example.com"))

	var disabled *HostLimiter
	assert.NoError(t, disabled.Wait(canceled, "example.com"))
	assert.NoError(t, NewHostLimiter(0).Wait(canceled, "example.com"))
}

func TestFetchPage_DecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1252")
		_, _ = w.Write([]byte("<html><body>caf\xe9</body></html>"))
	}))
	defer srv.Close()

	page, err := NewFactory(Options{}).Shared().FetchPage(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(page.Body), "café")
}

func TestFetchPage_StatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/private":
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()
	c := NewFactory(Options{}).Shared()

	_, err := c.FetchPage(context.Background(), srv.URL+"/missing")
	var de *domain.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, domain.KindNotFound, de.Kind)
	assert.Equal(t, http.StatusNotFound, de.Status)

	_, err = c.FetchPage(context.Background(), srv.URL+"/private")
	assert.Equal(t, domain.KindAuth, domain.KindOf(err))
}

func TestFetchPage_LimitsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	page, err := NewFactory(Options{MaxPageBytes: 10}).Shared().FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, page.Body, 10)
}

func TestFetchPage_RespectsRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	c := NewFactory(Options{RespectRobots: true}).Shared()

	_, err := c.FetchPage(context.Background(), srv.URL+"/private/page")
	assert.Equal(t, domain.KindDisallowed, domain.KindOf(err))

	_, err = c.FetchPage(context.Background(), srv.URL+"/public")
	assert.NoError(t, err)
}

func TestClient_CanceledContext(t *testing.T) {
	srv := echoServer(t)
	c := NewFactory(Options{}).Shared()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := c.NewRequest(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = c.Do(req)
	assert.Equal(t, domain.KindCanceled, domain.KindOf(err))
}
