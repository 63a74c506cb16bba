package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/fetcher"
)

func writeBody(w http.ResponseWriter, contentType string, size int) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(size))
	_, _ = w.Write([]byte(strings.Repeat("x", size)))
}

func newTarget(t *testing.T, base string) domain.ProbeTarget {
	t.Helper()
	target, err := domain.NewProbeTarget(domain.TargetSpec{
		ID:      "t1",
		BaseURL: base,
		Title:   "Chapter One",
		Params:  map[string]string{"file_id": "abc123"},
	})
	require.NoError(t, err)
	return target
}

func newProber(opts Options) *Prober {
	client := fetcher.NewFactory(fetcher.Options{}).Shared()
	return New(client, opts)
}

func fiveTemplateServer(t *testing.T, late *int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/api/2", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, "video/mp4", 5000)
	})
	for _, p := range []string{"/api/3", "/api/4", "/api/5"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt64(late, 1)
			writeBody(w, "audio/mpeg", 5000)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

var fiveTemplates = []string{
	"api/1?id={file_id}",
	"api/2?id={file_id}",
	"api/3?id={file_id}",
	"api/4?id={file_id}",
	"api/5?id={file_id}",
}

func TestProbe_SingleModeStopsAtFirstHit(t *testing.T) {
	var late int64
	srv := fiveTemplateServer(t, &late)

	p := newProber(Options{Mode: Single})
	res := p.Probe(context.Background(), newTarget(t, srv.URL), fiveTemplates)

	require.Len(t, res.Probes, 5)
	assert.Equal(t, domain.ClassNotFound, res.Probes[0].Classification)
	assert.Equal(t, domain.ClassDirect, res.Probes[1].Classification)
	for _, rec := range res.Probes[2:] {
		assert.Equal(t, domain.ClassNotTried, rec.Classification)
	}
	assert.Zero(t, atomic.LoadInt64(&late), "templates after the hit must not be requested")
	assert.Equal(t, 2, res.TemplatesTried())
	assert.True(t, res.FailFast)

	require.Len(t, res.Candidates, 1)
	c := res.Candidates[0]
	assert.Equal(t, srv.URL+"/api/2?id=abc123", c.URL)
	assert.Equal(t, domain.StrategyDirectProbe, c.Strategy)
	assert.Equal(t, domain.ConfidenceDirect, c.Confidence)
	assert.Equal(t, "video/mp4", c.ContentTypeHint)
	assert.Equal(t, "Chapter One", c.NameHint)
	assert.Equal(t, "t1", c.TargetID)
}

func TestProbe_EnumerateTriesEveryTemplate(t *testing.T) {
	var late int64
	srv := fiveTemplateServer(t, &late)

	p := newProber(Options{Mode: Enumerate})
	res := p.Probe(context.Background(), newTarget(t, srv.URL), fiveTemplates)

	assert.Equal(t, 5, res.TemplatesTried())
	assert.EqualValues(t, 3, atomic.LoadInt64(&late))
	assert.Len(t, res.Candidates, 4)
	assert.False(t, res.FailFast)
}

func TestProbe_StructuredJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"data":{"nested":{"audioUrl":"https://h/a.mp3"}}}`))
	}))
	defer srv.Close()

	p := newProber(Options{FieldHints: []string{"audiourl"}})
	res := p.Probe(context.Background(), newTarget(t, srv.URL), []string{"export/{file_id}"})

	require.Len(t, res.Probes, 1)
	assert.Equal(t, domain.ClassStructured, res.Probes[0].Classification)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "https://h/a.mp3", res.Candidates[0].URL)
	assert.Equal(t, domain.ConfidenceField, res.Candidates[0].Confidence)
	assert.Equal(t, srv.URL+"/export/abc123", res.Candidates[0].Source)
	assert.False(t, res.FailFast, "structured matches never stop the loop")
}

func TestProbe_RecordsFailuresAndContinues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/bad", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":`))
	})
	mux.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, "text/plain", 2000)
	})
	mux.HandleFunc("/small", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, "text/plain", 10)
	})
	mux.HandleFunc("/blob", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, "application/octet-stream", 4096)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newProber(Options{Mode: Enumerate})
	res := p.Probe(context.Background(), newTarget(t, srv.URL),
		[]string{"auth", "bad", "teapot", "big", "small", "{missing}", "blob"})

	require.Len(t, res.Probes, 7)

	auth := res.Probes[0]
	assert.Equal(t, domain.ClassAuthDenied, auth.Classification)
	assert.Equal(t, domain.KindAuth, auth.ErrorKind)
	assert.Equal(t, http.StatusUnauthorized, auth.StatusCode)
	assert.True(t, res.AuthDenied())

	assert.Equal(t, domain.ClassDecode, res.Probes[1].Classification)
	assert.Equal(t, domain.KindDecode, res.Probes[1].ErrorKind)

	assert.Equal(t, domain.ClassStatus, res.Probes[2].Classification)
	assert.Equal(t, domain.KindUnexpectedStatus, res.Probes[2].ErrorKind)

	assert.Equal(t, domain.ClassPotential, res.Probes[3].Classification)
	assert.Equal(t, domain.ClassNoMatch, res.Probes[4].Classification)

	assert.Equal(t, domain.ClassInvalid, res.Probes[5].Classification)
	assert.False(t, res.Probes[5].Requested())

	assert.Equal(t, domain.ClassDirect, res.Probes[6].Classification)

	require.Len(t, res.Candidates, 2)
	assert.True(t, res.Candidates[0].IsPotential())
	assert.False(t, res.Candidates[0].IsDownloadable())
	assert.Equal(t, domain.ConfidenceDirect, res.Candidates[1].Confidence)
}

func TestProbe_NetworkErrorIsRecorded(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	p := newProber(Options{Timeout: 2 * time.Second})
	res := p.Probe(context.Background(), newTarget(t, base), []string{"a", "b"})

	require.Len(t, res.Probes, 2)
	for _, rec := range res.Probes {
		assert.Equal(t, domain.ClassNetwork, rec.Classification)
		assert.Equal(t, domain.KindNetwork, rec.ErrorKind)
	}
	assert.Empty(t, res.Candidates)
}

func TestProbe_CanceledContextIssuesNoRequest(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newProber(Options{})
	res := p.Probe(ctx, newTarget(t, srv.URL), []string{"a", "b", "c"})

	require.Len(t, res.Probes, 3)
	for _, rec := range res.Probes {
		assert.Equal(t, domain.ClassNotTried, rec.Classification)
		assert.Equal(t, domain.KindCanceled, rec.ErrorKind)
	}
	assert.Zero(t, atomic.LoadInt64(&hits))
}

func TestProbe_ParallelKeepsTemplateOrder(t *testing.T) {
	var late int64
	srv := fiveTemplateServer(t, &late)

	seq := newProber(Options{Mode: Enumerate}).Probe(context.Background(), newTarget(t, srv.URL), fiveTemplates)
	par := newProber(Options{Mode: Enumerate, Parallel: 3}).Probe(context.Background(), newTarget(t, srv.URL), fiveTemplates)

	require.Len(t, par.Probes, len(seq.Probes))
	for i := range seq.Probes {
		assert.Equal(t, seq.Probes[i].Template, par.Probes[i].Template)
		assert.Equal(t, seq.Probes[i].Classification, par.Probes[i].Classification)
	}
	require.Len(t, par.Candidates, len(seq.Candidates))
	for i := range seq.Candidates {
		assert.Equal(t, seq.Candidates[i].URL, par.Candidates[i].URL)
	}
}

func TestProbe_ParallelSingleModeCancelsOutstanding(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, "audio/mpeg", 5000)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		writeBody(w, "video/mp4", 5000)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newProber(Options{Mode: Single, Parallel: 2})
	res := p.Probe(context.Background(), newTarget(t, srv.URL), []string{"fast", "slow", "slow?n=2", "slow?n=3"})

	require.Len(t, res.Probes, 4)
	assert.Equal(t, "fast", res.Probes[0].Template)
	assert.Equal(t, domain.ClassDirect, res.Probes[0].Classification)
	assert.True(t, res.FailFast)

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, srv.URL+"/fast", res.Candidates[0].URL)
}

func TestProbe_RequestStrategies(t *testing.T) {
	type seen struct {
		method, referer, origin, contentType string
		payload                              map[string]string
		form                                 map[string]string
	}
	got := make(chan seen, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := seen{
			method:      r.Method,
			referer:     r.Header.Get("Referer"),
			origin:      r.Header.Get("Origin"),
			contentType: r.Header.Get("Content-Type"),
		}
		if strings.HasPrefix(s.contentType, "application/json") {
			_ = json.NewDecoder(r.Body).Decode(&s.payload)
		} else if r.Method == http.MethodPost {
			_ = r.ParseForm()
			s.form = map[string]string{"id": r.PostForm.Get("id"), "file_id": r.PostForm.Get("file_id")}
		}
		got <- s
		http.NotFound(w, r)
	}))
	defer srv.Close()

	target := newTarget(t, srv.URL)

	t.Run("get", func(t *testing.T) {
		newProber(Options{}).Probe(context.Background(), target, []string{"api?id={file_id}"})
		s := <-got
		assert.Equal(t, http.MethodGet, s.method)
		assert.Equal(t, srv.URL+"/", s.referer)
		assert.Equal(t, srv.URL, s.origin)
	})

	t.Run("post-json", func(t *testing.T) {
		st, err := StrategyByName("post-json")
		require.NoError(t, err)
		res := newProber(Options{Strategy: st}).Probe(context.Background(), target, []string{"api?lang=en"})
		s := <-got
		assert.Equal(t, http.MethodPost, s.method)
		assert.Equal(t, "abc123", s.payload["file_id"])
		assert.Equal(t, "en", s.payload["lang"])
		assert.Equal(t, http.MethodPost, res.Probes[0].Method)
	})

	t.Run("post-form", func(t *testing.T) {
		st, err := StrategyByName("post-form")
		require.NoError(t, err)
		newProber(Options{Strategy: st}).Probe(context.Background(), target, []string{"api?id={file_id}"})
		s := <-got
		assert.Equal(t, http.MethodPost, s.method)
		assert.Equal(t, "abc123", s.form["id"])
		assert.Equal(t, "abc123", s.form["file_id"])
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := StrategyByName("put-xml")
		require.Error(t, err)
		assert.True(t, domain.IsConfigError(err))
	})
}

func TestProbe_ChunkedOctetStreamIsDirect(t *testing.T) {
	var late int64
	mux := http.NewServeMux()
	mux.HandleFunc("/export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		for i := 0; i < 10; i++ {
			_, _ = w.Write([]byte(strings.Repeat("x", 5000)))
			w.(http.Flusher).Flush()
		}
	})
	mux.HandleFunc("/tiny", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("err"))
		w.(http.Flusher).Flush()
	})
	mux.HandleFunc("/later", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&late, 1)
		writeBody(w, "audio/mpeg", 5000)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newProber(Options{Mode: Single})
	res := p.Probe(context.Background(), newTarget(t, srv.URL), []string{"tiny", "export", "later"})

	require.Len(t, res.Probes, 3)
	assert.Equal(t, domain.ClassNoMatch, res.Probes[0].Classification)
	assert.Equal(t, domain.ClassDirect, res.Probes[1].Classification)
	assert.Equal(t, domain.ClassNotTried, res.Probes[2].Classification)
	assert.Zero(t, atomic.LoadInt64(&late))
	assert.True(t, res.FailFast)

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, srv.URL+"/export", res.Candidates[0].URL)
	assert.Equal(t, domain.ConfidenceDirect, res.Candidates[0].Confidence)
	assert.True(t, res.Candidates[0].IsDownloadable())
}
