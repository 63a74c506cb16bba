// Package probe requests templated endpoints for a target and classifies
// each response into candidates.
package probe

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/search"
)

// Mode controls whether probing stops at the first direct hit.
type Mode int

const (
	// Single stops at the first template that yields a direct resource.
	Single Mode = iota
	// Enumerate tries every template.
	Enumerate
)

// ParseMode maps a configuration string onto a Mode.
func ParseMode(s string) Mode {
	if s == "enumerate" || s == "all" {
		return Enumerate
	}
	return Single
}

// Doer sends a prepared request. *fetcher.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configure a Prober.
type Options struct {
	Timeout     time.Duration
	MinBodySize int64
	Mode        Mode
	// Parallel > 1 probes that many templates at once.
	Parallel   int
	Strategy   RequestStrategy
	FieldHints []string
	Matchers   []search.Matcher
	Logger     *slog.Logger
}

// Prober runs templates against one target at a time. It keeps no per-run
// state and may be shared between tasks.
type Prober struct {
	client   Doer
	opts     Options
	searcher *search.Searcher
	log      *slog.Logger
}

// New creates a Prober sending through client.
func New(client Doer, opts Options) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MinBodySize <= 0 {
		opts.MinBodySize = 1000
	}
	if opts.Strategy == nil {
		opts.Strategy = GetStrategy{}
	}
	if opts.Matchers == nil {
		opts.Matchers = search.DefaultMatchers()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Prober{
		client:   client,
		opts:     opts,
		searcher: search.New(opts.FieldHints, opts.Matchers...),
		log:      log,
	}
}

// Probe runs templates in order and returns the records and candidates.
// Once ctx is done no further template is requested; requests already in
// flight run to completion under their own timeout.
func (p *Prober) Probe(ctx context.Context, target domain.ProbeTarget, templates []string) domain.DiscoveryResult {
	if p.opts.Parallel > 1 && len(templates) > 1 {
		return p.probeParallel(ctx, target, templates)
	}

	res := domain.DiscoveryResult{TargetID: target.ID()}
	for i, tpl := range templates {
		if ctx.Err() != nil {
			res.Probes = append(res.Probes, notTried(templates[i:], domain.KindCanceled)...)
			break
		}

		rec, out := p.probeOne(context.WithoutCancel(ctx), target, tpl)
		res.Probes = append(res.Probes, rec)
		res.Candidates = append(res.Candidates, out.candidates...)

		if out.hit && p.opts.Mode == Single {
			res.FailFast = true
			res.Probes = append(res.Probes, notTried(templates[i+1:], "")...)
			break
		}
	}
	return res
}

// probeParallel fans out over the same per-template code path. Records
// stay in template order; after a hit in Single mode outstanding probes are
// cancelled and candidates from later templates are dropped.
func (p *Prober) probeParallel(ctx context.Context, target domain.ProbeTarget, templates []string) domain.DiscoveryResult {
	type slot struct {
		rec domain.ProbeRecord
		out outcome
		ran bool
	}
	slots := make([]slot, len(templates))

	// In-flight probes outlive the parent; only a hit cancels them.
	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		hitIdx = -1
	)
	sem := make(chan struct{}, p.opts.Parallel)

	for i, tpl := range templates {
		sem <- struct{}{}

		mu.Lock()
		halted := hitIdx >= 0
		mu.Unlock()
		if halted || ctx.Err() != nil {
			<-sem
			continue
		}

		wg.Add(1)
		go func(i int, tpl string) {
			defer wg.Done()
			defer func() { <-sem }()

			rec, out := p.probeOne(runCtx, target, tpl)
			slots[i] = slot{rec: rec, out: out, ran: true}

			if out.hit && p.opts.Mode == Single {
				mu.Lock()
				if hitIdx < 0 || i < hitIdx {
					hitIdx = i
				}
				mu.Unlock()
				stop()
			}
		}(i, tpl)
	}
	wg.Wait()

	res := domain.DiscoveryResult{TargetID: target.ID(), FailFast: hitIdx >= 0}
	for i, s := range slots {
		if !s.ran {
			kind := domain.ErrorKind("")
			if hitIdx < 0 {
				kind = domain.KindCanceled
			}
			res.Probes = append(res.Probes, notTried(templates[i:i+1], kind)...)
			continue
		}
		res.Probes = append(res.Probes, s.rec)
		if hitIdx < 0 || i <= hitIdx {
			res.Candidates = append(res.Candidates, s.out.candidates...)
		}
	}
	return res
}

// probeOne instantiates, sends and classifies one template. reqCtx bounds
// the request; the probe timeout is applied on top of it.
func (p *Prober) probeOne(reqCtx context.Context, target domain.ProbeTarget, tpl string) (domain.ProbeRecord, outcome) {
	start := time.Now()
	rec := domain.ProbeRecord{Template: tpl, Method: http.MethodGet}

	finish := func(out outcome) (domain.ProbeRecord, outcome) {
		rec.Classification = out.class
		rec.Candidates = len(out.candidates)
		rec.Duration = time.Since(start)
		if out.err != nil {
			rec.ErrorKind = out.err.Kind
			rec.Error = out.err.Error()
			if out.err.Status != 0 {
				rec.StatusCode = out.err.Status
			}
		}
		switch out.class {
		case domain.ClassNotFound, domain.ClassNoMatch, domain.ClassNotTried:
			p.log.Debug("probe", "target", target.ID(), "url", rec.URL, "class", out.class)
		case domain.ClassDirect, domain.ClassStructured, domain.ClassPotential:
			p.log.Info("probe", "target", target.ID(), "url", rec.URL, "class", out.class, "candidates", rec.Candidates)
		default:
			p.log.Warn("probe", "target", target.ID(), "url", rec.URL, "class", out.class, "error", rec.Error)
		}
		return rec, out
	}

	endpoint, err := target.Instantiate(tpl)
	if err != nil {
		return finish(outcome{class: domain.ClassInvalid, err: asDomainError(err, domain.KindInvalidInput, "instantiate", tpl)})
	}
	rec.URL = endpoint

	ctx, cancel := context.WithTimeout(reqCtx, p.opts.Timeout)
	defer cancel()

	req, err := p.opts.Strategy.Build(ctx, target, endpoint)
	if err != nil {
		return finish(outcome{class: domain.ClassInvalid, err: domain.NewError(domain.KindInvalidInput, "build request", endpoint, err)})
	}
	rec.Method = req.Method
	if base := target.BaseURL(); base != "" {
		if req.Header.Get("Referer") == "" {
			req.Header.Set("Referer", base+"/")
		}
		if req.Header.Get("Origin") == "" {
			req.Header.Set("Origin", base)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		de := asDomainError(err, domain.KindNetwork, "probe", endpoint)
		if de.Kind == domain.KindCanceled {
			return finish(outcome{class: domain.ClassNotTried, err: de})
		}
		return finish(outcome{class: domain.ClassNetwork, err: de})
	}
	defer resp.Body.Close()

	rec.StatusCode = resp.StatusCode
	rec.ContentType = resp.Header.Get("Content-Type")
	return finish(p.classify(resp, target, endpoint))
}

func notTried(templates []string, kind domain.ErrorKind) []domain.ProbeRecord {
	out := make([]domain.ProbeRecord, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, domain.ProbeRecord{Template: tpl, Classification: domain.ClassNotTried, ErrorKind: kind})
	}
	return out
}

func asDomainError(err error, fallback domain.ErrorKind, op, url string) *domain.Error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	return domain.NewError(fallback, op, url, err)
}
