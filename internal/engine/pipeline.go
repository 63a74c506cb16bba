// Package engine une descubrimiento, deduplicación y descarga en una tarea
// por objetivo, y reparte las tareas entre un número acotado de workers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/elsanchez/resfetch/internal/dedupe"
	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/downloader"
	"github.com/elsanchez/resfetch/internal/extractor"
	"github.com/elsanchez/resfetch/internal/fetcher"
	"github.com/elsanchez/resfetch/internal/probe"
)

// CredentialSource entrega las credenciales extra para un dominio
type CredentialSource interface {
	CredentialsFor(ctx context.Context, domain string) (fetcher.Credentials, error)
}

// Options es la configuración inmutable de un Pipeline
type Options struct {
	Templates   []string
	DestDir     string
	PageTimeout time.Duration
	Dedupe      dedupe.Policy
	Probe       probe.Options
	Download    downloader.Options
	Logger      *slog.Logger
}

// Pipeline procesa un objetivo completo: página, plantillas, dedupe,
// ranking y descarga del mejor candidato
type Pipeline struct {
	factory  *fetcher.Factory
	registry *extractor.Registry
	creds    CredentialSource
	opts     Options
	log      *slog.Logger
}

// NewPipeline crea un pipeline. registry y creds pueden ser nil.
func NewPipeline(factory *fetcher.Factory, registry *extractor.Registry, creds CredentialSource, opts Options) *Pipeline {
	if registry == nil {
		registry = extractor.DefaultRegistry()
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 30 * time.Second
	}
	opts.Templates = append([]string(nil), opts.Templates...)

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	opts.Probe.Logger = log
	opts.Download.Logger = log

	return &Pipeline{
		factory:  factory,
		registry: registry,
		creds:    creds,
		opts:     opts,
		log:      log,
	}
}

// Process ejecuta la tarea de un objetivo. Siempre retorna un TaskResult;
// los errores por plantilla o por candidato quedan registrados en él.
func (p *Pipeline) Process(ctx context.Context, spec domain.TargetSpec, onProgress downloader.ProgressFunc) domain.TaskResult {
	res := domain.TaskResult{Target: spec, StartedAt: time.Now()}
	finish := func(err error) domain.TaskResult {
		res.ResolveOutcome(err)
		res.FinishedAt = time.Now()
		return res
	}

	target, err := domain.NewProbeTarget(spec)
	if err != nil {
		return finish(err)
	}
	res.Target = target.Spec()
	res.Discovery.TargetID = target.ID()

	if err := p.validate(target); err != nil {
		return finish(err)
	}
	if ctx.Err() != nil {
		return finish(domain.NewError(domain.KindCanceled, "process", target.ID(), ctx.Err()))
	}

	client := p.clientFor(ctx, target)
	res.Discovery = p.discover(ctx, client, target, p.opts.Probe)

	dl := downloader.NewManager(client, p.opts.Download)
	for _, c := range res.Discovery.Candidates {
		if !c.IsDownloadable() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		attempt := dl.Fetch(ctx, c, p.opts.DestDir, onProgress)
		res.Attempts = append(res.Attempts, attempt)
		if attempt.Success {
			return finish(nil)
		}
	}

	if ctx.Err() != nil {
		return finish(domain.NewError(domain.KindCanceled, "process", target.ID(), ctx.Err()))
	}
	return finish(nil)
}

// Discover ejecuta solo el descubrimiento, probando todas las plantillas
func (p *Pipeline) Discover(ctx context.Context, spec domain.TargetSpec) (domain.DiscoveryResult, error) {
	target, err := domain.NewProbeTarget(spec)
	if err != nil {
		return domain.DiscoveryResult{}, err
	}
	if len(p.opts.Templates) == 0 && target.PageURL() == "" {
		return domain.DiscoveryResult{}, errNoSource(target)
	}

	opts := p.opts.Probe
	opts.Mode = probe.Enumerate
	return p.discover(ctx, p.clientFor(ctx, target), target, opts), nil
}

func (p *Pipeline) discover(ctx context.Context, client *fetcher.Client, target domain.ProbeTarget, probeOpts probe.Options) domain.DiscoveryResult {
	var found []domain.Candidate
	pageErr := ""

	if target.PageURL() != "" && ctx.Err() == nil {
		cands, err := p.scanPage(ctx, client, target)
		if err != nil {
			pageErr = err.Error()
			p.log.Warn("page scan failed", "target", target.ID(), "error", err)
		}
		found = append(found, cands...)
	}

	disc := probe.New(client, probeOpts).Probe(ctx, target, p.opts.Templates)
	found = append(found, disc.Candidates...)

	disc.TargetID = target.ID()
	disc.PageError = pageErr
	disc.Candidates = dedupe.Rank(dedupe.Dedupe(found, p.opts.Dedupe))
	return disc
}

// scanPage descarga la página del objetivo y aplica el extractor del dominio
func (p *Pipeline) scanPage(ctx context.Context, client *fetcher.Client, target domain.ProbeTarget) ([]domain.Candidate, error) {
	pageCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.PageTimeout)
	defer cancel()

	page, err := client.FetchPage(pageCtx, target.PageURL())
	if err != nil {
		return nil, err
	}

	ex := p.registry.ForContent(target.Domain(), page.ContentType)
	cands, err := ex.Extract(page.Body, page.URL)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", page.URL, err)
	}
	for i := range cands {
		if cands[i].TargetID == "" {
			cands[i].TargetID = target.ID()
		}
		if cands[i].Source == "" {
			cands[i].Source = page.URL
		}
		if cands[i].NameHint == "" {
			cands[i].NameHint = target.Title()
		}
	}
	p.log.Debug("page scanned", "target", target.ID(), "url", page.URL, "candidates", len(cands))
	return cands, nil
}

// clientFor retorna el cliente compartido o uno con las credenciales del
// dominio del objetivo
func (p *Pipeline) clientFor(ctx context.Context, target domain.ProbeTarget) *fetcher.Client {
	if p.creds == nil {
		return p.factory.Shared()
	}
	creds, err := p.creds.CredentialsFor(ctx, extractor.NormalizeDomain(target.Domain()))
	if err != nil {
		p.log.Warn("credentials unavailable", "target", target.ID(), "error", err)
		return p.factory.Shared()
	}
	return p.factory.Client(creds)
}

// validate detecta los errores fatales de configuración de la tarea
func (p *Pipeline) validate(target domain.ProbeTarget) error {
	if len(p.opts.Templates) == 0 && target.PageURL() == "" {
		return errNoSource(target)
	}
	if p.opts.DestDir == "" {
		return domain.NewError(domain.KindConfig, "validate", target.ID(), errors.New("destination directory not set"))
	}
	if err := os.MkdirAll(p.opts.DestDir, 0755); err != nil {
		return domain.NewError(domain.KindConfig, "create dest dir", p.opts.DestDir, err)
	}
	f, err := os.CreateTemp(p.opts.DestDir, ".resfetch-check-*")
	if err != nil {
		return domain.NewError(domain.KindConfig, "dest dir not writable", p.opts.DestDir, err)
	}
	f.Close()
	os.Remove(f.Name())
	return nil
}

func errNoSource(target domain.ProbeTarget) error {
	return domain.NewError(domain.KindConfig, "validate", target.ID(), errors.New("no templates configured and target has no page url"))
}
