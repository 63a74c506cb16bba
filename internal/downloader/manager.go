package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/media"
)

// sniffLen es lo que lee mimetype para detectar el tipo
const sniffLen = 3072

// Options configura el Manager
type Options struct {
	MinBodySize int64
	ChunkSize   int
	Timeout     time.Duration
	Retries     int
	RetryDelay  time.Duration
	Logger      *slog.Logger
}

// Manager descarga candidatos por HTTP con validación de cabeceras,
// escritura en streaming y archivo temporal
type Manager struct {
	client Doer
	opts   Options
	log    *slog.Logger
}

var _ Downloader = (*Manager)(nil)

// NewManager crea un nuevo manager de descargas
func NewManager(client Doer, opts Options) *Manager {
	if opts.MinBodySize <= 0 {
		opts.MinBodySize = 1000
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 8192
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{client: client, opts: opts, log: log}
}

// Fetch descarga el candidato en destDir. Nunca sobrescribe un archivo
// existente y nunca deja archivos parciales.
func (m *Manager) Fetch(ctx context.Context, c domain.Candidate, destDir string, onProgress ProgressFunc) domain.DownloadResult {
	if onProgress == nil {
		onProgress = func(int64, int64) {}
	}

	job := domain.NewDownloadJob(c, "")
	fail := func(written int64, err error) domain.DownloadResult {
		_ = job.Advance(domain.JobFailed)
		m.log.Warn("download failed", "url", c.URL, "error", err)
		return job.Result(written, err)
	}
	skip := func(path string) domain.DownloadResult {
		job.DestinationPath = path
		_ = job.Advance(domain.JobSkipped)
		m.log.Info("download skipped", "url", c.URL, "path", path)
		return job.Result(0, nil)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fail(0, domain.NewError(domain.KindConfig, "create dest dir", destDir, err))
	}

	// 1. Skip sin tocar la red
	base := BaseName(c)
	urlExt := urlMediaExtension(c.URL)
	if path, ok := existingFile(destDir, base, urlExt); ok {
		return skip(path)
	}

	// 2. Verificación de cabeceras
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.Timeout)
	defer cancel()

	resp, err := m.open(ctx, reqCtx, c.URL)
	if err != nil {
		return fail(0, err)
	}
	defer func() {
		if resp != nil {
			resp.Body.Close()
		}
	}()

	// 3. Rechazo heurístico por tamaño o tipo declarados
	if err := m.checkHeaders(c.URL, resp); err != nil {
		return fail(0, err)
	}
	_ = job.Advance(domain.JobHeaderChecked)

	if resp.Request.Method == http.MethodHead {
		resp.Body.Close()
		resp = nil
		if ctx.Err() != nil {
			return fail(0, domain.NewError(domain.KindCanceled, "download", c.URL, ctx.Err()))
		}
		get, err := m.get(reqCtx, c.URL)
		if err != nil {
			return fail(0, err)
		}
		resp = get
		if err := m.checkHeaders(c.URL, resp); err != nil {
			return fail(0, err)
		}
	}

	contentType := resp.Header.Get("Content-Type")
	total := resp.ContentLength
	if total < 0 {
		total = -1
	}

	// 4. Detección del tipo real con el primer bloque
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fail(0, domain.NewError(domain.KindNetwork, "read body", c.URL, err))
	}
	head = head[:n]
	sniffed := mimetype.Detect(head)
	if contentType == "" || media.IsOctetStream(contentType) {
		if isErrorPayload(sniffed.String()) {
			return fail(0, domain.NewError(domain.KindHeuristicRejection, "sniff body", c.URL,
				fmt.Errorf("body looks like %s", sniffed.String())))
		}
	}

	finalPath := filepath.Join(destDir, base+inferExtension(c, contentType, sniffed))
	job.DestinationPath = finalPath
	if _, err := os.Stat(finalPath); err == nil {
		return skip(finalPath)
	}

	// 5 y 6. Streaming a un temporal en el mismo directorio
	_ = job.Advance(domain.JobStreaming)
	tmp, err := os.CreateTemp(destDir, "."+base+".*.part")
	if err != nil {
		return fail(0, domain.NewError(domain.KindConfig, "create temp file", destDir, err))
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	body := io.MultiReader(bytes.NewReader(head), resp.Body)
	written, err := m.stream(tmp, body, total, onProgress)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = domain.NewError(domain.KindConfig, "close temp file", tmpPath, cerr)
	}
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			err = domain.NewError(domain.KindNetwork, "stream", c.URL, err)
		}
		return fail(written, err)
	}

	if total < 0 && written < m.opts.MinBodySize {
		return fail(written, domain.NewError(domain.KindHeuristicRejection, "stream", c.URL,
			fmt.Errorf("body of %d bytes is below %d", written, m.opts.MinBodySize)))
	}
	if total >= 0 && written != total {
		return fail(written, domain.NewError(domain.KindNetwork, "stream", c.URL,
			fmt.Errorf("truncated body: %d of %d bytes", written, total)))
	}

	// Commit sin sobrescribir: si el final apareció mientras tanto, es un skip
	switch err := commit(tmpPath, finalPath); {
	case errors.Is(err, os.ErrExist):
		return skip(finalPath)
	case err != nil:
		return fail(written, domain.NewError(domain.KindConfig, "rename", finalPath, err))
	}
	committed = true

	_ = job.Advance(domain.JobComplete)
	m.log.Info("download complete", "url", c.URL, "path", finalPath, "bytes", written)
	return job.Result(written, nil)
}

// open realiza la verificación de cabeceras: HEAD, y GET cuando el servidor
// no admite HEAD. Los errores de red se reintentan.
func (m *Manager) open(parent, reqCtx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < m.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-parent.Done():
			case <-time.After(m.opts.RetryDelay):
			}
		}
		if parent.Err() != nil {
			return nil, domain.NewError(domain.KindCanceled, "download", rawURL, parent.Err())
		}

		resp, err := m.head(reqCtx, rawURL)
		if err == nil && needsGetFallback(resp.StatusCode) {
			resp.Body.Close()
			resp, err = m.get(reqCtx, rawURL)
		} else if err != nil && domain.KindOf(err) == domain.KindNetwork {
			// Algunos servidores cortan la conexión ante un HEAD
			resp, err = m.get(reqCtx, rawURL)
		}
		if err == nil {
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				resp.Body.Close()
				return nil, domain.StatusError("download", rawURL, resp.StatusCode)
			}
			return resp, nil
		}

		lastErr = err
		if domain.KindOf(err) != domain.KindNetwork || reqCtx.Err() != nil {
			break
		}
		m.log.Debug("header check retry", "url", rawURL, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (m *Manager) head(ctx context.Context, rawURL string) (*http.Response, error) {
	return m.do(ctx, http.MethodHead, rawURL)
}

func (m *Manager) get(ctx context.Context, rawURL string) (*http.Response, error) {
	resp, err := m.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, domain.StatusError("download", rawURL, resp.StatusCode)
	}
	return resp, nil
}

func (m *Manager) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, "build request", rawURL, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, domain.NewError(domain.KindNetwork, method, rawURL, err)
	}
	return resp, nil
}

// checkHeaders rechaza tamaños declarados bajo el umbral y tipos que
// corresponden a páginas de error
func (m *Manager) checkHeaders(rawURL string, resp *http.Response) error {
	ct := resp.Header.Get("Content-Type")
	if isErrorPayload(ct) {
		return domain.NewError(domain.KindHeuristicRejection, "check headers", rawURL,
			fmt.Errorf("content type %s is not a resource", media.BaseType(ct)))
	}
	if resp.ContentLength >= 0 && resp.ContentLength < m.opts.MinBodySize {
		return domain.NewError(domain.KindHeuristicRejection, "check headers", rawURL,
			fmt.Errorf("declared size %d is below %d", resp.ContentLength, m.opts.MinBodySize))
	}
	return nil
}

// stream copia el cuerpo en bloques fijos reportando progreso
func (m *Manager) stream(dst io.Writer, src io.Reader, total int64, onProgress ProgressFunc) (int64, error) {
	buf := make([]byte, m.opts.ChunkSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, domain.NewError(domain.KindConfig, "write", "", werr)
			}
			written += int64(n)
			onProgress(written, total)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// needsGetFallback indica los status con los que un servidor rechaza HEAD
func needsGetFallback(status int) bool {
	return status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented || status == http.StatusBadRequest
}

// isErrorPayload identifica JSON, HTML o texto, que nunca son el recurso
func isErrorPayload(contentType string) bool {
	ct := media.BaseType(contentType)
	return media.IsJSON(ct) || ct == "text/html" || ct == "application/xhtml+xml" || strings.HasPrefix(ct, "text/")
}

// commit mueve el temporal al destino sin sobrescribir nunca
func commit(tmpPath, finalPath string) error {
	if err := os.Link(tmpPath, finalPath); err == nil {
		return os.Remove(tmpPath)
	} else if errors.Is(err, os.ErrExist) {
		return err
	}
	// Sistemas de archivos sin hard links
	if _, err := os.Stat(finalPath); err == nil {
		return os.ErrExist
	}
	return os.Rename(tmpPath, finalPath)
}
