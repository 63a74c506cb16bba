package downloader

import (
	"context"
	"net/http"

	"github.com/elsanchez/resfetch/internal/domain"
)

// Downloader define la interfaz para descargar un candidato a un directorio
type Downloader interface {
	// Fetch descarga el candidato y retorna siempre un resultado terminal
	Fetch(ctx context.Context, c domain.Candidate, destDir string, onProgress ProgressFunc) domain.DownloadResult
}

// ProgressFunc recibe los bytes escritos y el total declarado (-1 si se desconoce).
// Los valores de written nunca decrecen dentro de un mismo fetch.
type ProgressFunc func(written, total int64)

// Doer envía una petición ya construida
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
