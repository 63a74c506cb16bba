package downloader

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/media"
)

// maxBaseName limita el largo del nombre base en bytes
const maxBaseName = 120

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// sanitizeFilename reemplaza los caracteres no válidos en nombres de archivo
func sanitizeFilename(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, s)
	s = strings.Trim(strings.TrimSpace(s), ".")

	// Limitar longitud sin cortar una runa
	if len(s) > maxBaseName {
		cut := maxBaseName
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// BaseName genera el nombre de archivo sin extensión para un candidato:
// el nombre sugerido, el último segmento de la URL o un UUID determinista
func BaseName(c domain.Candidate) string {
	if name := sanitizeFilename(c.NameHint); name != "" {
		return name
	}

	if u, err := url.Parse(c.URL); err == nil {
		seg := path.Base(u.Path)
		seg = strings.TrimSuffix(seg, path.Ext(seg))
		if unescaped, err := url.PathUnescape(seg); err == nil {
			seg = unescaped
		}
		if name := sanitizeFilename(seg); name != "" && name != "_" {
			return name
		}
	}

	// Determinista por URL
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.URL)).String()
}

// urlMediaExtension retorna la extensión de la URL solo si es de media
func urlMediaExtension(rawURL string) string {
	ext := media.URLExtension(rawURL)
	if media.IsMediaExtension(ext) {
		return ext
	}
	return ""
}

// inferExtension elige la extensión final: la de la URL, luego la del
// Content-Type, luego la pista del candidato y por último el tipo detectado
func inferExtension(c domain.Candidate, contentType string, sniffed *mimetype.MIME) string {
	if ext := urlMediaExtension(c.URL); ext != "" {
		return ext
	}
	if contentType != "" && !media.IsOctetStream(contentType) {
		if ext := media.ExtensionForContentType(contentType); ext != "" {
			return ext
		}
	}
	if c.ContentTypeHint != "" {
		if ext := media.ExtensionForContentType(c.ContentTypeHint); ext != "" {
			return ext
		}
	}
	if sniffed != nil && sniffed.Extension() != "" {
		return sniffed.Extension()
	}
	return ".bin"
}

// existingFile busca un archivo ya descargado para el nombre base. Si la URL
// no trae extensión reconocida se prueban las extensiones de media conocidas
// y después cualquier extensión simple, porque el tipo detectado al
// descargar pudo asignar otra (.zip, .pdf).
func existingFile(destDir, base, urlExt string) (string, bool) {
	if urlExt != "" {
		return regularFile(filepath.Join(destDir, base+urlExt))
	}
	for _, ext := range append(media.Extensions(), ".bin") {
		if p, ok := regularFile(filepath.Join(destDir, base+ext)); ok {
			return p, true
		}
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		name := e.Name()
		ext := filepath.Ext(name)
		if ext == "" || ext == ".part" || name != base+ext {
			continue
		}
		if p, ok := regularFile(filepath.Join(destDir, name)); ok {
			return p, true
		}
	}
	return "", false
}

func regularFile(p string) (string, bool) {
	if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
		return p, true
	}
	return "", false
}
