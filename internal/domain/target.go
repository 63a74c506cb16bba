package domain

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
)

// Identificadores conocidos que se extraen de la URL de una página
const (
	ParamFileID    = "file_id"
	ParamChapterID = "chapter_id"
	ParamTitle     = "title"
)

// TargetSpec es la forma serializable de un ProbeTarget
type TargetSpec struct {
	ID      string            `json:"id,omitempty"`
	PageURL string            `json:"page_url,omitempty"`
	BaseURL string            `json:"base_url,omitempty"`
	Title   string            `json:"title,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

// ProbeTarget contiene los identificadores de una ejecución de descubrimiento.
// Es inmutable: los campos solo se leen a través de métodos.
type ProbeTarget struct {
	id      string
	pageURL string
	baseURL string
	title   string
	params  map[string]string
}

// NewProbeTarget valida y congela un TargetSpec
func NewProbeTarget(spec TargetSpec) (ProbeTarget, error) {
	params := make(map[string]string, len(spec.Params))
	for k, v := range spec.Params {
		params[strings.ToLower(k)] = v
	}

	baseURL := spec.BaseURL
	if spec.PageURL != "" {
		u, err := url.Parse(spec.PageURL)
		if err != nil || !u.IsAbs() {
			return ProbeTarget{}, NewError(KindInvalidInput, "new target", spec.PageURL, fmt.Errorf("page url must be absolute"))
		}
		if baseURL == "" {
			baseURL = u.Scheme + "://" + u.Host
		}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	title := spec.Title
	if title == "" {
		title = params[ParamTitle]
	}

	id := spec.ID
	if id == "" {
		id = deriveTargetID(spec.PageURL, params)
	}
	if id == "" {
		return ProbeTarget{}, NewError(KindInvalidInput, "new target", "", fmt.Errorf("target needs an id, a page url or identifiers"))
	}

	return ProbeTarget{
		id:      id,
		pageURL: spec.PageURL,
		baseURL: baseURL,
		title:   title,
		params:  params,
	}, nil
}

func deriveTargetID(pageURL string, params map[string]string) string {
	if pageURL != "" {
		return pageURL
	}
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, "&")
}

func (t ProbeTarget) ID() string { return t.id }
func (t ProbeTarget) PageURL() string { return t.pageURL }
func (t ProbeTarget) BaseURL() string { return t.baseURL }
func (t ProbeTarget) Title() string { return t.title }

// Param retorna un identificador por nombre (case-insensitive)
func (t ProbeTarget) Param(name string) (string, bool) {
	v, ok := t.params[strings.ToLower(name)]
	return v, ok
}

// Params retorna una copia de los identificadores
func (t ProbeTarget) Params() map[string]string {
	out := make(map[string]string, len(t.params))
	for k, v := range t.params {
		out[k] = v
	}
	return out
}

// Spec retorna la forma serializable del objetivo
func (t ProbeTarget) Spec() TargetSpec {
	return TargetSpec{
		ID:      t.id,
		PageURL: t.pageURL,
		BaseURL: t.baseURL,
		Title:   t.title,
		Params:  t.Params(),
	}
}

// Domain retorna el host de la página o de la URL base
func (t ProbeTarget) Domain() string {
	for _, raw := range []string{t.pageURL, t.baseURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Hostname()
		}
	}
	return ""
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Instantiate sustituye los placeholders {nombre} de una plantilla y la
// resuelve contra la URL base cuando es relativa
func (t ProbeTarget) Instantiate(template string) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := strings.ToLower(m[1 : len(m)-1])
		switch name {
		case "page_url":
			return url.QueryEscape(t.pageURL)
		case "base_url":
			return t.baseURL
		}
		v, ok := t.params[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return url.PathEscape(v)
	})
	if len(missing) > 0 {
		return "", NewError(KindInvalidInput, "instantiate template", template, fmt.Errorf("missing identifiers: %s", strings.Join(missing, ", ")))
	}

	u, err := url.Parse(out)
	if err != nil {
		return "", NewError(KindInvalidInput, "instantiate template", out, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if t.baseURL == "" {
		return "", NewError(KindInvalidInput, "instantiate template", out, fmt.Errorf("relative template without base url"))
	}
	base, err := url.Parse(t.baseURL + "/")
	if err != nil {
		return "", NewError(KindInvalidInput, "instantiate template", t.baseURL, err)
	}
	return base.ResolveReference(u).String(), nil
}

// ParseTarget construye un objetivo a partir de la URL de una página,
// extrayendo file_id, chapter_id y title de la query o del path
func ParseTarget(pageURL string) (ProbeTarget, error) {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || !u.IsAbs() {
		return ProbeTarget{}, NewError(KindInvalidInput, "parse target", pageURL, fmt.Errorf("page url must be absolute"))
	}

	q := u.Query()
	params := make(map[string]string)

	for _, key := range []string{"_id", "id", "fileId", "file_id"} {
		if v := q.Get(key); v != "" {
			params[ParamFileID] = v
			break
		}
	}
	if _, ok := params[ParamFileID]; !ok {
		// Último segmento del path si parece un identificador
		last := path.Base(strings.TrimRight(u.Path, "/"))
		if len(last) > 10 && !strings.Contains(last, ".") {
			params[ParamFileID] = last
		}
	}
	for _, key := range []string{"chapterId", "chapter_id"} {
		if v := q.Get(key); v != "" {
			params[ParamChapterID] = v
			break
		}
	}
	if v := q.Get("title"); v != "" {
		params[ParamTitle] = v
	}

	return NewProbeTarget(TargetSpec{PageURL: u.String(), Params: params})
}
