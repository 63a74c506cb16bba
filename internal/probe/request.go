package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/elsanchez/resfetch/internal/domain"
)

// RequestStrategy builds the request sent for one instantiated template.
type RequestStrategy interface {
	Name() string
	Build(ctx context.Context, target domain.ProbeTarget, endpoint string) (*http.Request, error)
}

// Strategy names accepted in configuration.
const (
	StrategyGet      = "get"
	StrategyPostJSON = "post-json"
	StrategyPostForm = "post-form"
)

// StrategyByName resolves a configured strategy name. The empty name is GET.
func StrategyByName(name string) (RequestStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyGet:
		return GetStrategy{}, nil
	case StrategyPostJSON:
		return PostJSONStrategy{}, nil
	case StrategyPostForm:
		return PostFormStrategy{}, nil
	}
	return nil, domain.NewError(domain.KindConfig, "request strategy", "", fmt.Errorf("unknown strategy %q", name))
}

// GetStrategy issues a plain GET.
type GetStrategy struct{}

func (GetStrategy) Name() string { return StrategyGet }

func (GetStrategy) Build(ctx context.Context, _ domain.ProbeTarget, endpoint string) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
}

// PostJSONStrategy posts the target identifiers and the endpoint's query
// parameters as a flat JSON object. Query values win on conflicts.
type PostJSONStrategy struct{}

func (PostJSONStrategy) Name() string { return StrategyPostJSON }

func (PostJSONStrategy) Build(ctx context.Context, target domain.ProbeTarget, endpoint string) (*http.Request, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	payload := target.Params()
	for k, vs := range u.Query() {
		if len(vs) > 0 {
			payload[k] = vs[0]
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// PostFormStrategy posts the endpoint's query parameters again as an
// urlencoded form body, followed by any identifiers not already present.
type PostFormStrategy struct{}

func (PostFormStrategy) Name() string { return StrategyPostForm }

func (PostFormStrategy) Build(ctx context.Context, target domain.ProbeTarget, endpoint string) (*http.Request, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	form := u.Query()
	params := target.Params()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !form.Has(k) {
			form.Set(k, params[k])
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}
