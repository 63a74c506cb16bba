package probe

import (
	"io"
	"net/http"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/media"
	"github.com/elsanchez/resfetch/internal/search"
)

// maxJSONBody bounds how much of a JSON response is decoded.
const maxJSONBody = 16 << 20

// outcome is the classification of one response plus what it produced.
type outcome struct {
	class      domain.Classification
	err        *domain.Error
	candidates []domain.Candidate
	hit        bool
}

// classify applies the response rules in order: direct media, structured
// JSON, large opaque body, then status buckets.
func (p *Prober) classify(resp *http.Response, target domain.ProbeTarget, endpoint string) outcome {
	ct := resp.Header.Get("Content-Type")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := domain.StatusError("probe", endpoint, resp.StatusCode)
		switch se.Kind {
		case domain.KindAuth:
			return outcome{class: domain.ClassAuthDenied, err: se}
		case domain.KindNotFound:
			return outcome{class: domain.ClassNotFound, err: se}
		}
		return outcome{class: domain.ClassStatus, err: se}
	}

	if media.IsMediaType(ct) || (media.IsOctetStream(ct) && resp.ContentLength > p.opts.MinBodySize) {
		return directOutcome(target, endpoint, ct)
	}

	// Chunked octet-stream: the size is only known after reading past the threshold.
	if media.IsOctetStream(ct) && resp.ContentLength < 0 {
		n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, p.opts.MinBodySize+1))
		if err != nil {
			return outcome{class: domain.ClassNetwork, err: domain.NewError(domain.KindNetwork, "read probe", endpoint, err)}
		}
		if n > p.opts.MinBodySize {
			return directOutcome(target, endpoint, ct)
		}
		return outcome{class: domain.ClassNoMatch}
	}

	if media.IsJSON(ct) {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
		if err != nil {
			return outcome{class: domain.ClassNetwork, err: domain.NewError(domain.KindNetwork, "read probe", endpoint, err)}
		}
		v, err := search.Decode(body)
		if err != nil {
			return outcome{class: domain.ClassDecode, err: domain.NewError(domain.KindDecode, "probe", endpoint, err)}
		}
		matches, err := p.searcher.Search(v, search.EnumerateAll)
		if err != nil {
			// A bare JSON scalar holds no links.
			return outcome{class: domain.ClassNoMatch}
		}
		cands := search.ToCandidates(matches, endpoint, target.ID())
		for i := range cands {
			cands[i].NameHint = target.Title()
		}
		if len(cands) == 0 {
			return outcome{class: domain.ClassNoMatch}
		}
		return outcome{class: domain.ClassStructured, candidates: cands}
	}

	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, p.opts.MinBodySize+1))
	if err != nil {
		return outcome{class: domain.ClassNetwork, err: domain.NewError(domain.KindNetwork, "read probe", endpoint, err)}
	}
	if n > p.opts.MinBodySize {
		return outcome{
			class: domain.ClassPotential,
			candidates: []domain.Candidate{{
				URL:             endpoint,
				Strategy:        domain.StrategyDirectProbe,
				ContentTypeHint: media.BaseType(ct),
				Confidence:      domain.ConfidencePotential,
				NameHint:        target.Title(),
				TargetID:        target.ID(),
				Source:          endpoint,
			}},
		}
	}
	return outcome{class: domain.ClassNoMatch}
}

func directOutcome(target domain.ProbeTarget, endpoint, ct string) outcome {
	return outcome{
		class: domain.ClassDirect,
		hit:   true,
		candidates: []domain.Candidate{{
			URL:             endpoint,
			Strategy:        domain.StrategyDirectProbe,
			ContentTypeHint: media.BaseType(ct),
			Confidence:      domain.ConfidenceDirect,
			NameHint:        target.Title(),
			TargetID:        target.ID(),
			Source:          endpoint,
		}},
	}
}
