package domain

// Strategy identifica cómo se descubrió un candidato
type Strategy string

const (
	StrategyTagScan          Strategy = "tag_scan"
	StrategyLinkScan         Strategy = "link_scan"
	StrategyRegexScan        Strategy = "regex_scan"
	StrategyStructuredSearch Strategy = "structured_search"
	StrategyDirectProbe      Strategy = "direct_probe"
	StrategyFeedScan         Strategy = "feed_scan"
	StrategyEmbedScan        Strategy = "embed_scan"
)

// Confidence ordena candidatos; mayor es mejor
type Confidence int

const (
	ConfidenceEmbed     Confidence = 5
	ConfidencePotential Confidence = 10
	ConfidenceRegex     Confidence = 20
	ConfidenceLink      Confidence = 25
	ConfidenceFeed      Confidence = 28
	ConfidenceTag       Confidence = 30
	ConfidenceKeyword   Confidence = 40
	ConfidenceField     Confidence = 50
	ConfidenceDirect    Confidence = 60
)

func (c Confidence) String() string {
	switch {
	case c >= ConfidenceDirect:
		return "direct"
	case c >= ConfidenceField:
		return "field"
	case c >= ConfidenceKeyword:
		return "keyword"
	case c >= ConfidenceTag:
		return "tag"
	case c >= ConfidenceFeed:
		return "feed"
	case c >= ConfidenceLink:
		return "link"
	case c >= ConfidenceRegex:
		return "regex"
	case c >= ConfidencePotential:
		return "potential"
	default:
		return "embed"
	}
}

// Candidate es una referencia a un recurso descubierto, aún sin verificar
type Candidate struct {
	URL             string     `json:"url"`
	Strategy        Strategy   `json:"strategy"`
	ContentTypeHint string     `json:"content_type_hint,omitempty"`
	Confidence      Confidence `json:"confidence"`
	NameHint        string     `json:"name_hint,omitempty"`

	// Procedencia: el objetivo y la URL (plantilla o página) que lo produjo
	TargetID string `json:"target_id,omitempty"`
	Source   string `json:"source,omitempty"`
}

// IsPotential indica un candidato débil que no se descarga sin corroboración
func (c Candidate) IsPotential() bool {
	return c.Confidence <= ConfidencePotential
}

// IsDownloadable indica si el candidato puede pasar al DownloadManager
func (c Candidate) IsDownloadable() bool {
	return c.URL != "" && c.Strategy != StrategyEmbedScan && !c.IsPotential()
}
