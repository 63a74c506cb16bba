package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/elsanchez/resfetch/internal/domain"
)

// multiFlag acumula un flag repetible
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

// targetFlags describe los objetivos desde la línea de comandos
type targetFlags struct {
	baseURL     string
	id          string
	title       string
	targetsFile string
	params      multiFlag
}

func (t *targetFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&t.baseURL, "base-url", "", "base URL for templates")
	fs.StringVar(&t.id, "id", "", "target ID")
	fs.StringVar(&t.title, "title", "", "file name hint")
	fs.StringVar(&t.targetsFile, "targets", "", "YAML file with a list of targets")
	fs.Var(&t.params, "param", "template identifier key=value (repeatable)")
}

// targetEntry es una entrada del archivo --targets
type targetEntry struct {
	ID      string            `yaml:"id"`
	PageURL string            `yaml:"page_url"`
	BaseURL string            `yaml:"base_url"`
	Title   string            `yaml:"title"`
	Params  map[string]string `yaml:"params"`
}

// build combina URLs posicionales, flags y el archivo de objetivos.
// --id, --title y --param se aplican a cada URL posicional; sin URLs
// describen un único objetivo sobre --base-url.
func (t *targetFlags) build(pageURLs []string) ([]domain.TargetSpec, error) {
	params, err := parseParams(t.params)
	if err != nil {
		return nil, err
	}

	var specs []domain.TargetSpec
	for _, u := range pageURLs {
		specs = append(specs, domain.TargetSpec{
			ID:      t.id,
			PageURL: u,
			BaseURL: t.baseURL,
			Title:   t.title,
			Params:  params,
		})
	}
	if len(pageURLs) == 0 && (t.baseURL != "" || len(params) > 0) {
		specs = append(specs, domain.TargetSpec{
			ID:      t.id,
			BaseURL: t.baseURL,
			Title:   t.title,
			Params:  params,
		})
	}
	// Un mismo --id en varias URLs produciría claves repetidas
	if t.id != "" && len(pageURLs) > 1 {
		for i := range specs {
			specs[i].ID = ""
		}
	}

	if t.targetsFile != "" {
		fromFile, err := readTargets(t.targetsFile)
		if err != nil {
			return nil, err
		}
		specs = append(specs, fromFile...)
	}

	if len(specs) == 0 {
		return nil, domain.NewError(domain.KindConfig, "targets", "", fmt.Errorf("no targets given"))
	}
	return specs, nil
}

func parseParams(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, domain.NewError(domain.KindConfig, "parse param", "", fmt.Errorf("%q is not key=value", kv))
		}
		params[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return params, nil
}

// readTargets lee una lista YAML de objetivos. Una entrada puede ser solo
// la URL de la página.
func readTargets(path string) ([]domain.TargetSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewError(domain.KindConfig, "read targets", path, err)
	}

	var nodes []yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, domain.NewError(domain.KindConfig, "parse targets", path, err)
	}

	specs := make([]domain.TargetSpec, 0, len(nodes))
	for _, node := range nodes {
		if node.Kind == yaml.ScalarNode {
			specs = append(specs, domain.TargetSpec{PageURL: node.Value})
			continue
		}
		var e targetEntry
		if err := node.Decode(&e); err != nil {
			return nil, domain.NewError(domain.KindConfig, "parse targets", path,
				fmt.Errorf("line %d: %w", node.Line, err))
		}
		specs = append(specs, domain.TargetSpec{
			ID:      e.ID,
			PageURL: e.PageURL,
			BaseURL: e.BaseURL,
			Title:   e.Title,
			Params:  e.Params,
		})
	}
	return specs, nil
}
