// Package config loads the resfetch configuration file and turns it into
// the immutable option values the engine components take.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/elsanchez/resfetch/internal/dedupe"
	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/downloader"
	"github.com/elsanchez/resfetch/internal/engine"
	"github.com/elsanchez/resfetch/internal/fetcher"
	"github.com/elsanchez/resfetch/internal/probe"
	"github.com/elsanchez/resfetch/internal/search"
)

// Environment variables read by ApplyEnv.
const (
	EnvBearer = "RESFETCH_BEARER"
	EnvUID    = "RESFETCH_UID"
	EnvSID    = "RESFETCH_SID"
	EnvConfig = "RESFETCH_CONFIG"
)

// Config is the on-disk configuration.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	OutputDir  string `yaml:"output_dir"`
	CookiesDir string `yaml:"cookies_dir"`
	SocketPath string `yaml:"socket_path,omitempty"`
	LogLevel   string `yaml:"log_level"`
	Workers    int    `yaml:"workers"`

	Probe    ProbeConfig    `yaml:"probe"`
	Page     PageConfig     `yaml:"page"`
	Download DownloadConfig `yaml:"download"`
	HTTP     HTTPConfig     `yaml:"http"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`

	// CheckURLs maps a domain to the URL used by "cookies validate".
	CheckURLs map[string]string `yaml:"check_urls,omitempty"`
}

// ProbeConfig configures endpoint probing.
type ProbeConfig struct {
	Templates  []string      `yaml:"templates"`
	FieldHints []string      `yaml:"field_hints"`
	Keywords   []string      `yaml:"keywords,omitempty"`
	Mode       string        `yaml:"mode"`
	Parallel   int           `yaml:"parallel"`
	Strategy   string        `yaml:"strategy"`
	Timeout    time.Duration `yaml:"timeout"`
}

// PageConfig configures page fetches.
type PageConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	RespectRobots bool          `yaml:"respect_robots"`
	RobotsAgent   string        `yaml:"robots_agent,omitempty"`
	MaxBytes      int64         `yaml:"max_bytes"`
}

// DownloadConfig configures the download manager.
type DownloadConfig struct {
	MinBodySize int64         `yaml:"min_body_size"`
	ChunkSize   int           `yaml:"chunk_size"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// HTTPConfig holds request defaults and static credentials.
type HTTPConfig struct {
	UserAgents   []string          `yaml:"user_agents,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	RequestDelay time.Duration     `yaml:"request_delay"`
	BearerToken  string            `yaml:"bearer_token,omitempty"`
	Cookies      map[string]string `yaml:"cookies,omitempty"`
	QueryParams  map[string]string `yaml:"query_params,omitempty"`
}

// DedupeConfig selects the URL canonicalization policy.
type DedupeConfig struct {
	SortQuery bool `yaml:"sort_query"`
}

// Default returns the built-in configuration rooted at the user's home.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DataDir:    filepath.Join(home, ".local", "share", "resfetch"),
		OutputDir:  filepath.Join(home, "Downloads", "resfetch"),
		CookiesDir: filepath.Join(home, ".local", "share", "resfetch", "cookies"),
		LogLevel:   "info",
		Workers:    3,
		Probe: ProbeConfig{
			FieldHints: append(append([]string(nil), search.AudioFieldHints...), search.VideoFieldHints...),
			Mode:       "single",
			Strategy:   probe.StrategyGet,
			Timeout:    15 * time.Second,
		},
		Page: PageConfig{
			Timeout:  30 * time.Second,
			MaxBytes: 10 << 20,
		},
		Download: DownloadConfig{
			MinBodySize: 1000,
			ChunkSize:   8192,
			Timeout:     60 * time.Second,
			Retries:     3,
			RetryDelay:  time.Second,
		},
		HTTP: HTTPConfig{
			RequestDelay: 300 * time.Millisecond,
		},
	}
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "resfetch.yaml"
	}
	return filepath.Join(dir, "resfetch", "config.yaml")
}

// Load reads path over the defaults, applies the environment and validates
// the result. A missing file at the default path is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, domain.NewError(domain.KindConfig, "parse config", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, domain.NewError(domain.KindConfig, "read config", path, err)
	}

	cfg.expandHome()
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// expandHome resolves a leading "~/" in the directory settings.
func (c *Config) expandHome() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	for _, p := range []*string{&c.DataDir, &c.OutputDir, &c.CookiesDir, &c.SocketPath} {
		if *p == "~" {
			*p = home
		} else if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}
}

// ApplyEnv overrides credentials from the environment. RESFETCH_UID and
// RESFETCH_SID together form the "uid-sid" bearer token and are also sent
// as uid/sid cookies.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvBearer); v != "" {
		c.HTTP.BearerToken = v
	}
	uid, sid := getenv(EnvUID), getenv(EnvSID)
	if uid == "" || sid == "" {
		return
	}
	if getenv(EnvBearer) == "" {
		c.HTTP.BearerToken = uid + "-" + sid
	}
	if c.HTTP.Cookies == nil {
		c.HTTP.Cookies = make(map[string]string)
	}
	c.HTTP.Cookies["uid"] = uid
	c.HTTP.Cookies["sid"] = sid
}

// Validate reports the first invalid setting as a config error.
func (c *Config) Validate() error {
	var problems []string
	if c.Workers <= 0 {
		problems = append(problems, "workers must be positive")
	}
	if c.OutputDir == "" {
		problems = append(problems, "output_dir is required")
	}
	if c.Probe.Timeout <= 0 || c.Page.Timeout <= 0 || c.Download.Timeout <= 0 {
		problems = append(problems, "timeouts must be positive")
	}
	if c.Download.MinBodySize < 0 {
		problems = append(problems, "download.min_body_size must not be negative")
	}
	if c.Download.ChunkSize <= 0 {
		problems = append(problems, "download.chunk_size must be positive")
	}
	if c.Download.Retries <= 0 {
		problems = append(problems, "download.retries must be positive")
	}
	if c.HTTP.RequestDelay < 0 {
		problems = append(problems, "http.request_delay must not be negative")
	}
	switch c.Probe.Mode {
	case "", "single", "enumerate", "all":
	default:
		problems = append(problems, fmt.Sprintf("probe.mode %q is not single or enumerate", c.Probe.Mode))
	}
	if _, err := probe.StrategyByName(c.Probe.Strategy); err != nil {
		problems = append(problems, fmt.Sprintf("probe.strategy %q is unknown", c.Probe.Strategy))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return domain.NewError(domain.KindConfig, "validate config", "", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseLevel maps log_level onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q is not debug, info, warn or error", s)
	}
	return lvl, nil
}

// Credentials returns the static credentials from the file and environment.
func (c *Config) Credentials() fetcher.Credentials {
	creds := fetcher.Credentials{
		BearerToken: c.HTTP.BearerToken,
		QueryParams: c.HTTP.QueryParams,
	}
	for name, value := range c.HTTP.Cookies {
		creds.Cookies = append(creds.Cookies, &http.Cookie{Name: name, Value: value})
	}
	return creds
}

// FetcherOptions builds the HTTP client factory options.
func (c *Config) FetcherOptions() fetcher.Options {
	return fetcher.Options{
		UserAgents:    c.HTTP.UserAgents,
		Headers:       c.HTTP.Headers,
		Credentials:   c.Credentials(),
		RequestDelay:  c.HTTP.RequestDelay,
		RespectRobots: c.Page.RespectRobots,
		RobotsAgent:   c.Page.RobotsAgent,
		MaxPageBytes:  c.Page.MaxBytes,
	}
}

// ProbeOptions builds the endpoint probe options.
func (c *Config) ProbeOptions() (probe.Options, error) {
	strategy, err := probe.StrategyByName(c.Probe.Strategy)
	if err != nil {
		return probe.Options{}, err
	}
	matchers := append(search.DefaultMatchers(),
		search.GuardedFieldMatcher(search.GenericURLFields, search.AudioKeywords))
	if len(c.Probe.Keywords) > 0 {
		matchers = append(matchers, search.KeywordMatcher(c.Probe.Keywords...))
	}
	return probe.Options{
		Timeout:     c.Probe.Timeout,
		MinBodySize: c.Download.MinBodySize,
		Mode:        probe.ParseMode(c.Probe.Mode),
		Parallel:    c.Probe.Parallel,
		Strategy:    strategy,
		FieldHints:  c.Probe.FieldHints,
		Matchers:    matchers,
	}, nil
}

// DownloadOptions builds the download manager options.
func (c *Config) DownloadOptions() downloader.Options {
	return downloader.Options{
		MinBodySize: c.Download.MinBodySize,
		ChunkSize:   c.Download.ChunkSize,
		Timeout:     c.Download.Timeout,
		Retries:     c.Download.Retries,
		RetryDelay:  c.Download.RetryDelay,
	}
}

// EngineOptions builds the pipeline options.
func (c *Config) EngineOptions(log *slog.Logger) (engine.Options, error) {
	po, err := c.ProbeOptions()
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Templates:   c.Probe.Templates,
		DestDir:     c.OutputDir,
		PageTimeout: c.Page.Timeout,
		Dedupe:      dedupe.Policy{SortQuery: c.Dedupe.SortQuery},
		Probe:       po,
		Download:    c.DownloadOptions(),
		Logger:      log,
	}, nil
}

// EnsureDirs creates the data, output and cookie directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.OutputDir, c.CookiesDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
