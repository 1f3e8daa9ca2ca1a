package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coursestats/gather/internal/milestone"
	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

var validAuthModes = []string{"none", "token", "app"}

// Config is the root application configuration.
type Config struct {
	Logging      LoggingConfig
	Output       OutputConfig
	GitHub       GitHubConfig
	Retry        RetryConfig
	RateLimit    RateLimitConfig
	Schedule     ScheduleConfig
	Repositories []RepositoryTarget
	Categories   CategoriesConfig
	Progress     ProgressConfig
	Telemetry    TelemetryConfig
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// OutputConfig contains snapshot output settings.
type OutputConfig struct {
	Dir           string `yaml:"dir"`
	UsernamesPath string `yaml:"usernames_path"`
}

// GitHubConfig configures GitHub API interactions.
type GitHubConfig struct {
	APIBaseURL        string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Auth              AuthConfig
}

// AuthConfig configures how API requests are authenticated.
type AuthConfig struct {
	Mode           string `yaml:"mode"`
	TokenEnv       string `yaml:"token_env"`
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// RetryConfig configures retries on transient fetch failures.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// RateLimitConfig configures rate-limit waiting behavior.
type RateLimitConfig struct {
	MaxResetWait time.Duration
}

// ScheduleConfig contains the global cutoff and the ordered milestone instants.
type ScheduleConfig struct {
	NotBefore  time.Time
	Milestones []time.Time
}

// RepositoryTarget identifies one repository and the ref to read commits from.
type RepositoryTarget struct {
	Owner  string
	Name   string
	Branch string
}

// Slug returns the owner-name form used for snapshot file names.
func (t RepositoryTarget) Slug() string {
	return t.Owner + "-" + t.Name
}

// String returns the owner/name form used in logs.
func (t RepositoryTarget) String() string {
	return t.Owner + "/" + t.Name
}

// CategoriesConfig selects which activity categories are gathered.
type CategoriesConfig struct {
	Commits bool `yaml:"commits"`
	Issues  bool `yaml:"issues"`
	PRs     bool `yaml:"prs"`
}

// ProgressConfig configures the optional progress/metrics endpoint.
type ProgressConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg, err := raw.toConfig()
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Logging.Level) {
		errs = append(errs, "logging.level must be one of debug|info|warn|error")
	}

	if !slices.Contains(validAuthModes, c.GitHub.Auth.Mode) {
		errs = append(errs, "github.auth.mode must be one of none|token|app")
	}
	if c.GitHub.Auth.Mode == "app" {
		if c.GitHub.Auth.AppID <= 0 {
			errs = append(errs, "github.auth.app_id must be > 0 when github.auth.mode=app")
		}
		if c.GitHub.Auth.InstallationID <= 0 {
			errs = append(errs, "github.auth.installation_id must be > 0 when github.auth.mode=app")
		}
		if c.GitHub.Auth.PrivateKeyPath == "" {
			errs = append(errs, "github.auth.private_key_path is required when github.auth.mode=app")
		}
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, "retry.max_attempts must be > 0")
	}

	if c.Schedule.NotBefore.IsZero() {
		errs = append(errs, "schedule.not_before is required")
	}
	if len(c.Schedule.Milestones) == 0 {
		errs = append(errs, "schedule.milestones must contain at least one instant")
	}

	if len(c.Repositories) == 0 {
		errs = append(errs, "repositories must contain at least one owner/name target")
	}
	seen := make(map[string]struct{}, len(c.Repositories))
	for i, target := range c.Repositories {
		prefix := fmt.Sprintf("repositories[%d]", i)
		if target.Owner == "" || target.Name == "" {
			errs = append(errs, prefix+" must be in owner/name form")
			continue
		}
		if _, ok := seen[target.String()]; ok {
			errs = append(errs, "repositories contains duplicate target: "+target.String())
		}
		seen[target.String()] = struct{}{}
	}

	if !c.Categories.Commits && !c.Categories.Issues && !c.Categories.PRs {
		errs = append(errs, "categories must enable at least one of commits|issues|prs")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ApplySince replaces the not-before instant with midnight of the given day
// in the display zone. Used by the --since flag.
func (c *Config) ApplySince(day string) error {
	parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(day), milestone.DisplayZone)
	if err != nil {
		return fmt.Errorf("parse since date %q: %w", day, err)
	}
	c.Schedule.NotBefore = parsed
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "commits-issues-prs"
	}
	if cfg.Output.UsernamesPath == "" {
		cfg.Output.UsernamesPath = "github-usernames.json"
	}
	if cfg.GitHub.RequestTimeout <= 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.GitHub.Auth.Mode == "" {
		cfg.GitHub.Auth.Mode = "token"
	}
	if cfg.GitHub.Auth.TokenEnv == "" {
		cfg.GitHub.Auth.TokenEnv = "GITHUB_TOKEN"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = 1 * time.Second
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}
	if cfg.RateLimit.MaxResetWait <= 0 {
		cfg.RateLimit.MaxResetWait = 5 * time.Minute
	}
	if !cfg.Categories.Commits && !cfg.Categories.Issues && !cfg.Categories.PRs {
		cfg.Categories = CategoriesConfig{Commits: true, Issues: true, PRs: true}
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

// instantLayouts are accepted milestone/cutoff timestamp forms. Layouts
// without an explicit offset are interpreted in the display zone.
var instantLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseInstant(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed, nil
	}
	for _, layout := range instantLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, milestone.DisplayZone); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unsupported format", raw)
}

type rawConfig struct {
	Logging      LoggingConfig                 `yaml:"logging"`
	Output       OutputConfig                  `yaml:"output"`
	GitHub       rawGitHub                     `yaml:"github"`
	Retry        rawRetry                      `yaml:"retry"`
	RateLimit    rawRateLimit                  `yaml:"rate_limit"`
	Schedule     rawSchedule                   `yaml:"schedule"`
	Repositories []rawRepository               `yaml:"repositories"`
	Orgs         map[string][]rawOrgRepository `yaml:"orgs"`
	Categories   CategoriesConfig              `yaml:"categories"`
	Progress     ProgressConfig                `yaml:"progress"`
	Telemetry    TelemetryConfig               `yaml:"telemetry"`
}

type rawGitHub struct {
	APIBaseURL        string     `yaml:"api_base_url"`
	RequestTimeout    duration   `yaml:"request_timeout"`
	RequestsPerSecond float64    `yaml:"requests_per_second"`
	Auth              AuthConfig `yaml:"auth"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawRateLimit struct {
	MaxResetWait duration `yaml:"max_reset_wait"`
}

type rawSchedule struct {
	NotBefore  string   `yaml:"not_before"`
	Milestones []string `yaml:"milestones"`
}

// rawRepository accepts either a bare "owner/name" string or a mapping with
// repo and branch keys.
type rawRepository struct {
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch"`
}

func (r *rawRepository) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		r.Repo = value.Value
		return nil
	}
	type plain rawRepository
	return value.Decode((*plain)(r))
}

// rawOrgRepository accepts a bare repo name (owner comes from the org key) or
// a mapping with repo and branch keys.
type rawOrgRepository struct {
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch"`
}

func (r *rawOrgRepository) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		r.Repo = value.Value
		return nil
	}
	type plain rawOrgRepository
	return value.Decode((*plain)(r))
}

func (r rawConfig) toConfig() (*Config, error) {
	cfg := &Config{
		Logging: r.Logging,
		Output:  r.Output,
		GitHub: GitHubConfig{
			APIBaseURL:        r.GitHub.APIBaseURL,
			RequestTimeout:    r.GitHub.RequestTimeout.Duration,
			RequestsPerSecond: r.GitHub.RequestsPerSecond,
			Auth:              r.GitHub.Auth,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		RateLimit: RateLimitConfig{
			MaxResetWait: r.RateLimit.MaxResetWait.Duration,
		},
		Categories: r.Categories,
		Progress:   r.Progress,
		Telemetry:  r.Telemetry,
	}

	if strings.TrimSpace(r.Schedule.NotBefore) != "" {
		notBefore, err := parseInstant(r.Schedule.NotBefore)
		if err != nil {
			return nil, fmt.Errorf("schedule.not_before: %w", err)
		}
		cfg.Schedule.NotBefore = notBefore
	}
	for i, raw := range r.Schedule.Milestones {
		instant, err := parseInstant(raw)
		if err != nil {
			return nil, fmt.Errorf("schedule.milestones[%d]: %w", i, err)
		}
		cfg.Schedule.Milestones = append(cfg.Schedule.Milestones, instant)
	}

	for _, entry := range r.Repositories {
		target, err := parseTarget(entry.Repo, entry.Branch)
		if err != nil {
			return nil, fmt.Errorf("repositories: %w", err)
		}
		cfg.Repositories = append(cfg.Repositories, target)
	}
	for _, owner := range sortedKeys(r.Orgs) {
		for _, entry := range r.Orgs[owner] {
			raw := entry.Repo
			if !strings.Contains(raw, "/") {
				raw = owner + "/" + raw
			}
			target, err := parseTarget(raw, entry.Branch)
			if err != nil {
				return nil, fmt.Errorf("orgs[%s]: %w", owner, err)
			}
			cfg.Repositories = append(cfg.Repositories, target)
		}
	}

	return cfg, nil
}

func parseTarget(raw, branch string) (RepositoryTarget, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok || owner == "" || name == "" {
		return RepositoryTarget{}, fmt.Errorf("invalid repository %q: expected owner/name", raw)
	}
	return RepositoryTarget{
		Owner:  owner,
		Name:   name,
		Branch: strings.TrimSpace(branch),
	}, nil
}

func sortedKeys(m map[string][]rawOrgRepository) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
