// Package config loads gradecheck.yaml through viper. A missing default
// file means built-in defaults, which reproduce the Module 2 React setup.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalnine/gradecheck/internal/evidence"
	"github.com/signalnine/gradecheck/internal/rubric"
	"github.com/signalnine/gradecheck/internal/signals"
	"github.com/signalnine/gradecheck/internal/suites"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "gradecheck.yaml"

type Config struct {
	Rubric     string                   `mapstructure:"rubric"`
	Target     string                   `mapstructure:"target"`
	Repository string                   `mapstructure:"repository"`
	Build      BuildConfig              `mapstructure:"build"`
	Results    ResultsConfig            `mapstructure:"results"`
	Suites     SuitesConfig             `mapstructure:"suites"`
	Semantic   SemanticConfig           `mapstructure:"semantic"`
	Evidence   map[string]evidence.Spec `mapstructure:"evidence"`
	Overrides  map[string]string        `mapstructure:"overrides"`
	Signals    SignalsConfig            `mapstructure:"signals"`
	Secrets    SecretsConfig            `mapstructure:"secrets"`
	History    HistoryConfig            `mapstructure:"history"`
	Metrics    MetricsConfig            `mapstructure:"metrics"`
	Batch      BatchConfig              `mapstructure:"batch"`
	Serve      ServeConfig              `mapstructure:"serve"`
}

type BuildConfig struct {
	Failed bool `mapstructure:"failed"`
}

type ResultsConfig struct {
	Dir string `mapstructure:"dir"`
}

// SuitesConfig describes how test suites are found and run. Runner is
// "exec" (local process) or "docker".
type SuitesConfig struct {
	Dir     string        `mapstructure:"dir"`
	Runner  string        `mapstructure:"runner"`
	Command string        `mapstructure:"command"`
	Image   string        `mapstructure:"image"`
	Timeout time.Duration `mapstructure:"timeout"`
	Specs   []suites.Spec `mapstructure:"specs"`
}

type SemanticConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	AWSRegion   string        `mapstructure:"aws_region"`
	AWSProfile  string        `mapstructure:"aws_profile"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Retries     int           `mapstructure:"retries"`
	Delay       time.Duration `mapstructure:"delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PricingFile string        `mapstructure:"pricing_file"`
}

// SignalsConfig locates the auxiliary signal inputs. Relative paths are
// resolved against the target project.
type SignalsConfig struct {
	GitAnalysisFile    string        `mapstructure:"git_analysis_file"`
	DeploymentURLFile  string        `mapstructure:"deployment_url_file"`
	DeploymentTestFile string        `mapstructure:"deployment_test_file"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
	GitTimeout         time.Duration `mapstructure:"git_timeout"`
	KnownHosts         []string      `mapstructure:"known_hosts"`
}

type SecretsConfig struct {
	EnvFile string `mapstructure:"env_file"`
}

// HistoryConfig selects the run history store. Driver is "sqlite" or
// "postgres"; an empty sqlite DSN puts the database in the results dir.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

type BatchConfig struct {
	Parallel int `mapstructure:"parallel"`
}

type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rubric", "rubric.json")
	v.SetDefault("target", ".")
	v.SetDefault("results.dir", "results")

	v.SetDefault("suites.dir", ".")
	v.SetDefault("suites.runner", "exec")
	v.SetDefault("suites.image", suites.DefaultDockerImage)
	v.SetDefault("suites.timeout", 5*time.Minute)

	v.SetDefault("semantic.enabled", true)
	v.SetDefault("semantic.provider", "openai")
	v.SetDefault("semantic.temperature", 0.3)
	v.SetDefault("semantic.max_tokens", 2000)
	v.SetDefault("semantic.retries", 2)
	v.SetDefault("semantic.delay", time.Second)
	v.SetDefault("semantic.timeout", 60*time.Second)

	v.SetDefault("signals.git_analysis_file", "git-analysis.json")
	v.SetDefault("signals.deployment_url_file", "DEPLOYMENT_URL.txt")
	v.SetDefault("signals.deployment_test_file", "deployment-test.json")
	v.SetDefault("signals.probe_timeout", signals.DefaultProbeTimeout)
	v.SetDefault("signals.git_timeout", signals.DefaultGitTimeout)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("batch.parallel", 1)
	v.SetDefault("serve.addr", "127.0.0.1:8080")
}

// Load reads path. A missing file is an error unless path is DefaultPath,
// in which case defaults apply. Environment variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if !missing || path != DefaultPath {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	v.BindEnv("semantic.api_key", "GRADECHECK_API_KEY")
	v.BindEnv("build.failed", "BUILD_FAILED")
	v.BindEnv("repository", "GITHUB_REPOSITORY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults(v.IsSet)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Default is the configuration used with no file and no environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults are plain scalars, so this cannot fail.
	_ = v.Unmarshal(cfg)
	cfg.applyDefaults(v.IsSet)
	return cfg
}

// Tables are defaulted here rather than through viper so a file that sets
// one entry does not get merged with the built-in entries. A table the file
// sets explicitly, even to empty, is left alone.
func (c *Config) applyDefaults(isSet func(key string) bool) {
	if !isSet("suites.specs") {
		c.Suites.Specs = DefaultSuites()
	} else if c.Suites.Specs == nil {
		c.Suites.Specs = []suites.Spec{}
	}
	if !isSet("evidence") {
		c.Evidence = DefaultEvidence()
	} else if c.Evidence == nil {
		c.Evidence = map[string]evidence.Spec{}
	}
	if !isSet("overrides") {
		c.Overrides = DefaultOverrides()
	} else if c.Overrides == nil {
		c.Overrides = map[string]string{}
	}
	if len(c.Signals.KnownHosts) == 0 {
		c.Signals.KnownHosts = signals.DefaultKnownHosts
	}
	if c.Batch.Parallel < 1 {
		c.Batch.Parallel = 1
	}
}

func (c *Config) validate() error {
	switch c.Suites.Runner {
	case "exec", "docker":
	default:
		return fmt.Errorf("suites.runner must be exec or docker, got %q", c.Suites.Runner)
	}
	switch c.History.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("history.driver must be sqlite or postgres, got %q", c.History.Driver)
	}
	if c.Semantic.Retries < 0 {
		return fmt.Errorf("semantic.retries must not be negative")
	}
	if c.Semantic.Temperature < 0 || c.Semantic.Temperature > 2 {
		return fmt.Errorf("semantic.temperature must be within [0, 2], got %v", c.Semantic.Temperature)
	}
	return nil
}

// HistoryDSN is the configured DSN, or history.db in the results dir for
// sqlite. It is derived on use so a results dir set by flags is honored.
func (c *Config) HistoryDSN() string {
	if c.History.DSN == "" && c.History.Driver == "sqlite" {
		return filepath.Join(c.Results.Dir, "history.db")
	}
	return c.History.DSN
}

// Check cross-references every criterion id the config names against r.
func (c *Config) Check(r *rubric.Rubric) error {
	if err := suites.Validate(r, c.Suites.Specs); err != nil {
		return err
	}
	for _, id := range sortedKeys(c.Overrides) {
		if err := r.Require("overrides", id); err != nil {
			return err
		}
		if !validSource(c.Overrides[id]) {
			return &rubric.ConfigError{
				Source: "overrides",
				Field:  id,
				Msg:    fmt.Sprintf("unknown signal source %q (want one of %s)", c.Overrides[id], strings.Join(signals.Sources, ", ")),
			}
		}
	}
	for _, id := range sortedKeys(c.Evidence) {
		if err := r.Require("evidence", id); err != nil {
			return err
		}
		if _, err := evidence.New(c.Evidence[id]); err != nil {
			return &rubric.ConfigError{Source: "evidence", Field: id, Msg: "invalid extractor", Err: err}
		}
	}
	return nil
}

// Resolve makes a signal path absolute against the target.
func Resolve(target, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(target, path)
}

// Exists reports whether path names an existing file.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func validSource(s string) bool {
	for _, k := range signals.Sources {
		if s == k {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func DefaultSuites() []suites.Spec {
	return []suites.Spec{
		{Name: "Components", File: "tests/frontend/components.test.js", Criteria: []string{"criterion_1", "criterion_2", "criterion_3", "criterion_5", "criterion_6", "criterion_7", "criterion_8"}},
		{Name: "React Hooks", File: "tests/frontend/hooks.test.js", Criteria: []string{"criterion_1", "criterion_2", "criterion_8"}},
		{Name: "Routing", File: "tests/frontend/routing.test.js", Criteria: []string{"criterion_4"}},
		{Name: "Data Flow", File: "tests/integration/data-flow.test.js", Criteria: []string{"criterion_3", "criterion_5", "criterion_8"}},
		{Name: "URL Accessibility", File: "tests/deployment/url-accessibility.test.js", Criteria: []string{"criterion_11"}},
		{Name: "Deployment Functionality", File: "tests/deployment/functionality.test.js", Criteria: []string{"criterion_11"}},
		{Name: "Git History", File: "tests/git/commit-history.test.js", Criteria: []string{"criterion_10"}},
	}
}

func DefaultOverrides() map[string]string {
	return map[string]string{
		"criterion_10": signals.SourceGit,
		"criterion_11": signals.SourceDeployment,
	}
}

func DefaultEvidence() map[string]evidence.Spec {
	return map[string]evidence.Spec{
		"criterion_1":  {Kind: evidence.KindComponent, Match: []string{"header"}},
		"criterion_2":  {Kind: evidence.KindComponent, Match: []string{"hero", "carousel"}, Label: "Hero/Carousel Component"},
		"criterion_3":  {Kind: evidence.KindComponentData, Match: []string{"signature", "dishes"}, Label: "Signature Dishes Component"},
		"criterion_4":  {Kind: evidence.KindPages},
		"criterion_5":  {Kind: evidence.KindComponent, Match: []string{"form", "reservation"}, Label: "Form Component"},
		"criterion_6":  {Kind: evidence.KindComponent, Match: []string{"chat", "bot"}, Label: "Chatbot Component"},
		"criterion_7":  {Kind: evidence.KindComponent, Match: []string{"footer"}},
		"criterion_8":  {Kind: evidence.KindHooks},
		"criterion_9":  {Kind: evidence.KindStyling},
		"criterion_10": {Kind: evidence.KindDocsGit},
	}
}
