package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
	"github.com/weaveworks/apptrust-promoter/internal/apptrust"
	"github.com/weaveworks/apptrust-promoter/pkg/stages"
)

// Environment variables read by ApplyEnv.
const (
	EnvPlatformURL    = "JFROG_URL"
	EnvBaseURL        = "APPTRUST_BASE_URL"
	EnvApplication    = "APPLICATION_KEY"
	EnvVersion        = "APP_VERSION"
	EnvProjectKey     = "PROJECT_KEY"
	EnvOIDCToken      = "JF_OIDC_TOKEN"
	EnvAccessToken    = "APPTRUST_ACCESS_TOKEN"
	EnvStages         = "PROMOTION_STAGES"
	EnvFinalStage     = "FINAL_STAGE"
	EnvAllowRelease   = "ALLOW_RELEASE"
	EnvTimeoutSeconds = "APPTRUST_TIMEOUT_SECONDS"
	EnvService        = "SERVICE_NAME"
	EnvRepositoryKeys = "RELEASE_INCLUDED_REPO_KEYS"
	EnvStateFile      = "GITHUB_ENV"
)

// DefaultStages is the lifecycle used when none is configured.
var DefaultStages = v1alpha1.StageList{v1alpha1.Dev, v1alpha1.QA, v1alpha1.Staging, v1alpha1.Prod}

var ErrConfigurationMissing = errors.New("required configuration missing")

// MissingError lists the settings that have to be provided before anything is sent to the promotion service.
type MissingError struct {
	Fields []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfigurationMissing, strings.Join(e.Fields, ", "))
}

func (e *MissingError) Is(target error) bool {
	return target == ErrConfigurationMissing
}

// Mode is what the binary has been asked to do. It decides which settings are required.
type Mode string

const (
	ModeAdvance  Mode = "advance"
	ModeRollback Mode = "rollback"
	ModeServe    Mode = "serve"
)

// Config holds every setting of a run. Values are layered: file, then environment, then flags.
type Config struct {
	BaseURL        string              `yaml:"baseURL"`
	Application    string              `yaml:"application"`
	Version        string              `yaml:"version"`
	ProjectKey     string              `yaml:"projectKey"`
	Token          string              `yaml:"-"`
	Stages         v1alpha1.StageList  `yaml:"stages"`
	FinalStage     v1alpha1.Stage      `yaml:"finalStage"`
	AllowRelease   bool                `yaml:"allowRelease"`
	Timeout        time.Duration       `yaml:"timeout"`
	Service        string              `yaml:"service"`
	RepositoryKeys []string            `yaml:"repositoryKeys"`
	StateFile      string              `yaml:"stateFile"`
	DryRun         bool                `yaml:"dryRun"`
	Evidence       map[string][]string `yaml:"evidence"`
	Server         ServerConfig        `yaml:"server"`
}

// ServerConfig configures the promotion hook server.
type ServerConfig struct {
	ListenAddr        string        `yaml:"listenAddr"`
	RateLimit         int           `yaml:"rateLimit"`
	RateLimitInterval time.Duration `yaml:"rateLimitInterval"`
	HMACKeyFile       string        `yaml:"hmacKeyFile"`
}

// Default returns a configuration with every optional setting at its default.
func Default() *Config {
	list := make(v1alpha1.StageList, len(DefaultStages))
	copy(list, DefaultStages)
	return &Config{
		Stages:  list,
		Timeout: v1alpha1.DefaultTimeout,
		Server: ServerConfig{
			ListenAddr:        ":8082",
			RateLimit:         20,
			RateLimitInterval: 30 * time.Second,
		},
	}
}

// Load builds a configuration from the optional file at path and the environment.
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	c := Default()
	if path != "" {
		if err := c.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	c.NormalizeStages()
	return c, nil
}

// LoadFile overlays the YAML document at path.
func (c *Config) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed reading config file: %w", err)
	}
	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("failed parsing config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays the environment variables that are set. JFROG_URL is a platform URL the API root is derived
// from, it takes precedence over APPTRUST_BASE_URL.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	var errs []error

	if v, ok := get(EnvPlatformURL); ok {
		c.BaseURL = strings.TrimRight(v, "/") + apptrust.APIPath
	} else if v, ok := get(EnvBaseURL); ok {
		c.BaseURL = v
	}
	if v, ok := get(EnvApplication); ok {
		c.Application = v
	}
	if v, ok := get(EnvVersion); ok {
		c.Version = v
	}
	if v, ok := get(EnvProjectKey); ok {
		c.ProjectKey = v
	}
	if v, ok := get(EnvOIDCToken); ok {
		c.Token = v
	} else if v, ok := get(EnvAccessToken); ok {
		c.Token = v
	}
	if v, ok := get(EnvStages); ok {
		c.Stages = v1alpha1.ParseStageList(v)
	}
	if v, ok := get(EnvFinalStage); ok {
		c.FinalStage = v1alpha1.Stage(v)
	}
	if v, ok := get(EnvAllowRelease); ok {
		allow, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", EnvAllowRelease, v, err))
		}
		c.AllowRelease = allow
	}
	if v, ok := get(EnvTimeoutSeconds); ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", EnvTimeoutSeconds, v, err))
		}
		c.Timeout = time.Duration(secs) * time.Second
	}
	if v, ok := get(EnvService); ok {
		c.Service = v
	}
	if v, ok := get(EnvRepositoryKeys); ok {
		c.RepositoryKeys = splitList(v)
	}
	if v, ok := get(EnvStateFile); ok {
		c.StateFile = v
	}

	return utilerrors.NewAggregate(errs)
}

// Validate checks that everything mode needs is set.
func (c *Config) Validate(mode Mode) error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	require("base URL ("+EnvBaseURL+" or "+EnvPlatformURL+")", c.BaseURL)
	require("access token ("+EnvOIDCToken+" or "+EnvAccessToken+")", c.Token)
	switch mode {
	case ModeAdvance:
		require("application key ("+EnvApplication+")", c.Application)
		require("application version ("+EnvVersion+")", c.Version)
	case ModeRollback:
		require("application key ("+EnvApplication+")", c.Application)
		require("target version ("+EnvVersion+")", c.Version)
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, &MissingError{Fields: missing})
	}
	if mode != ModeRollback {
		if err := c.Stages.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("invalid stage list: %w", err))
		} else if c.FinalStage != "" && !c.Stages.Contains(c.FinalStage) {
			errs = append(errs, fmt.Errorf("final stage %s is not part of stage list %s", c.FinalStage, c.Stages))
		}
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	return utilerrors.NewAggregate(errs)
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' })
}

// BindFlags registers a flag for every setting on fs, writing into c. Combine with Override to layer them over
// a loaded configuration.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.BaseURL, "apptrust-url", c.BaseURL, "AppTrust API root, e.g. https://example.jfrog.io/apptrust/api/v1.")
	fs.StringVar(&c.Application, "application", c.Application, "Application key.")
	fs.StringVar(&c.Version, "version", c.Version, "Application version.")
	fs.StringVar(&c.ProjectKey, "project", c.ProjectKey, "Project key namespacing stages and repositories.")
	fs.Var(&stageListValue{list: &c.Stages}, "stages", "Comma separated, ordered list of lifecycle stages.")
	fs.StringVar((*string)(&c.FinalStage), "final-stage", string(c.FinalStage), "Stage a version is released into. Defaults to the last stage.")
	fs.BoolVar(&c.AllowRelease, "allow-release", c.AllowRelease, "Release the version when it's advanced into the final stage.")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "Timeout of every call to the promotion service.")
	fs.StringVar(&c.Service, "service", c.Service, "Service identifier used to select release repositories.")
	fs.StringSliceVar(&c.RepositoryKeys, "repository-keys", c.RepositoryKeys, "Repositories included in a release, overriding the ones derived from the service.")
	fs.StringVar(&c.StateFile, "state-file", c.StateFile, "File run state is appended to as KEY=VALUE lines.")
	fs.BoolVar(&c.DryRun, "dry-run", c.DryRun, "Log the transition instead of performing it.")
	fs.StringVar(&c.Server.ListenAddr, "promotion-hook-bind-address", c.Server.ListenAddr, "The address the promotion webhook server endpoint binds to.")
	fs.IntVar(&c.Server.RateLimit, "promotion-hook-rate-limit", c.Server.RateLimit, "Promotion webhook rate limit, maximum number of requests in set interval.")
	fs.DurationVar(&c.Server.RateLimitInterval, "promotion-hook-rate-limit-interval", c.Server.RateLimitInterval, "Promotion webhook rate limit interval.")
	fs.StringVar(&c.Server.HMACKeyFile, "promotion-hook-hmac-key-file", c.Server.HMACKeyFile, "File holding the key promotion webhook signatures are verified with.")
}

// Override copies the settings whose flags have been set on fs from flags into c.
func (c *Config) Override(flags *Config, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "apptrust-url":
			c.BaseURL = flags.BaseURL
		case "application":
			c.Application = flags.Application
		case "version":
			c.Version = flags.Version
		case "project":
			c.ProjectKey = flags.ProjectKey
		case "stages":
			c.Stages = flags.Stages
		case "final-stage":
			c.FinalStage = flags.FinalStage
		case "allow-release":
			c.AllowRelease = flags.AllowRelease
		case "timeout":
			c.Timeout = flags.Timeout
		case "service":
			c.Service = flags.Service
		case "repository-keys":
			c.RepositoryKeys = flags.RepositoryKeys
		case "state-file":
			c.StateFile = flags.StateFile
		case "dry-run":
			c.DryRun = flags.DryRun
		case "promotion-hook-bind-address":
			c.Server.ListenAddr = flags.Server.ListenAddr
		case "promotion-hook-rate-limit":
			c.Server.RateLimit = flags.Server.RateLimit
		case "promotion-hook-rate-limit-interval":
			c.Server.RateLimitInterval = flags.Server.RateLimitInterval
		case "promotion-hook-hmac-key-file":
			c.Server.HMACKeyFile = flags.Server.HMACKeyFile
		}
	})
	c.NormalizeStages()
}

// NormalizeStages brings the stage list and the final stage into display form, however they were configured.
func (c *Config) NormalizeStages() {
	codec := stages.NewCodec(c.ProjectKey)
	c.Stages = codec.NormalizeList(c.Stages)
	c.FinalStage = codec.Normalize(c.FinalStage)
}

type stageListValue struct {
	list *v1alpha1.StageList
}

var _ pflag.Value = &stageListValue{}

func (v *stageListValue) String() string {
	if v.list == nil {
		return ""
	}
	names := make([]string, len(*v.list))
	for i, s := range *v.list {
		names[i] = string(s)
	}
	return strings.Join(names, ",")
}

func (v *stageListValue) Set(s string) error {
	*v.list = v1alpha1.ParseStageList(s)
	return nil
}

func (v *stageListValue) Type() string {
	return "stages"
}
