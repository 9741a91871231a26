// Package config provides centralized configuration for the persona-e2e suite.
// It loads configuration from environment variables, overlays CLI flag values,
// validates the result, and resolves the target environment's URL set.
//
// CLI flags win over environment variables; environment variables win over
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/persona-e2e/internal/ratelimit"
)

const (
	defaultAWSRegion       = "auto"
	defaultRestmailURL     = "https://restmail.net"
	defaultTimeout         = 20 * time.Second
	defaultRestmailTimeout = 60 * time.Second
	defaultPollInterval    = 250 * time.Millisecond
	defaultMailInterval    = 500 * time.Millisecond
)

// Browsers lists the browser kinds the suite can drive.
var Browsers = []string{"chromium", "firefox", "webkit"}

// Config holds all suite configuration.
type Config struct {
	// Target
	EnvName     string
	Env         Environment
	Browser     string
	AllBrowsers bool // run every supported browser against EnvName
	Everywhere  bool // every browser against every named environment

	// Selection and scheduling
	Tests    string // glob over scenario names
	Parallel int
	Headed   bool

	// Waits
	Timeout      time.Duration // default bound for Condition Waiter calls
	PollInterval time.Duration // Condition Waiter polling interval

	// Restmail
	RestmailURL     string
	RestmailTimeout time.Duration
	MailRateLimit   ratelimit.Config

	// Credentials file for health checks (YAML)
	CredentialsPath string

	// Results and artifacts
	ResultsPath     string
	ArtifactsDir    string
	ArtifactsBucket string

	// S3 artifacts (AWS_ env vars)
	AWSEndpointS3      string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Resend (probe-mail)
	ResendAPIKey    string
	ResendFromEmail string
}

// Flags carries CLI flag values. Zero values leave the environment/default in place.
type Flags struct {
	Env         string
	Browser     string
	AllBrowsers bool
	Everywhere  bool
	Credentials string
	Tests       string
	Parallel    int
	Timeout     time.Duration
	Headed      bool
	Results     string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// LoadConfig loads configuration from environment variables and CLI flag values.
func LoadConfig(flags Flags) (*Config, error) {
	cfg := &Config{}

	cfg.EnvName = getEnvOrDefault("PERSONA_ENV", "prod")
	cfg.Browser = getEnvOrDefault("PERSONA_BROWSER", "chromium")
	cfg.CredentialsPath = strings.TrimSpace(os.Getenv("PERSONA_CREDENTIALS"))
	cfg.Tests = getEnvOrDefault("PERSONA_TESTS", "*")
	cfg.Parallel = parseIntOrDefault("PERSONA_PARALLEL", 1)
	cfg.Headed = parseBoolOrDefault("PERSONA_HEADED", false)
	cfg.Timeout = parseDurationOrDefault("PERSONA_TIMEOUT", defaultTimeout)
	cfg.PollInterval = parseDurationOrDefault("PERSONA_POLL_INTERVAL", defaultPollInterval)

	cfg.RestmailURL = strings.TrimRight(getEnvOrDefault("RESTMAIL_URL", defaultRestmailURL), "/")
	cfg.RestmailTimeout = parseDurationOrDefault("RESTMAIL_TIMEOUT", defaultRestmailTimeout)
	cfg.MailRateLimit = ratelimit.Config{
		Interval:        parseDurationOrDefault("RESTMAIL_POLL_INTERVAL", defaultMailInterval),
		Burst:           parseIntOrDefault("RESTMAIL_POLL_BURST", 1),
		CleanupInterval: parseDurationOrDefault("RESTMAIL_LIMITER_CLEANUP", 10*time.Minute),
	}

	cfg.ResultsPath = getEnvOrDefault("RESULTS_DB", filepath.Join(os.TempDir(), "persona-e2e", "results.db"))
	cfg.ArtifactsDir = getEnvOrDefault("ARTIFACTS_DIR", filepath.Join(os.TempDir(), "persona-e2e", "artifacts"))
	cfg.ArtifactsBucket = strings.TrimSpace(os.Getenv("ARTIFACTS_BUCKET"))

	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultAWSRegion)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))

	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.ResendFromEmail = getEnvOrDefault("RESEND_FROM_EMAIL", "persona-e2e@restmail.net")

	cfg.applyFlags(flags)
	cfg.Env = LookupEnvironment(cfg.EnvName)
	if os.Getenv("RESTMAIL_URL") != "" {
		cfg.Env.Restmail = cfg.RestmailURL
	} else {
		cfg.RestmailURL = cfg.Env.Restmail
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFlags(f Flags) {
	if v := strings.TrimSpace(f.Env); v != "" {
		c.EnvName = v
	}
	if v := strings.TrimSpace(f.Browser); v != "" {
		c.Browser = v
	}
	if f.AllBrowsers {
		c.AllBrowsers = true
	}
	if f.Everywhere {
		c.Everywhere = true
		c.AllBrowsers = true
	}
	if v := strings.TrimSpace(f.Credentials); v != "" {
		c.CredentialsPath = v
	}
	if v := strings.TrimSpace(f.Tests); v != "" {
		c.Tests = v
	}
	if f.Parallel > 0 {
		c.Parallel = f.Parallel
	}
	if f.Timeout > 0 {
		c.Timeout = f.Timeout
	}
	if f.Headed {
		c.Headed = true
	}
	if v := strings.TrimSpace(f.Results); v != "" {
		c.ResultsPath = v
	}
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.EnvName) == "" {
		errs = append(errs, "PERSONA_ENV must not be empty")
	}
	if !c.AllBrowsers && !IsSupportedBrowser(c.Browser) {
		errs = append(errs, fmt.Sprintf("browser %q is not supported (want one of %s)", c.Browser, strings.Join(Browsers, ", ")))
	}
	if c.Everywhere && c.IsFake() {
		errs = append(errs, "--everywhere cannot be combined with the fake environment")
	}
	if c.Parallel <= 0 {
		errs = append(errs, "PERSONA_PARALLEL must be positive")
	}
	if c.Timeout <= 0 {
		errs = append(errs, "PERSONA_TIMEOUT must be positive")
	}
	if c.PollInterval <= 0 || c.PollInterval >= time.Second {
		errs = append(errs, "PERSONA_POLL_INTERVAL must be positive and below one second")
	}
	if c.RestmailTimeout <= 0 {
		errs = append(errs, "RESTMAIL_TIMEOUT must be positive")
	}
	if c.MailRateLimit.Interval <= 0 {
		errs = append(errs, "RESTMAIL_POLL_INTERVAL must be positive")
	}
	if c.MailRateLimit.Burst <= 0 {
		errs = append(errs, "RESTMAIL_POLL_BURST must be positive")
	}
	if !c.IsFake() && !strings.HasPrefix(c.RestmailURL, "http://") && !strings.HasPrefix(c.RestmailURL, "https://") {
		errs = append(errs, fmt.Sprintf("RESTMAIL_URL %q must be an http(s) URL", c.RestmailURL))
	}
	if c.ArtifactsBucket != "" {
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required when ARTIFACTS_BUCKET is set")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required when ARTIFACTS_BUCKET is set")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// IsFake reports whether the run targets the in-process fake.
func (c *Config) IsFake() bool {
	return strings.EqualFold(strings.TrimSpace(c.EnvName), FakeEnvName)
}

// UseFake points the run at a fake listening on base.
func (c *Config) UseFake(base string) {
	c.Env = SingleOriginEnvironment(FakeEnvName, base)
	c.RestmailURL = c.Env.Restmail
}

// Targets returns the (environment, browser) pairs the run covers.
func (c *Config) Targets() []Target {
	browsers := []string{c.Browser}
	if c.AllBrowsers {
		browsers = Browsers
	}
	envs := []Environment{c.Env}
	if c.Everywhere {
		envs = NamedEnvironments()
		for i := range envs {
			envs[i].Restmail = c.RestmailURL
		}
	}
	var out []Target
	for _, env := range envs {
		for _, b := range browsers {
			out = append(out, Target{Env: env, Browser: b})
		}
	}
	return out
}

// Target is one environment/browser combination.
type Target struct {
	Env     Environment
	Browser string
}

// IsSupportedBrowser reports whether name is a known browser kind.
func IsSupportedBrowser(name string) bool {
	for _, b := range Browsers {
		if b == name {
			return true
		}
	}
	return false
}

// PrintStartupSummary prints a human-readable summary of the configuration to stderr.
func (c *Config) PrintStartupSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "persona-e2e starting...")
	if c.Everywhere {
		fmt.Fprintln(os.Stderr, "  Env:      everywhere (dev, stage, prod)")
	} else {
		fmt.Fprintf(os.Stderr, "  Env:      %s (%s)\n", c.Env.Name, c.Env.Persona)
	}
	if c.AllBrowsers {
		fmt.Fprintf(os.Stderr, "  Browsers: %s\n", strings.Join(Browsers, ", "))
	} else {
		fmt.Fprintf(os.Stderr, "  Browser:  %s\n", c.Browser)
	}
	fmt.Fprintf(os.Stderr, "  Tests:    %s (parallel %d)\n", c.Tests, c.Parallel)
	fmt.Fprintf(os.Stderr, "  Restmail: %s\n", c.RestmailURL)
	if c.ArtifactsBucket != "" {
		fmt.Fprintf(os.Stderr, "  Artifacts: s3://%s\n", c.ArtifactsBucket)
	} else {
		fmt.Fprintf(os.Stderr, "  Artifacts: %s\n", c.ArtifactsDir)
	}
	fmt.Fprintln(os.Stderr, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// MustLoadConfig loads configuration and panics if validation fails.
func MustLoadConfig(flags Flags) *Config {
	cfg, err := LoadConfig(flags)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
