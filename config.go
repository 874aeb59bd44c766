package deskauth

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfigMissing indicates required runtime configuration is absent. A
// sign-in flow never begins without explicit configuration; there are no
// hard-coded provider defaults.
var ErrConfigMissing = errors.New("runtime configuration missing")

// Config holds the identity-provider settings a sign-in flow requires.
type Config struct {
	// AuthorizeBaseURL is the identity provider's OAuth base, for example
	// https://auth.example.com. Authorize and token endpoints are derived
	// from it.
	AuthorizeBaseURL string `yaml:"authorize_base_url"`

	// ClientID is the public OAuth client identifier. PKCE replaces the
	// client secret; none is ever configured.
	ClientID string `yaml:"client_id"`

	// Scheme is the application's custom URI scheme for deep-link
	// callbacks, e.g. "myapp" for myapp://auth/callback.
	Scheme string `yaml:"scheme"`

	// RedirectURI is the default redirect used by BeginSignIn when the
	// caller does not supply one.
	RedirectURI string `yaml:"redirect_uri"`
}

// Validate reports whether the configuration is complete enough to start a
// flow.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: no configuration loaded", ErrConfigMissing)
	}
	var missing []string
	if strings.TrimSpace(c.AuthorizeBaseURL) == "" {
		missing = append(missing, "authorize_base_url")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "client_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigMissing, strings.Join(missing, ", "))
	}
	return nil
}

// authorizeEndpoint returns the provider's authorize URL.
func (c *Config) authorizeEndpoint() string {
	return strings.TrimSuffix(c.AuthorizeBaseURL, "/") + "/oauth/authorize"
}

// TokenEndpoint returns the provider's token URL.
func (c *Config) TokenEndpoint() string {
	return strings.TrimSuffix(c.AuthorizeBaseURL, "/") + "/oauth/token"
}

// ConfigLoader loads configuration from YAML files with environment-variable
// overrides. Precedence: env vars > later files > earlier files.
type ConfigLoader struct {
	paths     []string
	readers   []io.Reader
	envPrefix string
}

// ConfigLoaderOption configures a ConfigLoader.
type ConfigLoaderOption func(*ConfigLoader)

// FileConfig adds config file paths to load. Missing files are skipped.
func FileConfig(paths ...string) ConfigLoaderOption {
	return func(l *ConfigLoader) { l.paths = append(l.paths, paths...) }
}

// ReaderConfig adds io.Readers to load config from (for testing).
func ReaderConfig(readers ...io.Reader) ConfigLoaderOption {
	return func(l *ConfigLoader) { l.readers = append(l.readers, readers...) }
}

// EnvPrefix sets the environment variable prefix for overrides, e.g.
// "MYAPP" reads MYAPP_AUTHORIZE_BASE_URL, MYAPP_CLIENT_ID, MYAPP_SCHEME and
// MYAPP_REDIRECT_URI.
func EnvPrefix(prefix string) ConfigLoaderOption {
	return func(l *ConfigLoader) { l.envPrefix = prefix }
}

// NewConfigLoader creates a loader with the given options.
func NewConfigLoader(opts ...ConfigLoaderOption) *ConfigLoader {
	l := &ConfigLoader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load merges all configured sources and validates the result.
func (l *ConfigLoader) Load() (*Config, error) {
	cfg := &Config{}

	for _, path := range l.paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	for _, r := range l.readers {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfigPaths returns the conventional config file locations for an
// application name.
func DefaultConfigPaths(appName string) []string {
	home, _ := os.UserHomeDir()
	return []string{
		fmt.Sprintf("./%s.yaml", appName),
		fmt.Sprintf("%s/.config/%s/config.yaml", home, appName),
	}
}

func (l *ConfigLoader) applyEnv(cfg *Config) {
	if l.envPrefix == "" {
		return
	}
	for env, target := range map[string]*string{
		"AUTHORIZE_BASE_URL": &cfg.AuthorizeBaseURL,
		"CLIENT_ID":          &cfg.ClientID,
		"SCHEME":             &cfg.Scheme,
		"REDIRECT_URI":       &cfg.RedirectURI,
	} {
		if v, ok := os.LookupEnv(l.envPrefix + "_" + env); ok {
			*target = v
		}
	}
}
