package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pagegraph/internal/graph"
	"github.com/starford/pagegraph/internal/graphservice"
	"github.com/starford/pagegraph/internal/parser"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Graph    GraphConfig       `yaml:"graph"`
	PageRank PageRankConfig    `yaml:"pagerank"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Graph.Validate(); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	if err := c.PageRank.Validate(); err != nil {
		return fmt.Errorf("pagerank: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// GraphConfig describes the page directory and how it is parsed.
type GraphConfig struct {
	Root string `yaml:"root"`
	// TabWidth is the number of columns a tab counts for in indentation.
	TabWidth int `yaml:"tab_width"`
	// PublishOnlyPublic makes pages private unless they set public: true.
	PublishOnlyPublic bool `yaml:"publish_only_public"`
	// Workers bounds parallel parsing; 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// Validate validates the graph configuration.
func (c *GraphConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.TabWidth, validation.Min(1), validation.Max(16)),
		validation.Field(&c.Workers, validation.Min(0)),
	)
}

// PageRankConfig tunes the PageRank computation.
type PageRankConfig struct {
	Damping float64 `yaml:"damping"`
	Epsilon float64 `yaml:"epsilon"`
	MaxIter int     `yaml:"max_iter"`
}

// Validate validates the PageRank configuration.
func (c *PageRankConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Damping, validation.Required, validation.Min(0.0).Exclusive(), validation.Max(1.0).Exclusive()),
		validation.Field(&c.Epsilon, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&c.MaxIter, validation.Required, validation.Min(1)),
	)
}

// ServiceOptions translates the graph and PageRank sections into service
// options.
func (c *Config) ServiceOptions() graphservice.Options {
	return graphservice.Options{
		Parser: parser.Options{
			TabWidth:   c.Graph.TabWidth,
			PublicOnly: c.Graph.PublishOnlyPublic,
		},
		Workers: c.Graph.Workers,
		Rank: graph.RankOptions{
			Damping: c.PageRank.Damping,
			Epsilon: c.PageRank.Epsilon,
			MaxIter: c.PageRank.MaxIter,
		},
	}
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Graph: GraphConfig{
			Root:     "./graph",
			TabWidth: 4,
		},
		PageRank: PageRankConfig{
			Damping: 0.85,
			Epsilon: 1e-6,
			MaxIter: 100,
		},
		SQLite: SQLiteConfig{
			Path: "./pagegraph.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
