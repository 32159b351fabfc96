package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bok/internal/dissect"
)

// ConfigFile is the name of the workspace configuration file.
const ConfigFile = "bok.yaml"

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the workspace configuration stored in bok.yaml.
type Config struct {
	Book  BookConfig        `yaml:"book"`
	LLM   LLMConfig         `yaml:"llm"`
	App   ApplicationConfig `yaml:"app"`
	Index IndexConfig       `yaml:"index"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.App.Validate(); err != nil {
		return err
	}
	return c.Index.Validate()
}

// BookConfig describes the book itself.
type BookConfig struct {
	Title        string `yaml:"title"`
	Author       string `yaml:"author"`
	StartingNode string `yaml:"starting_node,omitempty"`
}

// LLMConfig selects and configures the dissection provider.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Port     int    `yaml:"port"`
}

// Validate validates the LLM configuration.
func (c *LLMConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required,
			validation.In(string(dissect.KindLocal), string(dissect.KindDummy), string(dissect.KindOllama))),
		validation.Field(&c.Model, validation.When(c.Provider == string(dissect.KindOllama), validation.Required)),
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
	)
}

// Settings converts the configuration to provider settings.
func (c *LLMConfig) Settings() dissect.Settings {
	return dissect.Settings{
		Provider: c.Provider,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		Port:     c.Port,
	}
}

// ApplicationConfig holds serve-mode configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	Auth     AuthConfig `yaml:"auth"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token,omitempty"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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

// IndexConfig holds the search index location, relative to the workspace
// root unless absolute.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Book: BookConfig{
			Title:  "My New Book",
			Author: "Unknown Author",
		},
		LLM: LLMConfig{
			Provider: string(dissect.KindOllama),
			Model:    "qwen3:14b",
			BaseURL:  "http://localhost",
			Port:     11434,
		},
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Auth: AuthConfig{
				Mode: AuthModeDisabled,
			},
		},
		Index: IndexConfig{
			Path: ".bok/index.db",
		},
	}
}
