package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/bok/internal/dissect"
	"github.com/starford/bok/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.Auth.Mode = "token"
	cfg.App.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLLMConfig_Providers(t *testing.T) {
	for _, p := range []string{"local", "dummy", "ollama"} {
		cfg := LLMConfig{Provider: p, Model: "m"}
		if err := cfg.Validate(); err != nil {
			t.Errorf("provider %q rejected: %v", p, err)
		}
	}
	bad := LLMConfig{Provider: "openai", Model: "m"}
	if err := bad.Validate(); err == nil {
		t.Error("unknown provider accepted")
	}
	noModel := LLMConfig{Provider: "ollama"}
	if err := noModel.Validate(); err == nil {
		t.Error("ollama without model accepted")
	}
	dummy := LLMConfig{Provider: "dummy"}
	if err := dummy.Validate(); err != nil {
		t.Errorf("dummy without model rejected: %v", err)
	}
}

func TestLLMConfig_Settings(t *testing.T) {
	cfg := LLMConfig{Provider: "ollama", Model: "qwen3:14b", BaseURL: "http://gpu", Port: 1234}
	s := cfg.Settings()
	if dissect.Kind(s.Provider) != dissect.KindOllama || s.Model != "qwen3:14b" || s.BaseURL != "http://gpu" || s.Port != 1234 {
		t.Errorf("settings = %+v", s)
	}
}

func TestConfigFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	in := NewDefaultConfig()
	in.Book.StartingNode = "1234"
	in.App.LogLevel = slog.LevelDebug
	if err := config.Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out := NewDefaultConfig()
	if err := config.Load(path, out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Book.StartingNode != "1234" || out.App.LogLevel != slog.LevelDebug || out.LLM.Model != "qwen3:14b" {
		t.Errorf("out = %+v", out)
	}
}

func TestPartialConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFile)
	if err := os.WriteFile(path, []byte("llm:\n  provider: dummy\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig()
	if err := config.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "dummy" || cfg.App.HTTP.Port != 8080 || cfg.Book.Title != "My New Book" {
		t.Errorf("cfg = %+v", cfg)
	}
}
