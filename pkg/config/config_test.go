package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Extra string `yaml:"extra"`
}

func (s *sample) Validate() error {
	if s.Port < 0 {
		return errors.New("port must not be negative")
	}
	return nil
}

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_KeepsDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("BOK_TEST_NAME", "from-env")
	path := write(t, "name: ${BOK_TEST_NAME}\nport: 9000\n")

	cfg := sample{Extra: "default"}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "from-env" || cfg.Port != 9000 || cfg.Extra != "default" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_ValidationFails(t *testing.T) {
	path := write(t, "port: -1\n")
	var cfg sample
	if err := Load(path, &cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_Missing(t *testing.T) {
	var cfg sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadIfExists(t *testing.T) {
	cfg := sample{Name: "default"}
	found, err := LoadIfExists(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	if err != nil || found {
		t.Fatalf("missing file: found=%v err=%v", found, err)
	}
	if cfg.Name != "default" {
		t.Errorf("defaults changed: %+v", cfg)
	}

	found, err = LoadIfExists(write(t, "name: set\n"), &cfg)
	if err != nil || !found || cfg.Name != "set" {
		t.Errorf("existing file: found=%v err=%v cfg=%+v", found, err, cfg)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	in := sample{Name: "book", Port: 8080, Extra: "x"}
	if err := Save(path, &in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var out sample
	if err := Load(path, &out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out != in {
		t.Errorf("out = %+v, want %+v", out, in)
	}
}
