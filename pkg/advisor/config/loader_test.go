package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
)

func TestLoaderAllEmpty(t *testing.T) {
	loader := Loader{}

	comp, err := loader.Load()
	if err != nil {
		t.Fatalf("Empty loader should succeed: %v", err)
	}

	if comp.Categories == nil || len(comp.Categories.Categories) != 5 {
		t.Error("Should fall back to the default category table")
	}

	if len(comp.Rules) != 0 {
		t.Errorf("Rules should be empty, got %d", len(comp.Rules))
	}
}

func TestLoaderNonExistentRules(t *testing.T) {
	loader := Loader{RulesPath: filepath.Join(t.TempDir(), "missing.yaml")}

	if _, err := loader.Load(); err == nil {
		t.Error("Should fail with non-existent rules file")
	}
}

func TestLoaderCustomCategoriesAndDisabledMarker(t *testing.T) {
	tmpDir := t.TempDir()
	catPath := filepath.Join(tmpDir, "categories.yaml")
	rulesPath := filepath.Join(tmpDir, "rules.yaml")

	if err := os.WriteFile(catPath, []byte("categories:\n  - name: O-1\n    keywords: [extraordinary]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rules := `rules:
  - id: o1
    conditions: [{fact_name: extraordinaryAbility}]
    conclusion: O-1の申請ができます
`
	if err := os.WriteFile(rulesPath, []byte(rules), 0644); err != nil {
		t.Fatal(err)
	}

	comp, err := (&Loader{RulesPath: rulesPath, CategoriesPath: catPath, TerminalMarker: "-"}).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if comp.Rules[0].Category != "O-1" {
		t.Errorf("Expected O-1, got %q", comp.Rules[0].Category)
	}
	if comp.Rules[0].Terminal {
		t.Error("Marker fallback should be disabled")
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings("", "")
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.Addr != ":8000" || s.StoreDriver != "memory" || s.MaxIterations != 100 {
		t.Errorf("Unexpected defaults: %+v", s)
	}
}

func TestLoadSettingsFileAndEnv(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "advisor.yaml")
	content := `addr: ":9000"
store: sqlite
dsn: /tmp/advisor.db
session_ttl: 5m
strict_answers: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(tmpDir, ".env")
	if err := os.WriteFile(envFile, []byte("VISA_STRICT=true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VISA_STRICT", "")
	os.Unsetenv("VISA_STRICT")
	t.Setenv("VISA_MAX_ITERATIONS", "7")
	t.Setenv("VISA_ALLOWED_ORIGINS", "http://a.example, http://b.example")

	s, err := LoadSettings(path, envFile)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.Addr != ":9000" || s.StoreDriver != "sqlite" || s.SessionTTL != 5*time.Minute {
		t.Errorf("File values not applied: %+v", s)
	}
	if !s.StrictAnswers {
		t.Error("Expected VISA_STRICT from .env")
	}
	if s.MaxIterations != 7 {
		t.Errorf("Expected env override 7, got %d", s.MaxIterations)
	}
	if len(s.AllowedOrigins) != 2 || s.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("Unexpected origins: %v", s.AllowedOrigins)
	}
}

func TestLoadSettingsRejectsBadStore(t *testing.T) {
	t.Setenv("VISA_STORE", "postgres")
	t.Setenv("VISA_DSN", "")
	if _, err := LoadSettings("", ""); err == nil {
		t.Error("postgres without dsn should fail")
	}
}

func TestLoadSettingsRejectsTinySessionTTL(t *testing.T) {
	t.Setenv("VISA_SESSION_TTL", "1ns")
	if _, err := LoadSettings("", ""); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("1ns session ttl should be rejected, got %v", err)
	}

	t.Setenv("VISA_SESSION_TTL", "1s")
	if _, err := LoadSettings("", ""); err != nil {
		t.Errorf("1s session ttl should be accepted: %v", err)
	}
}
