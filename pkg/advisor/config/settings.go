package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/internalerr"
)

// Settings configures the advisor service.
type Settings struct {
	Addr           string        `yaml:"addr"`
	RulesPath      string        `yaml:"rules"`
	CategoriesPath string        `yaml:"categories"`
	TerminalMarker string        `yaml:"terminal_marker"`
	StoreDriver    string        `yaml:"store"` // memory, sqlite or postgres
	StoreDSN       string        `yaml:"dsn"`
	MaxIterations  int           `yaml:"max_iterations"`
	StrictAnswers  bool          `yaml:"strict_answers"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	MaxConns       int           `yaml:"max_conns"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// MinSessionTTL is the shortest accepted idle timeout for sessions.
const MinSessionTTL = time.Second

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Addr:           ":8000",
		StoreDriver:    "memory",
		MaxIterations:  100,
		SessionTTL:     30 * time.Minute,
		MaxConns:       256,
		AllowedOrigins: []string{"*"},
	}
}

// LoadSettings starts from DefaultSettings, applies the YAML file at path
// (when path is non-empty), loads envFile into the environment when it exists
// and finally applies VISA_* environment overrides.
func LoadSettings(path, envFile string) (Settings, error) {
	s := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("read settings: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parse settings: %w: %v", internalerr.ErrInvalidConfig, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return s, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := s.applyEnv(); err != nil {
		return s, err
	}
	return s, s.Validate()
}

func (s *Settings) applyEnv() error {
	str := map[string]*string{
		"VISA_ADDR":            &s.Addr,
		"VISA_RULES":           &s.RulesPath,
		"VISA_CATEGORIES":      &s.CategoriesPath,
		"VISA_TERMINAL_MARKER": &s.TerminalMarker,
		"VISA_STORE":           &s.StoreDriver,
		"VISA_DSN":             &s.StoreDSN,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("VISA_MAX_ITERATIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VISA_MAX_ITERATIONS: %w", internalerr.ErrInvalidConfig)
		}
		s.MaxIterations = n
	}
	if v, ok := os.LookupEnv("VISA_MAX_CONNS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VISA_MAX_CONNS: %w", internalerr.ErrInvalidConfig)
		}
		s.MaxConns = n
	}
	if v, ok := os.LookupEnv("VISA_STRICT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("VISA_STRICT: %w", internalerr.ErrInvalidConfig)
		}
		s.StrictAnswers = b
	}
	if v, ok := os.LookupEnv("VISA_SESSION_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("VISA_SESSION_TTL: %w", internalerr.ErrInvalidConfig)
		}
		s.SessionTTL = d
	}
	if v, ok := os.LookupEnv("VISA_ALLOWED_ORIGINS"); ok {
		s.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				s.AllowedOrigins = append(s.AllowedOrigins, o)
			}
		}
	}
	return nil
}

// Validate checks value ranges and the store driver.
func (s Settings) Validate() error {
	switch s.StoreDriver {
	case "memory":
	case "sqlite", "postgres":
		if s.StoreDSN == "" {
			return fmt.Errorf("store %s needs a dsn: %w", s.StoreDriver, internalerr.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("unknown store %q: %w", s.StoreDriver, internalerr.ErrInvalidConfig)
	}
	if s.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be positive: %w", internalerr.ErrInvalidConfig)
	}
	if s.SessionTTL < MinSessionTTL {
		return fmt.Errorf("session_ttl must be at least %s: %w", MinSessionTTL, internalerr.ErrInvalidConfig)
	}
	return nil
}

// Loader returns a rule Loader for these settings.
func (s Settings) Loader() Loader {
	return Loader{
		RulesPath:      s.RulesPath,
		CategoriesPath: s.CategoriesPath,
		TerminalMarker: s.TerminalMarker,
	}
}
