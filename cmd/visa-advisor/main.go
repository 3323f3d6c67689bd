package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/config"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store/memstore"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store/postgres"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store/sqlite"
)

var (
	// Global flags
	verbose    bool
	configPath string
	envFile    string
	rulesPath  string
	storeName  string
	storeDSN   string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "visa-advisor",
	Short: "Rule-based US visa eligibility advisor",
	Long: `visa-advisor asks yes/no questions about an applicant and derives which
visa categories they may apply for, using a forward-chaining rule engine.

Rules are read from a YAML or JSON rule file (--rules) or from the configured
store. Settings come from --config, a .env file and VISA_* variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&configPath, "config", "", "settings YAML file")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before VISA_* variables")
	pf.StringVar(&rulesPath, "rules", "", "rule file (YAML or JSON); overrides VISA_RULES")
	pf.StringVar(&storeName, "store", "", "store driver: memory, sqlite or postgres")
	pf.StringVar(&storeDSN, "dsn", "", "store DSN (sqlite path or postgres URL)")

	rootCmd.AddCommand(serveCmd, askCmd, rulesCmd, factsCmd, importCmd, reportsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadSettings resolves settings and applies command-line overrides.
func loadSettings() (config.Settings, error) {
	s, err := config.LoadSettings(configPath, envFile)
	if err != nil {
		return s, err
	}
	if rulesPath != "" {
		s.RulesPath = rulesPath
	}
	if storeName != "" {
		s.StoreDriver = storeName
	}
	if storeDSN != "" {
		s.StoreDSN = storeDSN
	}
	return s, s.Validate()
}

func openStore(ctx context.Context, s config.Settings) (store.Store, error) {
	switch s.StoreDriver {
	case "sqlite":
		return sqlite.OpenSQLite(ctx, s.StoreDSN)
	case "postgres":
		return postgres.Open(ctx, s.StoreDSN)
	default:
		return memstore.New(), nil
	}
}

// openAdvisor opens the store and builds an Advisor. When a rule file is
// configured it replaces the stored catalogue.
func openAdvisor(ctx context.Context, s config.Settings) (*advisor.Advisor, error) {
	st, err := openStore(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", s.StoreDriver, err)
	}

	opts := advisor.Options{
		Store:         st,
		Logger:        logger,
		MaxIterations: s.MaxIterations,
		StrictAnswers: s.StrictAnswers,
	}
	if s.RulesPath != "" {
		loader := s.Loader()
		comp, err := loader.Load()
		if err != nil {
			st.Close()
			return nil, err
		}
		opts.Rules = comp.Rules
	}

	adv, err := advisor.New(ctx, opts)
	if err != nil {
		st.Close()
		return nil, err
	}
	return adv, nil
}
