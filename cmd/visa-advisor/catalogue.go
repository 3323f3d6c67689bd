package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/config"
	"github.com/atsushibanbanji-collab/visa-expert-system-v3/pkg/advisor/store"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the rule catalogue as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		adv, err := openAdvisor(cmd.Context(), s)
		if err != nil {
			return err
		}
		defer adv.Close()

		data, err := config.FromRules(adv.Rules()).Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var factsCmd = &cobra.Command{
	Use:   "facts [visa-type]",
	Short: "List the basic and derivable facts of a category",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		adv, err := openAdvisor(cmd.Context(), s)
		if err != nil {
			return err
		}
		defer adv.Close()

		category := ""
		if len(args) == 1 {
			category = args[0]
		}
		facts, err := adv.Facts(category)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "basic:")
		for _, f := range facts.Basic {
			fmt.Fprintf(out, "  %s\n", f)
		}
		fmt.Fprintln(out, "derivable:")
		for _, f := range facts.Derivable {
			fmt.Fprintf(out, "  %s\n", f)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <rule-file>",
	Short: "Replace the stored rule catalogue with a rule file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		if s.StoreDriver == "memory" {
			return fmt.Errorf("import needs a persistent store (--store sqlite|postgres)")
		}
		s.RulesPath = args[0]
		adv, err := openAdvisor(cmd.Context(), s)
		if err != nil {
			return err
		}
		defer adv.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "imported %d rules (%v)\n", len(adv.Rules()), adv.Categories())
		return nil
	},
}

var reportsLimit int

var reportsCmd = &cobra.Command{
	Use:   "reports [report-id]",
	Short: "Show stored consultation reports as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		adv, err := openAdvisor(cmd.Context(), s)
		if err != nil {
			return err
		}
		defer adv.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if len(args) == 1 {
			rep, err := adv.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return enc.Encode(rep)
		}
		reports, err := adv.Reports(cmd.Context(), reportsLimit)
		if err != nil {
			return err
		}
		return enc.Encode(reports)
	},
}

func init() {
	reportsCmd.Flags().IntVar(&reportsLimit, "limit", store.DefaultListLimit, "maximum number of reports")
}
