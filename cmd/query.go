package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/program-extract/internal/model"
)

var (
	queryField  string
	queryDomain string
	queryJSON   bool
)

var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Show the learned strategy recommendation for a field on a domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "query")
		if err != nil {
			return err
		}
		defer env.Close()

		rec := env.Learning.GetOptimizedStrategy(queryField, model.DomainOf(queryDomain))
		if queryJSON {
			return writeJSON(cmd.OutOrStdout(), rec)
		}
		formatRecommendation(cmd.OutOrStdout(), rec)
		return nil
	},
}

var similarCmd = &cobra.Command{
	Use:   "similar",
	Short: "List known domains whose learned profile resembles a domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "query")
		if err != nil {
			return err
		}
		defer env.Close()

		sites := env.Learning.FindSimilarSites(model.DomainOf(queryDomain))
		if queryJSON {
			return writeJSON(cmd.OutOrStdout(), sites)
		}
		formatSimilar(cmd.OutOrStdout(), sites)
		return nil
	},
}

var warningsCmd = &cobra.Command{
	Use:   "warnings",
	Short: "Show unreliable strategies and frequent corrections for a field",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "query")
		if err != nil {
			return err
		}
		defer env.Close()

		warnings := env.Learning.GetFieldWarnings(queryField, model.DomainOf(queryDomain))
		if queryJSON {
			return writeJSON(cmd.OutOrStdout(), warnings)
		}
		formatWarnings(cmd.OutOrStdout(), warnings)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{strategyCmd, similarCmd, warningsCmd} {
		c.Flags().StringVar(&queryDomain, "domain", "", "site domain or URL")
		c.Flags().BoolVar(&queryJSON, "json", false, "print JSON")
		rootCmd.AddCommand(c)
	}
	strategyCmd.Flags().StringVar(&queryField, "field", "", "field id (required)")
	warningsCmd.Flags().StringVar(&queryField, "field", "", "field id (required)")
	_ = strategyCmd.MarkFlagRequired("field")
	_ = strategyCmd.MarkFlagRequired("domain")
	_ = similarCmd.MarkFlagRequired("domain")
	_ = warningsCmd.MarkFlagRequired("field")
}
