package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/program-extract/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "program-extract",
	Short: "Self-improving treatment-program fact extraction",
	Long:  "Extracts treatment-center program facts from web pages with a strategy cascade, filters misleading mentions, scores confidence, and learns which strategies work per site.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
