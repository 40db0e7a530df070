package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	feedbackKey     string
	feedbackCorrect bool
	feedbackWrong   bool
	feedbackValues  []string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Mark an extracted value correct or wrong",
	Long:  "Applies a reviewer verdict to a history entry. A wrong verdict with --value records a correction and teaches the pattern engine the corrected value.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if feedbackCorrect == feedbackWrong {
			return eris.New("exactly one of --correct or --wrong is required")
		}
		if feedbackCorrect && len(feedbackValues) > 0 {
			return eris.New("--value only applies with --wrong")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx, "feedback")
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Learning.ProvideFeedback(ctx, feedbackKey, feedbackCorrect, correctedValue(feedbackValues))
		if err != nil {
			return eris.Wrap(err, "feedback")
		}

		zap.L().Info("feedback recorded",
			zap.String("key", feedbackKey),
			zap.Bool("correct", feedbackCorrect),
		)
		if rec == nil {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "recorded"})
		}
		return writeJSON(cmd.OutOrStdout(), map[string]any{"status": "recorded", "correction": rec})
	},
}

// correctedValue maps --value flags to a feedback value: none is nil, one
// is a string, several are a list.
func correctedValue(values []string) any {
	switch len(values) {
	case 0:
		return nil
	case 1:
		return values[0]
	default:
		out := make([]any, len(values))
		for i, v := range values {
			out[i] = v
		}
		return out
	}
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackKey, "key", "", "history key from an extraction (required)")
	feedbackCmd.Flags().BoolVar(&feedbackCorrect, "correct", false, "the value was correct")
	feedbackCmd.Flags().BoolVar(&feedbackWrong, "wrong", false, "the value was wrong")
	feedbackCmd.Flags().StringArrayVar(&feedbackValues, "value", nil, "corrected value (repeat for list fields)")
	_ = feedbackCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(feedbackCmd)
}
