package main

import (
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-hotels/faillog"
	"github.com/aluiziolira/go-scrape-hotels/models"
	"github.com/spf13/cobra"
)

var replayOutput string

func init() {
	replayCmd.Flags().StringVarP(&replayOutput, "filename", "o", "", "Output file name, written under --output-dir")
	_ = replayCmd.MarkFlagRequired("filename")
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay -o <filename>",
	Short: "Re-runs every distinct search recorded in the fail log.",
	Long: `Re-runs every distinct search recorded in the fail log into one output.
Searches that abort again are appended to the fail log once more.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, replayOutput)
		if err != nil {
			return err
		}

		entries, err := faillog.ReadAll(cfg.FailLogPath)
		if err != nil {
			return err
		}
		distinct := faillog.Dedupe(entries)
		slog.Info("replaying fail log",
			slog.String("path", cfg.FailLogPath),
			slog.Int("entries", len(entries)),
			slog.Int("distinct", len(distinct)),
		)
		if len(distinct) == 0 {
			return nil
		}

		sess, err := newSession(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		var results []*models.CrawlResult
		failed := 0
		for _, criteria := range distinct {
			if cmd.Context().Err() != nil {
				break
			}
			result, err := sess.run(cmd.Context(), criteria)
			if err != nil {
				failed++
				slog.Error("replay run failed", slog.String("criteria", criteria.String()), slog.Any("error", err))
				continue
			}
			results = append(results, result)
		}

		if err := sess.close(); err != nil {
			return err
		}
		sess.printSummary(results)
		if failed > 0 {
			return fmt.Errorf("%d of %d replayed searches failed", failed, len(distinct))
		}
		return nil
	},
}
