package main

import (
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-hotels/models"
	"github.com/spf13/cobra"
)

var (
	crawlFormdata string
	crawlOutput   string
)

func init() {
	crawlCmd.Flags().StringVarP(&crawlFormdata, "formdata", "f", "", `Search form data as a JSON object, e.g. '{"ss":"Paris"}'`)
	crawlCmd.Flags().StringVarP(&crawlOutput, "filename", "o", "", "Output file name, written under --output-dir")
	_ = crawlCmd.MarkFlagRequired("formdata")
	_ = crawlCmd.MarkFlagRequired("filename")
	rootCmd.AddCommand(crawlCmd)
}

var crawlCmd = &cobra.Command{
	Use:   "crawl -f <formdata-json> -o <filename>",
	Short: "Submits one search and writes every result's details.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		criteria, err := models.ParseCriteria(crawlFormdata)
		if err != nil {
			return fmt.Errorf("invalid formdata: %w", err)
		}
		if criteria == nil {
			return fmt.Errorf("invalid formdata: expected a JSON object")
		}

		cfg, err := loadConfig(cmd, crawlOutput)
		if err != nil {
			return err
		}

		sess, err := newSession(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		result, runErr := sess.run(cmd.Context(), criteria)
		if err := sess.close(); err != nil {
			slog.Error("closing output", slog.Any("error", err))
			if runErr == nil {
				runErr = err
			}
		}
		if runErr != nil {
			return fmt.Errorf("crawl failed: %w", runErr)
		}

		sess.printSummary([]*models.CrawlResult{result})
		return nil
	},
}
