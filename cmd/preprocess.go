package cmd

import (
	"github.com/spf13/cobra"

	"coordnet/internal/ingest"
)

var preprocessFormat string

var preprocessCmd = &cobra.Command{
	Use:   "preprocess [flags] FILE...",
	Short: "Load platform data into the normalized corpus",
	Long: `Load one or more input files into the corpus, deduplicating by message id.
All files in one invocation must share the same format.`,
	Args: cobra.MinimumNArgs(1),
	RunE: run(func(cmd *cobra.Command, args []string) error {
		format, err := ingest.ParseFormat(preprocessFormat)
		if err != nil {
			return usageErr(err)
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := ingest.Files(st, format, args, logger)
		if err != nil {
			return err
		}

		logger.Info().
			Int("accepted", stats.Accepted).
			Int("duplicates", stats.Duplicates).
			Int("malformed", stats.Malformed).
			Msg("preprocessing complete")
		return nil
	}),
}

func init() {
	preprocessCmd.Flags().StringVar(&preprocessFormat, "format", "csv",
		"Input file format: csv or twitter_json (v1.1 and v2 API shapes)")
	rootCmd.AddCommand(preprocessCmd)
}
