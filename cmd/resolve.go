package cmd

import (
	"github.com/spf13/cobra"

	"coordnet/internal/resolver"
)

var (
	resolveNCPUs       int
	resolveRedirects   int
	resolveRetryFailed bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve_urls",
	Short: "Follow redirects for every unresolved URL in the corpus",
	Long: `Resolve every URL that has no recorded outcome yet, at most 25 per second.
Outcomes, including failures, are recorded once and never retried; use
--retry_failed to clear failure markers first.`,
	Args: cobra.NoArgs,
	RunE: run(func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if resolveRetryFailed {
			n, err := st.ClearFailedResolutions()
			if err != nil {
				return err
			}
			logger.Info().Int("cleared", n).Msg("cleared failure markers")
		}

		redirects := resolveRedirects
		if redirects <= 0 {
			redirects = cfg.MaxRedirects
		}
		fn := resolver.NewHTTPResolver(resolver.HTTPOptions{
			Timeout:      cfg.HTTPTimeout,
			MaxRedirects: redirects,
			FromHeader:   cfg.FromHeader,
		})

		workers := workerCount(resolveNCPUs)
		if workers <= 0 {
			workers = 8
		}
		return resolver.New(st, fn, workers, logger).Run(cmd.Context())
	}),
}

func init() {
	resolveCmd.Flags().IntVar(&resolveNCPUs, "n_cpus", 0, "Concurrent resolution workers (default 8)")
	resolveCmd.Flags().IntVar(&resolveRedirects, "max_redirects", 0, "Maximum redirects to follow per URL")
	resolveCmd.Flags().BoolVar(&resolveRetryFailed, "retry_failed", false, "Clear failure markers and retry failed URLs")
	rootCmd.AddCommand(resolveCmd)
}
