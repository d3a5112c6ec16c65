package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"coordnet/internal/join"
	"coordnet/internal/text"
)

var errInvalidWindow = errors.New("time window must be non-negative")

var (
	computeWindow        float64
	computeNCPUs         int
	computeMinEdgeWeight int
	computeSimThreshold  float64
	computeMinDocSize    int
	computeResolved      bool
)

var computeCmd = &cobra.Command{
	Use:   "compute NETWORK_TYPE",
	Short: "Materialize one coordination network table",
	Long: `Compute a coordination network over the corpus and replace its table.

Network types: co_retweet, co_tweet, co_similar_tweet, co_link, co_reply,
co_post. Two messages coordinate when they share the network's action key
within --time_window seconds of each other.`,
	Args: cobra.ExactArgs(1),
	RunE: run(func(cmd *cobra.Command, args []string) error {
		netType, err := join.ParseType(args[0])
		if err != nil {
			return usageErr(err)
		}
		if computeWindow < 0 {
			return usageErr(errInvalidWindow)
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if computeResolved {
			ok, err := st.HasResolvedURLs()
			if err != nil {
				return err
			}
			if !ok {
				return usageErr(errors.New("no resolved urls in corpus: run resolve_urls first"))
			}
		}

		jcfg := join.Config{
			Type:                netType,
			Window:              computeWindow,
			MinEdgeWeight:       computeMinEdgeWeight,
			Workers:             workerCount(computeNCPUs),
			SimilarityThreshold: computeSimThreshold,
			Scorer:              text.ScorerForMinSize(computeMinDocSize),
			Resolved:            computeResolved,
		}

		logger.Info().
			Str("network", string(netType)).
			Float64("time_window", computeWindow).
			Int("min_edge_weight", computeMinEdgeWeight).
			Msg("computing network")

		return join.New(st, logger).Compute(cmd.Context(), jcfg)
	}),
}

func init() {
	computeCmd.Flags().Float64Var(&computeWindow, "time_window", 60,
		"Maximum seconds between two events for them to count as coordinated")
	computeCmd.Flags().IntVar(&computeNCPUs, "n_cpus", 0,
		"Worker count (default: one per CPU core)")
	computeCmd.Flags().IntVar(&computeMinEdgeWeight, "min_edge_weight", 1,
		"Drop edges lighter than this from the network table")
	computeCmd.Flags().Float64Var(&computeSimThreshold, "similarity_threshold", 0.8,
		"Minimum Jaccard similarity for co_similar_tweet")
	computeCmd.Flags().IntVar(&computeMinDocSize, "min_document_size", 1,
		"Token sets smaller than this score zero similarity")
	computeCmd.Flags().BoolVar(&computeResolved, "resolved", false,
		"Join co_link on resolved URLs (requires resolve_urls first)")
	rootCmd.AddCommand(computeCmd)
}
