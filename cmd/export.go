package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"coordnet/internal/export"
)

var (
	exportFormat    string
	exportNMessages int
	exportMinWeight int
	exportSelfLoops bool
)

var exportCmd = &cobra.Command{
	Use:   "export_network OUTPATH NETNAME",
	Short: "Write a computed network to a GraphML or CSV file",
	Args:  cobra.ExactArgs(2),
	RunE: run(func(cmd *cobra.Command, args []string) error {
		outPath, netName := args[0], args[1]

		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return usageErr(err)
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		f, err := os.Create(outPath)
		if err != nil {
			return usageErr(err)
		}

		opts := export.Options{
			MinWeight:        exportMinWeight,
			NMessages:        exportNMessages,
			IncludeSelfLoops: exportSelfLoops,
		}
		if err := export.Write(f, st, netName, format, opts); err != nil {
			f.Close()
			os.Remove(outPath)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}

		logger.Info().Str("network", netName).Str("file", outPath).Msg("network exported")
		return nil
	}),
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "output_format", "graphml",
		"Output format: graphml or csv")
	exportCmd.Flags().IntVar(&exportNMessages, "n_messages", 10,
		"Recent messages to annotate each node with (graphml only)")
	exportCmd.Flags().IntVar(&exportMinWeight, "min_edge_weight", 1,
		"Drop edges lighter than this at export time")
	exportCmd.Flags().BoolVar(&exportSelfLoops, "include_self_loops", false,
		"Keep edges from a user to themselves")
	rootCmd.AddCommand(exportCmd)
}
