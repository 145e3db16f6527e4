package cmd

import (
	"fmt"

	"github.com/nimezhu/bbindex/bbi"
	"github.com/spf13/cobra"
)

var binsize int

func init() {
	blocksCmd.Flags().IntVar(&binsize, "binsize", 0, "query the coarsest zoom level that fits this bin size")
	rootCmd.AddCommand(blocksCmd)
}

var blocksCmd = &cobra.Command{
	Use:   "blocks <file> <chrom[:start-end]>",
	Short: "Lists the data blocks overlapping a region",
	Long: `Lists the data blocks overlapping a region, one per line as interval,
file offset and stored size. A bare chromosome name queries all of it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		chrom, start, end, err := bbi.ParseRegion(args[1])
		if err != nil {
			return err
		}
		r, done, err := openIndex(args[0])
		if err != nil {
			return err
		}
		defer done()
		if end < 0 {
			leaf, err := r.Locate(chrom)
			if err != nil {
				return err
			}
			end = int(leaf.ItemSize)
		}

		var leaves []bbi.RangeLeaf
		if binsize > 0 {
			leaves, err = r.ZoomBlocks(cmd.Context(), binsize, chrom, start, end)
		} else {
			leaves, err = r.Blocks(cmd.Context(), chrom, start, end)
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, l := range leaves {
			fmt.Fprintf(out, "%s\t%d\t%d\n", l.Interval, l.DataOffset, l.DataSize)
		}
		return nil
	},
}
