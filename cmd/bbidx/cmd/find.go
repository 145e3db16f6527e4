package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(findCmd)
}

var findCmd = &cobra.Command{
	Use:   "find <file> <chrom>",
	Short: "Looks up the id and length of a chromosome",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, done, err := openIndex(args[0])
		if err != nil {
			return err
		}
		defer done()
		leaf, err := r.Locate(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%d\n", leaf.Key, leaf.ID, leaf.ItemSize)
		return nil
	},
}
