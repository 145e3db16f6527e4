package cmd

import (
	"fmt"

	"github.com/nimezhu/bbindex/bbi"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chromsCmd)
}

var chromsCmd = &cobra.Command{
	Use:   "chroms <file>",
	Short: "Lists the chromosomes in name order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, done, err := openIndex(args[0])
		if err != nil {
			return err
		}
		defer done()
		out := cmd.OutOrStdout()
		return r.Chroms.Traverse(func(l bbi.NameLeaf) error {
			_, err := fmt.Fprintf(out, "%s\t%d\t%d\n", l.Key, l.ID, l.ItemSize)
			return err
		})
	},
}
