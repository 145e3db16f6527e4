package cmd

import (
	"encoding/binary"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Summarises the header and both indexes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, done, err := openIndex(args[0])
		if err != nil {
			return err
		}
		defer done()
		h := r.Header
		format := "bigbed"
		if h.IsBigWig() {
			format = "bigwig"
		}
		order := "little endian"
		if r.ByteOrder() == binary.BigEndian {
			order = "big endian"
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "format\t%s\n", format)
		fmt.Fprintf(out, "byte order\t%s\n", order)
		fmt.Fprintf(out, "version\t%d\n", h.Version)
		fmt.Fprintf(out, "compressed\t%v\n", h.Compressed())
		fmt.Fprintf(out, "chromosomes\t%d\n", r.Chroms.Len())
		fmt.Fprintf(out, "name tree\tblock size %d, key size %d, height %d\n",
			r.Chroms.BlockSize(), r.Chroms.KeySize(), r.Chroms.Height())
		fmt.Fprintf(out, "range tree\t%d records, block size %d, items per slot %d, height %d\n",
			r.Index.Len(), r.Index.BlockSize(), r.Index.ItemsPerSlot(), r.Index.Height())
		fmt.Fprintf(out, "bounds\t%s\n", r.Index.Bounds())
		for i, z := range h.ZoomHeaders {
			fmt.Fprintf(out, "zoom %d\treduction %d, %d records\n", i, z.ReductionLevel, r.IndexZoom[i].Len())
		}
		return nil
	},
}
