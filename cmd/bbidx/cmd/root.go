package cmd

import (
	"context"
	"os"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/nimezhu/bbindex/bbi"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	log      logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bbidx",
	Short: "Inspect the indexes of bigwig and bigbed files",
	Long: `bbidx reads the chromosome name tree and the range tree of a bigwig or
bigbed file and resolves names and regions to data blocks.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.New(logLevel)
		log = logger.Sugar.WithServiceName("bbidx")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "log level: DEBUG, INFO, WARN, ERROR or NOOP")
}

func Execute() {
	defer logger.OnExit()
	cobra.CheckErr(rootCmd.ExecuteContext(context.Background()))
}

// openIndex opens a local file for reading through its indexes. The file is
// closed when the returned function is called.
func openIndex(path string) (*bbi.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	cfg := bbi.DefaultConfig()
	cfg.Log = log
	r, err := bbi.Open(f, cfg)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, func() { f.Close() }, nil
}
