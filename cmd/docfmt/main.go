package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/feichai0017/docformat/config"
	"github.com/feichai0017/docformat/pkg/logger"
)

var Version = "dev"

var (
	configFile string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "docfmt",
		Short:         "docfmt - batch Word document formatter",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(formatCmd())
	rootCmd.AddCommand(compareCmd())
	rootCmd.AddCommand(chatCmd())
	return rootCmd
}

// setup loads the config and a console logger; logging is silent unless -v.
func setup() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if !verbose {
		return cfg, logger.NewNop(), nil
	}
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
	)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
