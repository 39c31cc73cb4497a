package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clipstash/clipstash/internal/app"
	"github.com/clipstash/clipstash/internal/config"
	"github.com/clipstash/clipstash/internal/output"
	"github.com/clipstash/clipstash/utils"
)

var (
	cfgPath string
	debug   bool
	cfg     *config.Config
)

var StashVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "clipstash",
	Short:   "Clipstash keeps a resumable offline cache of your clip catalog",
	Version: StashVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		utils.InitLogger(debug)
		var err error
		cfg, err = config.Load(cfgPath)
		return err
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "clipstash.yaml", "Path to config file (env-only when missing)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func mustApp() *app.App {
	a, err := app.New(cfg)
	if err != nil {
		output.PrintError("Failed to initialize: " + err.Error())
		os.Exit(1)
	}
	return a
}

func accessCode(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Catalog.AccessCode
}
