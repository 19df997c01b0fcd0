package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	dryRun     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nexus",
		Short: "Provider orchestration and usage metering for LLM chat, images and search",
		Long: `Nexus sends chat requests to OpenAI, Anthropic or Google through one
	normalized contract, retries transient upstream failures and prices every
	reply in credits.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ~/.nexus/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the log level")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "answer with mock adapters instead of calling providers")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(pricingCmd())
	rootCmd.AddCommand(imageCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(conversationsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
