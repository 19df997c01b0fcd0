package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zen-systems/nexus/pkg/config"
	"github.com/zen-systems/nexus/pkg/registry"
)

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List registered models, their modes and rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return printModels(cfg, registry.Default().All())
		},
	}
}

func printModels(cfg *config.Config, models []registry.ModelDescriptor) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPROVIDER\tMODES\tINPUT/1K\tOUTPUT/1K\tSTATUS")

	for _, m := range models {
		status := "no key"
		if cfg.HasProvider(m.Provider) || dryRun {
			status = "ready"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ID, m.Provider, formatModes(m.Modes),
			m.InputRate.StringFixed(2), m.OutputRate.StringFixed(2), status)
	}

	return w.Flush()
}

func formatModes(modes []registry.Mode) string {
	parts := make([]string, len(modes))
	for i, m := range modes {
		parts[i] = string(m)
	}
	return strings.Join(parts, ",")
}
