package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zen-systems/nexus/pkg/pricing"
	"github.com/zen-systems/nexus/pkg/registry"
)

func pricingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Show token rates and flat unit prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.Default()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tINPUT/1K\tOUTPUT/1K")
			for _, m := range reg.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.InputRate.StringFixed(2), m.OutputRate.StringFixed(2))
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "UNIT\tTIER\tCREDITS")
			for _, f := range reg.FlatRates() {
				fmt.Fprintf(w, "%s\t%s\t%d\n", f.Unit, f.Tier, f.Credits)
			}
			fmt.Fprintf(w, "\n1 USD = %d credits\n", pricing.CreditConversionRate)
			return w.Flush()
		},
	}

	cmd.AddCommand(estimateCmd())
	return cmd
}

func estimateCmd() *cobra.Command {
	var (
		modelFlag      string
		promptFlag     int
		completionFlag int
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Price a token count for a model without calling it",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := registry.Default().Resolve(modelFlag)
			if err != nil {
				return err
			}
			usage := pricing.Compute(pricing.UsageRecord{
				PromptTokens:     promptFlag,
				CompletionTokens: completionFlag,
			}, model)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(usage)
		},
	}

	cmd.Flags().StringVarP(&modelFlag, "model", "m", "gpt-5-mini", "model id")
	cmd.Flags().IntVar(&promptFlag, "prompt-tokens", 0, "prompt token count")
	cmd.Flags().IntVar(&completionFlag, "completion-tokens", 0, "completion token count")
	return cmd
}
