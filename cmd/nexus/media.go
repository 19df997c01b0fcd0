package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/media"
	"github.com/zen-systems/nexus/pkg/pricing"
)

func imageCmd() *cobra.Command {
	var (
		sizeFlag    string
		qualityFlag string
		userFlag    string
	)

	cmd := &cobra.Command{
		Use:   "image [prompt]",
		Short: "Generate an image with dall-e-3",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			req := media.ImageRequest{Prompt: args[0], Size: sizeFlag, Quality: qualityFlag}
			if dryRun {
				svc, err := media.NewImageService("dry-run", a.registry, a.logger)
				if err != nil {
					return err
				}
				usage, err := svc.Cost(req)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"dry_run": true, "usage": usage})
			}

			if a.cfg.OpenAIAPIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is required for image generation")
			}
			svc, err := media.NewImageService(a.cfg.OpenAIAPIKey, a.registry, a.logger.Named("image"))
			if err != nil {
				return err
			}
			if err := a.ensureBalance(ctx, userFlag, req, svc); err != nil {
				return err
			}

			res, err := svc.Generate(ctx, req)
			if err != nil {
				return err
			}
			a.debit(ctx, userFlag, res.Usage, "image:"+req.Normalize().Quality)
			return printJSON(res)
		},
	}

	cmd.Flags().StringVar(&sizeFlag, "size", media.SizeSquare, "1024x1024, 1792x1024 or 1024x1792")
	cmd.Flags().StringVar(&qualityFlag, "quality", media.QualityStandard, "standard or hd")
	cmd.Flags().StringVar(&userFlag, "user", "", "owner id to bill")
	return cmd
}

func searchCmd() *cobra.Command {
	var (
		numFlag  int
		userFlag string
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the web through SerpAPI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			key := a.cfg.SerpAPIKey
			if dryRun {
				key = "dry-run"
			}
			if key == "" {
				return fmt.Errorf("SERPAPI_API_KEY is required for web search")
			}
			svc, err := media.NewSearchService(key, a.registry, a.logger.Named("search"))
			if err != nil {
				return err
			}
			if dryRun {
				usage, err := svc.Cost()
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"dry_run": true, "usage": usage})
			}

			if a.credits != nil && userFlag != "" {
				usage, err := svc.Cost()
				if err != nil {
					return err
				}
				if _, err := a.credits.EnsureMinimumBalance(ctx, userFlag, usage.CostCredits); err != nil {
					return err
				}
			}

			res, err := svc.Search(ctx, args[0], numFlag)
			if err != nil {
				return err
			}
			a.debit(ctx, userFlag, res.Usage, "search")
			return printJSON(res)
		},
	}

	cmd.Flags().IntVarP(&numFlag, "num", "n", media.MaxSearchResults, "number of results (max 10)")
	cmd.Flags().StringVar(&userFlag, "user", "", "owner id to bill")
	return cmd
}

func (a *app) ensureBalance(ctx context.Context, userID string, req media.ImageRequest, svc *media.ImageService) error {
	if a.credits == nil || userID == "" {
		return nil
	}
	usage, err := svc.Cost(req)
	if err != nil {
		return err
	}
	_, err = a.credits.EnsureMinimumBalance(ctx, userID, usage.CostCredits)
	return err
}

// debit charges a flat-priced unit. Failures are logged; the result has
// already been produced.
func (a *app) debit(ctx context.Context, userID string, usage pricing.UsageRecord, reason string) {
	if a.credits == nil || userID == "" {
		return
	}
	if err := a.credits.Debit(ctx, userID, usage.CostCredits, reason); err != nil {
		a.logger.Warn("debit failed",
			zap.String("user_id", userID),
			zap.Int64("cost_credits", usage.CostCredits),
			zap.Error(err))
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
