package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/conversation"
	"github.com/zen-systems/nexus/pkg/orchestrator"
	"github.com/zen-systems/nexus/pkg/registry"
)

func chatCmd() *cobra.Command {
	var (
		modelFlag        string
		modeFlag         string
		systemFlag       string
		maxTokensFlag    int
		conversationFlag string
		userFlag         string
		jsonFlag         bool
	)

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send a prompt to a model and print the metered reply",
		Long: `Sends the prompt to the model's provider and prints the reply with its
	token usage and credit cost.

	With --conversation and --user the exchange is recorded, previous turns of
	the conversation are sent as history, and the cost is debited when a credits
	backend is configured.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			mode, err := registry.ParseMode(modeFlag)
			if err != nil {
				return err
			}

			var history []conversation.StoredMessage
			if conversationFlag != "" && userFlag != "" {
				c, err := a.repo.Get(ctx, userFlag, conversationFlag)
				switch {
				case err == nil:
					history = c.Messages
				case !errors.Is(err, conversation.ErrNotFound):
					return fmt.Errorf("failed to load conversation: %w", err)
				}
			}

			if a.credits != nil && userFlag != "" {
				if _, err := a.credits.EnsureMinimumBalance(ctx, userFlag, 1); err != nil {
					return err
				}
			}

			req := adapter.Request{
				Model:           modelFlag,
				Mode:            mode,
				Messages:        buildMessages(systemFlag, history, args[0]),
				MaxOutputTokens: maxTokensFlag,
				ConversationID:  conversationFlag,
				OwnerID:         userFlag,
			}

			resp, err := a.orch.Orchestrate(ctx, req)
			if err != nil {
				var f *orchestrator.Failure
				if errors.As(err, &f) {
					return fmt.Errorf("%s: %w", f.Kind, err)
				}
				return err
			}

			for _, perr := range a.drainRecorder() {
				a.logger.Warn("exchange not recorded", zap.Error(perr))
			}

			if jsonFlag {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			fmt.Println(resp.Text)
			fmt.Fprintf(os.Stderr, "\n[%s %s] finish=%s tokens=%d+%d cost=%s USD credits=%d%s\n",
				resp.Model, mode, resp.FinishReason,
				resp.Usage.PromptTokens, resp.Usage.CompletionTokens,
				resp.Usage.CostUSD.StringFixed(6), resp.Usage.CostCredits,
				estimatedSuffix(resp.Usage.Estimated))
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelFlag, "model", "m", "gpt-5-mini", "model id (see `nexus models`)")
	cmd.Flags().StringVar(&modeFlag, "mode", "medium", "reasoning mode: low, medium or high")
	cmd.Flags().StringVar(&systemFlag, "system", "", "system instruction")
	cmd.Flags().IntVar(&maxTokensFlag, "max-tokens", 0, "maximum output tokens (0 uses the mode default)")
	cmd.Flags().StringVar(&conversationFlag, "conversation", "", "conversation id to record the exchange in")
	cmd.Flags().StringVar(&userFlag, "user", "", "owner id for recording and billing")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full response as JSON")

	return cmd
}

// buildMessages assembles the turn sequence: optional system instruction,
// stored history, then the new user prompt.
func buildMessages(system string, history []conversation.StoredMessage, prompt string) []adapter.Message {
	msgs := make([]adapter.Message, 0, len(history)+2)
	if s := strings.TrimSpace(system); s != "" {
		msgs = append(msgs, adapter.Message{Role: adapter.RoleSystem, Content: s})
	}
	for _, m := range history {
		msgs = append(msgs, adapter.Message{Role: m.Role, Content: m.Content})
	}
	return append(msgs, adapter.Message{Role: adapter.RoleUser, Content: prompt})
}

func estimatedSuffix(estimated bool) string {
	if estimated {
		return " (estimated)"
	}
	return ""
}

func msDuration(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
