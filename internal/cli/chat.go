package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solenelabs/aria/pkg/conversation"
	"github.com/solenelabs/aria/pkg/runner"
)

var chatAgent string

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a single message to an agent",
	Long: `Send one message to an agent and stream the reply to stdout.
Tools, memory, and handoffs work exactly as they do through the gateway.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatAgent, "agent", "", "agent to talk to (default from config)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rt, err := buildRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	agentName := chatAgent
	if agentName == "" {
		agentName = rt.cfg.DefaultAgent
	}
	a, ok := rt.roster.Lookup(agentName)
	if !ok {
		return fmt.Errorf("unknown agent: %s", agentName)
	}

	tokens, errs := rt.runner.RunStream(ctx, runner.Params{
		Agent:      a,
		Messages:   []conversation.Message{conversation.UserMessage(args[0])},
		MaxTurns:   rt.cfg.Runner.MaxTurns,
		MaxHistory: rt.cfg.Runner.MaxHistory,
	})

	for token := range tokens {
		fmt.Fprint(os.Stdout, token)
	}
	fmt.Fprintln(os.Stdout)

	if err := <-errs; err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}
