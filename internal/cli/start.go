package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solenelabs/aria/pkg/conversation"
	"github.com/solenelabs/aria/pkg/cron"
	"github.com/solenelabs/aria/pkg/gateway"
	"github.com/solenelabs/aria/pkg/runner"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Aria service",
	Long: `Start the Aria service in the foreground.
The service exposes the HTTP gateway and fires scheduled jobs until
interrupted with SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	zl := rt.log.GetZerolog()

	var cronService *cron.Service
	if rt.cfg.Cron.Enabled {
		cronService, err = cron.NewService(cron.Options{
			StorePath:    rt.cfg.Cron.StorePath,
			DefaultAgent: rt.cfg.DefaultAgent,
			RunAgentTurn: cronRunFunc(rt),
			OnEvent: func(evt cron.Event) {
				zl.Debug().Str("action", string(evt.Action)).Str("job", evt.JobID).Msg("Cron event")
			},
		})
		if err != nil {
			return fmt.Errorf("failed to start cron service: %w", err)
		}
		defer func() { _ = cronService.Stop() }()
		zl.Info().Int("jobs", len(cronService.List())).Msg("Cron service started")
	}

	var server *gateway.Server
	if rt.cfg.Gateway.Enabled {
		server, err = gateway.NewServer(gateway.Config{
			Port:         rt.cfg.Gateway.Port,
			SharedSecret: rt.cfg.Gateway.SharedSecret,
			Runner:       rt.runner,
			Roster:       rt.roster,
			DefaultAgent: rt.cfg.DefaultAgent,
			Logger:       zl,
		})
		if err != nil {
			return fmt.Errorf("failed to build gateway: %w", err)
		}
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start gateway: %w", err)
		}
		defer func() { _ = server.Stop() }()
		zl.Info().Int("port", rt.cfg.Gateway.Port).Msg("Gateway listening")
	}

	if cronService == nil && server == nil {
		return fmt.Errorf("nothing to run: both gateway and cron are disabled")
	}

	zl.Info().Str("default_agent", rt.cfg.DefaultAgent).Msg("Aria started")
	<-ctx.Done()
	zl.Info().Msg("Shutting down")

	return nil
}

// cronRunFunc adapts the runner to the cron service's job callback.
func cronRunFunc(rt *runtime) cron.RunFunc {
	return func(ctx context.Context, job *cron.Job) error {
		agentName := job.Agent
		if agentName == "" {
			agentName = rt.cfg.DefaultAgent
		}
		a, ok := rt.roster.Lookup(agentName)
		if !ok {
			return fmt.Errorf("unknown agent: %s", agentName)
		}

		resp, err := rt.runner.Run(ctx, runner.Params{
			Agent:      a,
			Messages:   []conversation.Message{conversation.UserMessage(job.Message)},
			MaxTurns:   job.MaxTurns,
			MaxHistory: rt.cfg.Runner.MaxHistory,
		})
		if err != nil {
			return err
		}

		zl := rt.log.GetZerolog()
		zl.Info().
			Str("job", job.ID).
			Str("agent", resp.ActiveAgent.Name()).
			Int("messages", len(resp.Messages)).
			Msg("Scheduled job completed")
		return nil
	}
}
