package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solenelabs/aria/internal/config"
	"github.com/solenelabs/aria/pkg/agent"
	"github.com/solenelabs/aria/pkg/cron"
)

func TestBuildRoster(t *testing.T) {
	t.Run("should register all configured agents", func(t *testing.T) {
		cfg := &config.Config{Agents: []config.AgentConfig{
			{Name: "aria", Model: "claude-sonnet-4", Instructions: "Be helpful."},
			{Name: "billing", Model: "gpt-4-turbo", Instructions: "Handle invoices.", Tools: []string{"get_invoice"}},
		}}

		roster, err := buildRoster(cfg)

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"aria", "billing"}, roster.Names())

		billing, ok := roster.Lookup("billing")
		require.True(t, ok)
		assert.Equal(t, []string{"get_invoice"}, billing.ToolNames())
	})

	t.Run("should map tool choice values", func(t *testing.T) {
		cfg := &config.Config{Agents: []config.AgentConfig{
			{Name: "quiet", Model: "m", Instructions: "x", ToolChoice: "none"},
			{Name: "eager", Model: "m", Instructions: "x", ToolChoice: "required"},
			{Name: "fixed", Model: "m", Instructions: "x", ToolChoice: "named", NamedTool: "get_time"},
		}}

		roster, err := buildRoster(cfg)

		require.NoError(t, err)
		quiet, _ := roster.Lookup("quiet")
		assert.Equal(t, agent.ToolChoiceNone, quiet.ToolChoice())
		eager, _ := roster.Lookup("eager")
		assert.Equal(t, agent.ToolChoiceRequired, eager.ToolChoice())
		fixed, _ := roster.Lookup("fixed")
		assert.Equal(t, agent.ToolChoiceNamed, fixed.ToolChoice())
		assert.Equal(t, "get_time", fixed.NamedTool())
	})

	t.Run("should reject an invalid tool choice", func(t *testing.T) {
		cfg := &config.Config{Agents: []config.AgentConfig{
			{Name: "odd", Model: "m", Instructions: "x", ToolChoice: "sometimes"},
		}}

		_, err := buildRoster(cfg)

		assert.Error(t, err)
	})
}

func TestScheduleFromFlags(t *testing.T) {
	resetFlags := func() {
		jobEvery, jobCronExp, jobAt = "", "", ""
	}

	t.Run("should build an interval schedule", func(t *testing.T) {
		resetFlags()
		jobEvery = "30m"

		s, err := scheduleFromFlags()

		require.NoError(t, err)
		assert.Equal(t, cron.ScheduleKindEvery, s.Kind)
		assert.Equal(t, "30m", s.Every)
	})

	t.Run("should build a cron schedule", func(t *testing.T) {
		resetFlags()
		jobCronExp = "0 9 * * 1-5"

		s, err := scheduleFromFlags()

		require.NoError(t, err)
		assert.Equal(t, cron.ScheduleKindCron, s.Kind)
		assert.Equal(t, "0 9 * * 1-5", s.Expr)
	})

	t.Run("should build a one-shot schedule", func(t *testing.T) {
		resetFlags()
		jobAt = "2026-09-01T09:00:00Z"

		s, err := scheduleFromFlags()

		require.NoError(t, err)
		assert.Equal(t, cron.ScheduleKindAt, s.Kind)
		assert.Equal(t, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), s.At)
	})

	t.Run("should reject zero or multiple schedule flags", func(t *testing.T) {
		resetFlags()
		_, err := scheduleFromFlags()
		assert.Error(t, err)

		jobEvery = "1h"
		jobCronExp = "* * * * *"
		_, err = scheduleFromFlags()
		assert.Error(t, err)
	})

	t.Run("should reject a malformed at time", func(t *testing.T) {
		resetFlags()
		jobAt = "tomorrow at nine"

		_, err := scheduleFromFlags()

		assert.Error(t, err)
	})
}
