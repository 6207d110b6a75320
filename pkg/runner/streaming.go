package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solenelabs/aria/internal/observability"
	"github.com/solenelabs/aria/pkg/conversation"
	"github.com/solenelabs/aria/pkg/provider"
)

// streamBufferSize bounds the token channel. A slow consumer backpressures
// the run instead of growing memory without bound.
const streamBufferSize = 32

// RunStream executes the turn loop on a worker goroutine, emitting assistant
// text tokens on the returned channel as they arrive. The token channel is
// closed when the run ends; if the run failed, the error is delivered on the
// error channel first. Tool-call payloads are never streamed, and providers
// without streaming support fall back to a single token per turn.
func (r *Runner) RunStream(ctx context.Context, params Params) (<-chan string, <-chan error) {
	tokens := make(chan string, streamBufferSize)
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)

		observability.StreamStarted()
		defer observability.StreamFinished()

		if err := r.streamLoop(ctx, params, tokens); err != nil {
			errs <- err
		}
	}()

	return tokens, errs
}

func (r *Runner) streamLoop(ctx context.Context, params Params, tokens chan<- string) error {
	st, err := r.newRunState(params)
	if err != nil {
		return err
	}
	started := time.Now()

	for turn := 1; turn <= st.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			observability.RecordAgentRun("canceled", time.Since(started))
			return err
		}

		resp, err := r.streamTurn(ctx, st, tokens)
		if err != nil {
			observability.RecordAgentRun("error", time.Since(started))
			return fmt.Errorf("model call failed on turn %d: %w", turn, err)
		}
		observability.RecordTurn()

		if len(resp.ToolCalls) == 0 {
			st.history.Append(conversation.AssistantMessage(resp.Content, st.active.Name()))
			observability.RecordAgentRun("completed", time.Since(started))
			return nil
		}

		r.executeToolTurn(ctx, st, resp)
	}

	r.logger.Warn().
		Str("agent", st.active.Name()).
		Int("max_turns", st.maxTurns).
		Msg("Turn budget exhausted during streaming run")
	observability.RecordAgentRun("max_turns", time.Since(started))
	return nil
}

// streamTurn runs one model call, forwarding text deltas to tokens. When the
// provider cannot stream, or the stream fails mid-turn, the turn silently
// falls back to a blocking call and the full text is emitted as one token.
func (r *Runner) streamTurn(ctx context.Context, st *runState, tokens chan<- string) (*provider.Response, error) {
	req := r.buildRequest(ctx, st)

	resp, streamErr := r.provider.Stream(ctx, req, func(delta string) error {
		return emitToken(ctx, tokens, delta)
	})
	if streamErr == nil {
		return resp, nil
	}
	if errors.Is(streamErr, context.Canceled) || errors.Is(streamErr, context.DeadlineExceeded) {
		return nil, streamErr
	}

	if !errors.Is(streamErr, provider.ErrStreamingUnsupported) {
		r.logger.Debug().Err(streamErr).
			Str("agent", st.active.Name()).
			Msg("Streaming attempt failed, falling back to blocking call")
	}

	resp, err := r.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.ToolCalls) == 0 && resp.Content != "" {
		if err := emitToken(ctx, tokens, resp.Content); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func emitToken(ctx context.Context, tokens chan<- string, token string) error {
	if token == "" {
		return nil
	}
	select {
	case tokens <- token:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
