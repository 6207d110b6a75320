package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Profile holds credentials for one vendor account.
type Profile struct {
	ID            string `json:"id"`
	Vendor        string `json:"vendor"` // "anthropic" or "openai"
	APIKey        string `json:"api_key"`
	Priority      int    `json:"priority"` // lower runs first
	FailureCount  int    `json:"failure_count"`
	CooldownUntil *int64 `json:"cooldown_until,omitempty"` // unix millis
}

// NewVendorProvider creates the concrete provider for a profile.
func NewVendorProvider(profile Profile) (Provider, error) {
	switch profile.Vendor {
	case "anthropic":
		return NewAnthropicProvider(profile.APIKey), nil
	case "openai":
		return NewOpenAIProvider(profile.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported vendor: %s", profile.Vendor)
	}
}

// Factory implements Provider by trying credential profiles in priority
// order with per-profile cooldown on failure and bounded retry with backoff
// on retryable errors. The runner sees it as a single provider.
type Factory struct {
	mu         sync.Mutex
	profiles   []Profile
	create     func(Profile) (Provider, error)
	maxRetries int
	logger     zerolog.Logger
}

// NewFactory creates a failover provider over the given profiles.
func NewFactory(profiles []Profile, logger zerolog.Logger) (*Factory, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("at least one credential profile is required")
	}
	return &Factory{
		profiles:   append([]Profile(nil), profiles...),
		create:     NewVendorProvider,
		maxRetries: 3,
		logger:     logger,
	}, nil
}

// Name returns the vendor of the highest-priority profile.
func (f *Factory) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.profiles) == 0 {
		return "none"
	}
	return f.profiles[0].Vendor
}

// Complete tries profiles in priority order until one succeeds.
func (f *Factory) Complete(ctx context.Context, req Request) (*Response, error) {
	return f.call(ctx, req, func(p Provider) (*Response, error) {
		return p.Complete(ctx, req)
	})
}

// Stream tries profiles in priority order. ErrStreamingUnsupported is
// returned unchanged so the caller can fall back to Complete.
func (f *Factory) Stream(ctx context.Context, req Request, onDelta StreamFunc) (*Response, error) {
	return f.call(ctx, req, func(p Provider) (*Response, error) {
		return p.Stream(ctx, req, onDelta)
	})
}

func (f *Factory) call(ctx context.Context, req Request, invoke func(Provider) (*Response, error)) (*Response, error) {
	profiles := f.snapshotProfiles()

	var lastErr error
	for _, profile := range profiles {
		if profile.CooldownUntil != nil && time.Now().UnixMilli() < *profile.CooldownUntil {
			f.logger.Debug().Str("profile_id", profile.ID).Msg("Skipping profile in cooldown")
			continue
		}

		p, err := f.create(profile)
		if err != nil {
			f.logger.Warn().Str("profile_id", profile.ID).Err(err).Msg("Failed to create provider")
			continue
		}

		response, err := f.withRetry(ctx, p, invoke)
		if err == nil {
			f.markSuccess(profile.ID)
			return response, nil
		}
		if err == ErrStreamingUnsupported {
			return nil, err
		}

		lastErr = err
		f.markFailure(profile.ID)
		f.logger.Warn().Str("profile_id", profile.ID).Err(err).Msg("Credential profile failed")

		if !IsRetryable(err) {
			return nil, err
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no usable credential profile")
	}
	return nil, fmt.Errorf("all credential profiles failed: %w", lastErr)
}

// withRetry retries retryable errors with exponential backoff: 1s, 2s, 4s.
func (f *Factory) withRetry(ctx context.Context, p Provider, invoke func(Provider) (*Response, error)) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		response, err := invoke(p)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if err == ErrStreamingUnsupported || !IsRetryable(err) {
			return nil, err
		}
		if attempt == f.maxRetries-1 {
			break
		}

		delay := time.Duration(1<<attempt) * time.Second
		f.logger.Info().Int("attempt", attempt+1).Dur("delay", delay).Msg("Retrying after provider error")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", f.maxRetries, lastErr)
}

func (f *Factory) snapshotProfiles() []Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	profiles := append([]Profile(nil), f.profiles...)
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})
	return profiles
}

func (f *Factory) markSuccess(profileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.profiles {
		if f.profiles[i].ID == profileID {
			f.profiles[i].FailureCount = 0
			f.profiles[i].CooldownUntil = nil
			return
		}
	}
}

func (f *Factory) markFailure(profileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.profiles {
		if f.profiles[i].ID == profileID {
			f.profiles[i].FailureCount++
			until := time.Now().UnixMilli() + int64(60_000*f.profiles[i].FailureCount)
			f.profiles[i].CooldownUntil = &until
			return
		}
	}
}
