package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service schedules and executes persisted agent jobs.
type Service struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	jobs    map[string]*Job
	timers  map[string]*time.Timer
	stopped bool
}

// NewService loads the job store and schedules every enabled job. Passive
// services load and edit the store without arming any timers.
func NewService(opts Options) (*Service, error) {
	if opts.StorePath == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if opts.RunAgentTurn == nil && !opts.Passive {
		return nil, fmt.Errorf("run agent turn callback is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*Job),
		timers: make(map[string]*time.Timer),
	}

	if err := s.load(); err != nil {
		log.Warn().Err(err).Msg("Failed to load job store, starting empty")
	}

	s.mu.Lock()
	if !opts.Passive {
		for _, job := range s.jobs {
			if job.Enabled {
				s.scheduleLocked(job)
			}
		}
	}
	count := len(s.jobs)
	s.mu.Unlock()

	log.Info().Int("jobs", count).Msg("Job scheduler initialized")
	return s, nil
}

// Add creates, persists and (when enabled) schedules a new job.
func (s *Service) Add(params AddParams) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, fmt.Errorf("scheduler is stopped")
	}
	if params.Name == "" {
		return nil, fmt.Errorf("job name is required")
	}
	if params.Message == "" {
		return nil, fmt.Errorf("job message is required")
	}

	nextRun, err := NextRun(params.Schedule, time.Now())
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	agentName := params.Agent
	if agentName == "" {
		agentName = s.opts.DefaultAgent
	}

	now := time.Now().UTC()
	job := &Job{
		ID:             uuid.New().String(),
		Agent:          agentName,
		Name:           params.Name,
		Description:    params.Description,
		Enabled:        params.Enabled,
		DeleteAfterRun: params.DeleteAfterRun,
		CreatedAt:      now,
		UpdatedAt:      now,
		Schedule:       params.Schedule,
		Message:        params.Message,
		MaxTurns:       params.MaxTurns,
		State:          JobState{NextRun: &nextRun},
	}

	s.jobs[job.ID] = job
	if err := s.persistLocked(); err != nil {
		delete(s.jobs, job.ID)
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if job.Enabled {
		s.scheduleLocked(job)
	}

	log.Info().Str("job_id", job.ID).Str("name", job.Name).Bool("enabled", job.Enabled).Msg("Job created")
	s.emit(Event{Action: EventActionAdded, JobID: job.ID, NextRun: job.State.NextRun})
	return job, nil
}

// Update applies a patch to an existing job and reschedules it if the
// schedule or enabled flag changed.
func (s *Service) Update(id string, patch JobPatch) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, fmt.Errorf("scheduler is stopped")
	}
	job, exists := s.jobs[id]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", id)
	}

	scheduleChanged := false
	enabledChanged := false

	if patch.Name != nil {
		job.Name = *patch.Name
	}
	if patch.Description != nil {
		job.Description = *patch.Description
	}
	if patch.Enabled != nil && *patch.Enabled != job.Enabled {
		job.Enabled = *patch.Enabled
		enabledChanged = true
	}
	if patch.DeleteAfterRun != nil {
		job.DeleteAfterRun = *patch.DeleteAfterRun
	}
	if patch.Schedule != nil {
		job.Schedule = *patch.Schedule
		scheduleChanged = true
	}
	if patch.Message != nil {
		job.Message = *patch.Message
	}
	if patch.MaxTurns != nil {
		job.MaxTurns = *patch.MaxTurns
	}
	job.UpdatedAt = time.Now().UTC()

	if scheduleChanged {
		nextRun, err := NextRun(job.Schedule, time.Now())
		if err != nil {
			return nil, fmt.Errorf("invalid schedule: %w", err)
		}
		job.State.NextRun = &nextRun
	}

	if err := s.persistLocked(); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if scheduleChanged || enabledChanged {
		s.cancelTimerLocked(id)
		if job.Enabled {
			s.scheduleLocked(job)
		}
	}

	log.Info().Str("job_id", id).Str("name", job.Name).Msg("Job updated")
	s.emit(Event{Action: EventActionUpdated, JobID: id, NextRun: job.State.NextRun})
	return job, nil
}

// Remove deletes a job and cancels its timer.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	s.cancelTimerLocked(id)
	delete(s.jobs, id)
	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("failed to persist job store: %w", err)
	}

	log.Info().Str("job_id", id).Msg("Job removed")
	s.emit(Event{Action: EventActionDeleted, JobID: id})
	return nil
}

// Run fires a job immediately, regardless of its schedule. Disabled jobs
// still run when forced.
func (s *Service) Run(id string) error {
	s.mu.RLock()
	job, exists := s.jobs[id]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if s.opts.Passive {
		return fmt.Errorf("service is passive, cannot run jobs")
	}
	go s.execute(job.ID)
	return nil
}

// List returns all jobs sorted by creation time.
func (s *Service) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}

// Get returns a job by id, or nil.
func (s *Service) Get(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}

// Stop cancels timers and persists the final state.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	s.cancel()

	for id := range s.timers {
		s.cancelTimerLocked(id)
	}
	if err := s.persistLocked(); err != nil {
		log.Error().Err(err).Msg("Failed to persist job store on shutdown")
		return err
	}

	log.Info().Msg("Job scheduler stopped")
	return nil
}

func (s *Service) scheduleLocked(job *Job) {
	if s.opts.Passive {
		return
	}
	if job.State.NextRun == nil {
		log.Warn().Str("job_id", job.ID).Msg("Cannot schedule job without a next run time")
		return
	}

	delay := time.Until(*job.State.NextRun)
	if delay < 0 {
		delay = 0
	}

	id := job.ID
	s.timers[id] = time.AfterFunc(delay, func() {
		s.execute(id)
	})

	log.Debug().
		Str("job_id", id).
		Time("next_run", *job.State.NextRun).
		Msg("Job scheduled")
}

func (s *Service) cancelTimerLocked(id string) {
	if timer, exists := s.timers[id]; exists {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Service) execute(id string) {
	s.mu.Lock()
	job, exists := s.jobs[id]
	if !exists || s.stopped {
		s.mu.Unlock()
		return
	}
	if job.State.RunningSince != nil {
		s.mu.Unlock()
		log.Debug().Str("job_id", id).Msg("Job already running, skipping")
		return
	}
	started := time.Now().UTC()
	job.State.RunningSince = &started
	s.mu.Unlock()

	log.Info().Str("job_id", id).Str("name", job.Name).Msg("Executing job")
	err := s.opts.RunAgentTurn(s.ctx, job)

	s.mu.Lock()
	defer s.mu.Unlock()

	duration := time.Since(started)
	job.State.RunningSince = nil
	job.State.LastRun = &started
	job.State.LastDurationMs = duration.Milliseconds()

	if err != nil {
		job.State.LastStatus = "error"
		job.State.LastError = err.Error()
		job.State.ConsecutiveErrors++
		log.Error().Str("job_id", id).Err(err).
			Int("consecutive_errors", job.State.ConsecutiveErrors).
			Msg("Job execution failed")
	} else {
		job.State.LastStatus = "ok"
		job.State.LastError = ""
		job.State.ConsecutiveErrors = 0
		log.Info().Str("job_id", id).Dur("duration", duration).Msg("Job execution completed")
	}

	if job.DeleteAfterRun && err == nil {
		s.cancelTimerLocked(id)
		delete(s.jobs, id)
		if persistErr := s.persistLocked(); persistErr != nil {
			log.Error().Err(persistErr).Msg("Failed to persist job store")
		}
		s.emit(Event{Action: EventActionFinished, JobID: id, Status: "ok"})
		s.emit(Event{Action: EventActionDeleted, JobID: id})
		return
	}

	nextRun, calcErr := NextRun(job.Schedule, time.Now())
	if calcErr != nil {
		log.Error().Str("job_id", id).Err(calcErr).Msg("Failed to compute next run")
		job.State.NextRun = nil
	} else {
		job.State.NextRun = &nextRun
	}

	// One-shot jobs are done after their run.
	if job.Schedule.Kind == ScheduleKindAt {
		job.Enabled = false
		job.State.NextRun = nil
	}

	if persistErr := s.persistLocked(); persistErr != nil {
		log.Error().Err(persistErr).Msg("Failed to persist job store")
	}

	s.emit(Event{
		Action:  EventActionFinished,
		JobID:   id,
		Status:  job.State.LastStatus,
		Error:   job.State.LastError,
		NextRun: job.State.NextRun,
	})

	if job.Enabled && job.State.NextRun != nil {
		s.cancelTimerLocked(id)
		s.scheduleLocked(job)
	}
}

func (s *Service) emit(evt Event) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(evt)
	}
}

func (s *Service) load() error {
	if _, err := os.Stat(s.opts.StorePath); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(s.opts.StorePath)
	if err != nil {
		return fmt.Errorf("failed to read job store: %w", err)
	}

	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("failed to parse job store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*Job, len(jobs))
	for _, job := range jobs {
		// A restart clears any stale running marker.
		job.State.RunningSince = nil
		s.jobs[job.ID] = job
	}
	log.Info().Int("count", len(jobs)).Msg("Loaded jobs from store")
	return nil
}

func (s *Service) persistLocked() error {
	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.opts.StorePath), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp := s.opts.StorePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp store: %w", err)
	}
	return os.Rename(tmp, s.opts.StorePath)
}
