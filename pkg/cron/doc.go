// Package cron schedules recurring and one-shot agent jobs. Jobs persist as
// JSON on disk, survive restarts, and fire a caller-provided callback that
// runs an agent turn with the job's message.
//
// Invariants:
// - A job never runs concurrently with itself; overlapping fires are skipped.
// - The store file is written atomically (temp file + rename).
package cron
