package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultRetentionAge = 30 * 24 * time.Hour
	DefaultMaxEntries   = 500

	retentionInterval = 24 * time.Hour
)

// Retention prunes transcripts in the background: every transcript is
// trimmed to its newest maxEntries messages, and transcripts untouched for
// longer than the retention age are deleted outright.
type Retention struct {
	store      *Store
	age        time.Duration
	maxEntries int
	logger     zerolog.Logger
	stopCh     chan struct{}
	running    bool
}

// NewRetention creates a retention handler for the store.
func NewRetention(store *Store, age time.Duration, logger zerolog.Logger) *Retention {
	if age == 0 {
		age = DefaultRetentionAge
	}

	return &Retention{
		store:      store,
		age:        age,
		maxEntries: DefaultMaxEntries,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Start starts the retention loop.
func (r *Retention) Start() error {
	if r.running {
		return fmt.Errorf("retention is already running")
	}

	r.running = true
	go r.run()

	r.logger.Info().Dur("age", r.age).Msg("Transcript retention started")

	return nil
}

// Stop stops the retention loop.
func (r *Retention) Stop() error {
	if !r.running {
		return fmt.Errorf("retention is not running")
	}

	close(r.stopCh)
	r.running = false

	r.logger.Info().Msg("Transcript retention stopped")

	return nil
}

func (r *Retention) run() {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	// Run immediately on start
	if err := r.Sweep(); err != nil {
		r.logger.Error().Err(err).Msg("Transcript sweep failed")
	}

	for {
		select {
		case <-ticker.C:
			if err := r.Sweep(); err != nil {
				r.logger.Error().Err(err).Msg("Transcript sweep failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// Sweep runs one prune-and-expire pass over all transcripts.
func (r *Retention) Sweep() error {
	sessions, err := r.store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	now := time.Now()
	deleted := 0

	for _, sessionKey := range sessions {
		if err := r.prune(sessionKey); err != nil {
			r.logger.Warn().Str("session_key", sessionKey).Err(err).Msg("Failed to prune transcript")
		}

		info, err := r.store.GetInfo(sessionKey)
		if err != nil {
			r.logger.Warn().Str("session_key", sessionKey).Err(err).Msg("Failed to stat transcript")
			continue
		}

		age := now.Sub(info.LastModified)
		if age >= r.age {
			if err := r.store.Delete(context.Background(), sessionKey); err != nil {
				r.logger.Error().Str("session_key", sessionKey).Err(err).Msg("Failed to delete transcript")
				continue
			}
			deleted++

			r.logger.Debug().Str("session_key", sessionKey).Dur("age", age).Msg("Transcript expired")
		}
	}

	if deleted > 0 {
		r.logger.Info().Int("deleted", deleted).Msg("Expired transcripts removed")
	}

	return nil
}

// prune trims a transcript down to the newest maxEntries messages.
func (r *Retention) prune(sessionKey string) error {
	if r.maxEntries <= 0 {
		return nil
	}

	entries, err := r.store.Load(context.Background(), sessionKey)
	if err != nil {
		return err
	}

	if len(entries) <= r.maxEntries {
		return nil
	}

	kept := entries[len(entries)-r.maxEntries:]
	if err := r.store.Replace(context.Background(), sessionKey, kept); err != nil {
		return err
	}

	r.logger.Debug().
		Str("session_key", sessionKey).
		Int("from_entries", len(entries)).
		Int("to_entries", len(kept)).
		Msg("Transcript pruned")

	return nil
}

// IsRunning returns whether the retention loop is running.
func (r *Retention) IsRunning() bool {
	return r.running
}

// SetMaxEntries sets max entries retained per transcript after pruning.
func (r *Retention) SetMaxEntries(maxEntries int) {
	r.maxEntries = maxEntries
}
