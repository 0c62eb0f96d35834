package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctorhq/sessiond/internal/metrics"
	"github.com/proctorhq/sessiond/internal/store"
)

const sweepBatchSize = 100

// minEventAge keeps the sweeper from racing a publish attempt that is
// still in flight for a just-appended event.
const minEventAge = 10 * time.Second

// Sweeper periodically republishes events whose original publish attempt
// failed. Publishing is idempotent from the observer's point of view
// (envelopes carry the event ID), so a duplicate send is harmless.
type Sweeper struct {
	db       store.DataStore
	recorder *Recorder
	interval time.Duration
	logger   zerolog.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a Sweeper.
func NewSweeper(db store.DataStore, recorder *Recorder, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		db:       db,
		recorder: recorder,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop in a goroutine until Stop is called.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// Sweep republishes one batch of unpublished events and returns how many
// were delivered.
func (s *Sweeper) Sweep(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-minEventAge)
	events, err := s.db.ListUnpublishedEvents(ctx, cutoff, sweepBatchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep query failed")
		return 0
	}

	sent := 0
	for i := range events {
		if s.recorder.Republish(ctx, &events[i]) {
			sent++
			metrics.SweeperRepublished.Inc()
		}
	}
	if sent > 0 {
		s.logger.Info().Int("republished", sent).Msg("sweeper republished events")
	}
	return sent
}
