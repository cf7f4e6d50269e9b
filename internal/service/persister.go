package service

import (
	"context"
	"time"

	"espresso_rig/internal/logger"
	"espresso_rig/internal/models"
)

// StateStore keeps the last published state across restarts.
type StateStore interface {
	Save(ctx context.Context, st models.CombinedState) error
	// Load returns ok=false when nothing was saved yet.
	Load(ctx context.Context) (st models.CombinedState, ok bool, err error)
}

// StateReader is satisfied by Coordinator.
type StateReader interface {
	Latest() models.CombinedState
}

// Persister checkpoints the latest state on an interval, skipping unchanged states.
type Persister struct {
	store    StateStore
	reader   StateReader
	log      *logger.Logger
	interval time.Duration

	last time.Time
}

func NewPersister(store StateStore, reader StateReader, interval time.Duration, log *logger.Logger) *Persister {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Persister{store: store, reader: reader, interval: interval, log: logger.OrNop(log)}
}

// Run checkpoints until ctx is canceled, then writes one final checkpoint.
func (p *Persister) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := p.Checkpoint(final); err != nil {
				p.log.Warnw("checkpoint_failed", "error", err)
			}
			cancel()
			return
		case <-t.C:
			if err := p.Checkpoint(ctx); err != nil {
				p.log.Warnw("checkpoint_failed", "error", err)
			}
		}
	}
}

// Checkpoint saves the latest state if it was published after the previous checkpoint.
func (p *Persister) Checkpoint(ctx context.Context) error {
	st := p.reader.Latest()
	if st.Timestamp.IsZero() || st.Timestamp.Equal(p.last) {
		return nil
	}
	if err := p.store.Save(ctx, st); err != nil {
		return err
	}
	p.last = st.Timestamp
	return nil
}

// RestoreState loads the last checkpoint, or nil when there is none or it cannot be read.
func RestoreState(ctx context.Context, store StateStore, log *logger.Logger) *models.CombinedState {
	st, ok, err := store.Load(ctx)
	if err != nil {
		logger.OrNop(log).Warnw("checkpoint_restore_failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &st
}
