package tellergo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Persister moves snapshots between a Directory and a Store. Failures are
// reported to the caller and logged, never fatal: a broken store leaves the
// in-memory directory usable.
type Persister struct {
	// saveMu orders snapshots with their writes so an older snapshot never
	// lands after a newer one.
	saveMu  sync.Mutex
	store   Store
	brkr    *gobreaker.CircuitBreaker[struct{}]
	timeout time.Duration
	log     *zerolog.Logger
}

type PersisterOpts struct {
	// Timeout bounds a single load or save.
	Timeout time.Duration
	// MaxFailures consecutive save failures open the breaker for OpenFor.
	MaxFailures uint32
	OpenFor     time.Duration
}

func NewPersister(store Store, opts PersisterOpts, log *zerolog.Logger) *Persister {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 3
	}
	if opts.OpenFor <= 0 {
		opts.OpenFor = 30 * time.Second
	}
	p := &Persister{
		store:   store,
		timeout: opts.Timeout,
		log:     log,
	}
	p.brkr = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "snapshot-save",
		Timeout: opts.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("snapshot breaker state changed")
		},
	})
	return p
}

// Load fills dir from the store. A missing snapshot is not an error. Any
// other failure leaves dir empty and is returned as an ErrPersistence warning.
func (p *Persister) Load(ctx context.Context, dir *Directory) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	snap, err := p.store.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		p.log.Info().Msg("no existing snapshot, starting with empty accounts")
		return nil
	}
	if err == nil {
		err = dir.Restore(snap)
	}
	if err != nil {
		_ = dir.Restore(&Snapshot{Version: SnapshotVersion})
		p.log.Warn().Err(err).Msg("error loading accounts, starting with empty accounts")
		return ErrPersistence{Op: "load", Err: err}
	}

	p.log.Info().Int("accounts", dir.Len()).Msg("accounts loaded")
	return nil
}

// Save writes a full snapshot of dir.
func (p *Persister) Save(ctx context.Context, dir *Directory) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	snap := dir.Snapshot()
	_, err := p.brkr.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return struct{}{}, p.store.Save(ctx, snap)
	})
	if err != nil {
		p.log.Err(err).Int("accounts", len(snap.Accounts)).Msg("error saving accounts")
		return ErrPersistence{Op: "save", Err: err}
	}
	p.log.Debug().Int("accounts", len(snap.Accounts)).Msg("accounts saved")
	return nil
}
