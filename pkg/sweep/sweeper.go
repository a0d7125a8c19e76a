// Package sweep reclaims the leftovers of abandoned commit creation
// attempts: dead sessions, their staged blobs and elapsed initiation
// blocks. Every pass is idempotent, a crashed sweep is simply retried on
// the next tick.
package sweep

import (
	"context"
	"time"

	"github.com/oneconcern/paramon/pkg/blob"
	"github.com/oneconcern/paramon/pkg/dlogger"
	"github.com/oneconcern/paramon/pkg/errors"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/store"
	"go.uber.org/zap"
)

const (
	// DefaultInterval between sweep passes
	DefaultInterval = 5 * time.Minute

	// DefaultRetention keeps dead session records around for inspection
	// before they are deleted
	DefaultRetention = time.Hour
)

// Option to configure the sweeper
type Option func(*Sweeper)

// Interval overrides the sweep period
func Interval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Retention overrides how long dead session records linger
func Retention(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.retention = d
		}
	}
}

// Logger sets a logger for the sweeper
func Logger(l *zap.Logger) Option {
	return func(s *Sweeper) {
		s.l = l
	}
}

// WithClock overrides the time source, for tests
func WithClock(clock store.Clock) Option {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Sweeper is the background cleaner of the commit creation protocol
type Sweeper struct {
	stores    store.Store
	blobs     blob.Store
	interval  time.Duration
	retention time.Duration
	clock     store.Clock
	l         *zap.Logger
}

// New creates a sweeper over the given stores
func New(stores store.Store, blobs blob.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		stores:    stores,
		blobs:     blobs,
		interval:  DefaultInterval,
		retention: DefaultRetention,
		clock:     time.Now,
		l:         dlogger.MustNew(dlogger.LogLevelInfo),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// Stats summarizes one sweep pass
type Stats struct {
	SessionsDeleted int
	BlobsReclaimed  int
	BlocksDeleted   int
}

// Run sweeps on a ticker until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats, err := s.SweepOnce(ctx)
			if err != nil {
				s.l.Error("sweep pass failed", zap.Error(err))
				continue
			}
			if stats.SessionsDeleted+stats.BlobsReclaimed+stats.BlocksDeleted > 0 {
				s.l.Info("sweep pass done",
					zap.Int("sessions", stats.SessionsDeleted),
					zap.Int("blobs", stats.BlobsReclaimed),
					zap.Int("blocks", stats.BlocksDeleted))
			}
		}
	}
}

// SweepOnce runs a single pass over sessions and blocks
func (s *Sweeper) SweepOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	if err := s.sweepSessions(ctx, &stats); err != nil {
		return stats, err
	}
	if err := s.sweepBlocks(ctx, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Sweeper) sweepSessions(ctx context.Context, stats *Stats) error {
	sessions, err := s.stores.Sessions().List(ctx)
	if err != nil {
		return err
	}
	now := s.clock()
	cutoff := now.Add(-s.retention)

	for i := range sessions {
		session := &sessions[i]
		switch {
		case session.Status == model.StatusFinalized || session.Consumed:
			// a finalized session's blobs belong to its commit, only the
			// record itself ages out
			if session.ExpiresAt.Before(cutoff) {
				s.deleteSession(ctx, session.ID, stats)
			}
		case session.Status == model.StatusError:
			if session.LastErrorAt.Before(cutoff) {
				s.reclaimStaged(ctx, session, stats)
				s.deleteSession(ctx, session.ID, stats)
			}
		case session.Expired(now):
			s.reclaimStaged(ctx, session, stats)
			s.deleteSession(ctx, session.ID, stats)
		}
	}
	return nil
}

func (s *Sweeper) sweepBlocks(ctx context.Context, stats *Stats) error {
	blocks, err := s.stores.Blocks().List(ctx)
	if err != nil {
		return err
	}
	now := s.clock()
	for i := range blocks {
		if blocks[i].Active(now) {
			continue
		}
		if err := s.stores.Blocks().Delete(ctx, blocks[i].Identity); err != nil {
			s.l.Warn("failed to delete elapsed block",
				zap.String("identity", blocks[i].Identity), zap.Error(err))
			continue
		}
		stats.BlocksDeleted++
	}
	return nil
}

// reclaimStaged drops the blobs a dead session staged. Removes are
// idempotent, so sweeping the same session twice is harmless.
func (s *Sweeper) reclaimStaged(ctx context.Context, session *model.SessionDescriptor, stats *Stats) {
	cids := []string{session.ProofCID, session.SettingsCID, session.VerificationKeyCID, session.ParamsCID}
	for _, cid := range cids {
		if cid == "" {
			continue
		}
		has, err := s.blobs.Has(ctx, cid)
		if err != nil {
			s.l.Warn("failed to probe staged blob", zap.String("cid", cid), zap.Error(err))
			continue
		}
		if err := s.blobs.Remove(ctx, cid); err != nil {
			s.l.Warn("failed to reclaim staged blob", zap.String("cid", cid), zap.Error(err))
			continue
		}
		if err := s.stores.BlobRefs().Delete(ctx, cid); err != nil && !errors.Is(err, store.BlobRefNotFound) {
			s.l.Warn("failed to drop blob reference", zap.String("cid", cid), zap.Error(err))
		}
		if has {
			stats.BlobsReclaimed++
		}
	}
}

func (s *Sweeper) deleteSession(ctx context.Context, id string, stats *Stats) {
	if err := s.stores.Sessions().Delete(ctx, id); err != nil {
		s.l.Warn("failed to delete dead session", zap.String("session", id), zap.Error(err))
		return
	}
	stats.SessionsDeleted++
}
