// Package governor throttles identities that fail mid-protocol: any
// session error earns a temporary initiation block, so a buggy or
// malicious client pays a cooldown instead of retrying without bounds.
package governor

import (
	"context"
	"time"

	"github.com/oneconcern/paramon/pkg/dlogger"
	"github.com/oneconcern/paramon/pkg/errors"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/store"
	"go.uber.org/zap"
)

// DefaultBlockDuration applied on each session error
const DefaultBlockDuration = 2 * time.Minute

// Option to configure the governor
type Option func(*Governor)

// BlockDuration overrides the cooldown applied on errors
func BlockDuration(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.blockDuration = d
		}
	}
}

// Logger sets a logger for the governor
func Logger(l *zap.Logger) Option {
	return func(g *Governor) {
		g.l = l
	}
}

// WithClock overrides the time source, for tests
func WithClock(clock func() time.Time) Option {
	return func(g *Governor) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// Governor records per-identity blocks and session errors
type Governor struct {
	blocks        store.BlockStore
	sessions      store.SessionStore
	blockDuration time.Duration
	clock         func() time.Time
	l             *zap.Logger
}

// New creates a governor over the given stores
func New(blocks store.BlockStore, sessions store.SessionStore, opts ...Option) *Governor {
	g := &Governor{
		blocks:        blocks,
		sessions:      sessions,
		blockDuration: DefaultBlockDuration,
		clock:         time.Now,
		l:             dlogger.MustNew(dlogger.LogLevelInfo),
	}
	for _, apply := range opts {
		apply(g)
	}
	return g
}

// Block upserts an initiation block on the identity, refreshing any
// existing one
func (g *Governor) Block(ctx context.Context, identity string) error {
	block := &model.BlockDescriptor{
		Identity:     identity,
		BlockedUntil: g.clock().Add(g.blockDuration).UTC(),
	}
	if err := g.blocks.Upsert(ctx, block); err != nil {
		return err
	}
	g.l.Info("identity blocked",
		zap.String("identity", identity),
		zap.Time("blockedUntil", block.BlockedUntil))
	return nil
}

// Remaining returns the cooldown left on an identity, zero when unblocked
func (g *Governor) Remaining(ctx context.Context, identity string) (time.Duration, error) {
	block, err := g.blocks.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, store.BlockNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return block.Remaining(g.clock()), nil
}

// RecordSessionError marks the session ERROR, stamps the failure and
// blocks the identity. The ERROR transition is applied whatever the
// current stage, as it is a side-terminal of the state machine.
func (g *Governor) RecordSessionError(ctx context.Context, sessionID, identity string) error {
	session, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		g.l.Warn("recording error on unknown session",
			zap.String("session", sessionID), zap.Error(err))
	} else if session.Status.CanAdvanceTo(model.StatusError) {
		session.Status = model.StatusError
		session.ErrorCount++
		session.LastErrorAt = g.clock().UTC()
		if err := g.sessions.Update(ctx, session); err != nil {
			g.l.Warn("failed to mark session errored",
				zap.String("session", sessionID), zap.Error(err))
		}
	}
	return g.Block(ctx, identity)
}
