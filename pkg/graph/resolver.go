// Package graph resolves where a new commit lands in the commit graph.
//
// A branch head may only be extended once. When a second commit targets an
// already-extended parent, the repository's commit policy decides the
// outcome: SERIAL rejects the second writer, FORK gives it a fresh branch.
package graph

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oneconcern/paramon/internal/rand"
	"github.com/oneconcern/paramon/pkg/dlogger"
	"github.com/oneconcern/paramon/pkg/errors"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/status"
	"github.com/oneconcern/paramon/pkg/store"
	"go.uber.org/zap"
)

// Option to configure the resolver
type Option func(*Resolver)

// Logger sets a logger for the resolver
func Logger(l *zap.Logger) Option {
	return func(r *Resolver) {
		r.l = l
	}
}

// WithClock overrides the time source, for tests
func WithClock(clock store.Clock) Option {
	return func(r *Resolver) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// Resolver computes parent placement for new commits
type Resolver struct {
	l     *zap.Logger
	clock store.Clock
}

// New creates a commit graph resolver
func New(opts ...Option) *Resolver {
	r := &Resolver{
		l:     dlogger.MustNew(dlogger.LogLevelInfo),
		clock: time.Now,
	}
	for _, apply := range opts {
		apply(r)
	}
	return r
}

// ResolveParent picks the parent hash for a new session.
//
// An explicit hash must name an existing non-deleted commit of the branch.
// Without one, the branch head is used, falling back to the genesis marker
// on an empty branch.
func (r *Resolver) ResolveParent(ctx context.Context, commits store.CommitStore, branchID, explicit string) (string, error) {
	explicit = strings.TrimSpace(explicit)
	if explicit != "" {
		if explicit == model.GenesisCommitHash {
			return explicit, nil
		}
		parent, err := commits.Get(ctx, explicit)
		if err != nil {
			if errors.Is(err, store.CommitNotFound) {
				return "", status.ErrNotFound.WrapMsg("parent commit %s not found", explicit)
			}
			return "", status.ErrInternal.Wrap(err)
		}
		if parent.BranchID != branchID || parent.IsDeleted {
			return "", status.ErrNotFound.WrapMsg("parent commit %s not found in this branch", explicit)
		}
		return parent.CommitHash, nil
	}

	head, err := commits.Latest(ctx, branchID)
	if err != nil {
		if errors.Is(err, store.CommitNotFound) {
			return model.GenesisCommitHash, nil
		}
		return "", status.ErrInternal.Wrap(err)
	}
	return head.CommitHash, nil
}

// CheckSerial fails fast when a SERIAL repository already has a child on
// the parent. Non-SERIAL policies defer the decision to Place.
func (r *Resolver) CheckSerial(ctx context.Context, commits store.CommitStore, repo *model.RepoDescriptor, branchID, parentHash string) error {
	if repo.CommitPolicy != model.CommitPolicySerial {
		return nil
	}
	children, err := commits.CountChildren(ctx, branchID, parentHash)
	if err != nil {
		return status.ErrInternal.Wrap(err)
	}
	if children > 0 {
		return status.ErrSerialConflict.WrapMsg("parent commit %s already has a successor", parentHash)
	}
	return nil
}

// Placement is the resolved landing spot of a commit
type Placement struct {
	// BranchID the commit is created on; differs from the requested
	// branch when a fork was carved out
	BranchID string

	// Forked is the descriptor of the created fork branch, nil when the
	// commit lands on the requested branch
	Forked *model.BranchDescriptor
}

// Place decides the branch a new commit is created on, applying the
// repository's commit policy. It must run inside the finalize transaction
// so the child count it bases its decision on is the one being committed
// against.
func (r *Resolver) Place(ctx context.Context, tx store.Tx, repo *model.RepoDescriptor, branch *model.BranchDescriptor, parentHash string) (Placement, error) {
	children, err := tx.Commits().CountChildren(ctx, branch.ID, parentHash)
	if err != nil {
		return Placement{}, status.ErrInternal.Wrap(err)
	}
	if children == 0 {
		return Placement{BranchID: branch.ID}, nil
	}

	policy := repo.CommitPolicy
	switch policy {
	case model.CommitPolicySerial:
		return Placement{}, status.ErrSerialConflict.WrapMsg("parent commit %s already has a successor", parentHash)
	case model.CommitPolicyMerge:
		r.l.Warn("merge policy not implemented, forking instead",
			zap.String("repo", repo.ID),
			zap.String("branch", branch.ID))
		fallthrough
	case model.CommitPolicyFork:
		fork := r.forkOf(branch, parentHash)
		if err := tx.Branches().Create(ctx, fork); err != nil {
			return Placement{}, status.ErrInternal.Wrap(err)
		}
		r.l.Info("forked branch",
			zap.String("repo", repo.ID),
			zap.String("from", branch.ID),
			zap.String("fork", fork.ID),
			zap.String("parent", parentHash))
		return Placement{BranchID: fork.ID, Forked: fork}, nil
	default:
		return Placement{}, status.ErrInternal.WrapMsg("unknown commit policy %q", policy)
	}
}

func (r *Resolver) forkOf(branch *model.BranchDescriptor, parentHash string) *model.BranchDescriptor {
	suffix := rand.LetterString(8)
	now := r.clock().UTC()
	return &model.BranchDescriptor{
		ID:              uuid.NewString(),
		RepoID:          branch.RepoID,
		Name:            branch.Name + "-fork-" + suffix,
		Description:     "forked from " + branch.Name + " at " + parentHash,
		LatestParamsCID: branch.LatestParamsCID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
