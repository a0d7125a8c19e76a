// Package store declares the typed record stores making up the
// persistence gateway, together with the atomic transaction primitive
// used by commit finalization.
package store

import (
	"context"
	"time"

	"github.com/oneconcern/paramon/pkg/model"
)

type errorString string

func (e errorString) Error() string { return string(e) }

const (
	// IDIsRequired error whenever an id is expected but not provided
	IDIsRequired errorString = "id is required"

	// RepoNotFound when a repository is not found
	RepoNotFound errorString = "repo not found"

	// RepoAlreadyExists is returned when a repo is expected to not exist yet
	RepoAlreadyExists errorString = "repo already exists"

	// BranchNotFound when a branch is not found
	BranchNotFound errorString = "branch not found"

	// BranchAlreadyExists is returned when a branch is expected to not exist yet
	BranchAlreadyExists errorString = "branch already exists"

	// CommitNotFound when a commit is not found
	CommitNotFound errorString = "commit not found"

	// CommitHashExists is returned when the commit hash uniqueness domain is violated
	CommitHashExists errorString = "commit hash already exists"

	// ParamHashExists is returned when the parameter hash uniqueness domain is violated
	ParamHashExists errorString = "parameter hash already exists"

	// ProofExists is returned when a proof artifact triple was already recorded
	ProofExists errorString = "proof artifact already exists"

	// SessionNotFound when a commit creation session is not found
	SessionNotFound errorString = "session not found"

	// StatusConflict is returned by compare-and-set session updates when the
	// current status differs from the expected one
	StatusConflict errorString = "session status does not match expected status"

	// BlockNotFound when no initiation block exists for an identity
	BlockNotFound errorString = "initiation block not found"

	// BlobRefNotFound when a blob reference is not found
	BlobRefNotFound errorString = "blob reference not found"

	// TxConflict is returned when concurrent transactions raced on the same
	// records; the caller may retry
	TxConflict errorString = "transaction conflict"
)

// A RepoStore manages repository records
type RepoStore interface {
	Get(context.Context, string) (*model.RepoDescriptor, error)
	Create(context.Context, *model.RepoDescriptor) error
	Update(context.Context, *model.RepoDescriptor) error
	Delete(context.Context, string) error
	List(context.Context) ([]model.RepoDescriptor, error)
}

// A BranchStore manages branch records
type BranchStore interface {
	Get(context.Context, string) (*model.BranchDescriptor, error)
	Create(context.Context, *model.BranchDescriptor) error
	Update(context.Context, *model.BranchDescriptor) error
	Delete(context.Context, string) error
	ListByRepo(context.Context, string) ([]model.BranchDescriptor, error)
}

// A CommitStore manages immutable commit records.
//
// Create enforces the global uniqueness of both the commit hash and the
// parameter hash; violations surface as CommitHashExists / ParamHashExists.
type CommitStore interface {
	Get(context.Context, string) (*model.CommitDescriptor, error)
	Create(context.Context, *model.CommitDescriptor) error
	ListByBranch(context.Context, string) ([]model.CommitDescriptor, error)

	// Latest returns the most recent non-deleted commit of a branch,
	// or CommitNotFound when the branch has none
	Latest(context.Context, string) (*model.CommitDescriptor, error)

	// CountChildren counts the commits in a branch whose parent pointer
	// equals the given hash. A count > 0 is the conflict predicate of the
	// graph resolver.
	CountChildren(ctx context.Context, branchID, parentCommitHash string) (int, error)

	// HasParamHash probes the parameter hash uniqueness domain
	HasParamHash(context.Context, string) (bool, error)
}

// A SessionStore manages commit creation session records
type SessionStore interface {
	Get(context.Context, string) (*model.SessionDescriptor, error)
	Create(context.Context, *model.SessionDescriptor) error
	Update(context.Context, *model.SessionDescriptor) error
	Delete(context.Context, string) error
	List(context.Context) ([]model.SessionDescriptor, error)

	// UpdateStatus is a compare-and-set transition: it fails with
	// StatusConflict unless the stored status equals from. mutate, when not
	// nil, is applied to the record inside the same update.
	UpdateStatus(ctx context.Context, id string, from, to model.SessionStatus, mutate func(*model.SessionDescriptor)) error
}

// A BlockStore manages initiation block records keyed by identity
type BlockStore interface {
	Get(context.Context, string) (*model.BlockDescriptor, error)
	Upsert(context.Context, *model.BlockDescriptor) error
	Delete(context.Context, string) error
	List(context.Context) ([]model.BlockDescriptor, error)
}

// A ProofStore manages recorded proof artifact triples
type ProofStore interface {
	Has(context.Context, model.ProofArtifact) (bool, error)
	Create(context.Context, model.ProofArtifact) error
}

// A BlobRefStore manages blob reference records, upserted idempotently by CID
type BlobRefStore interface {
	Get(context.Context, string) (*model.BlobRef, error)
	Upsert(context.Context, *model.BlobRef) error
	Delete(context.Context, string) error
}

// Tx scopes the typed stores to one atomic transaction: either every
// operation commits or none does
type Tx interface {
	Repos() RepoStore
	Branches() BranchStore
	Commits() CommitStore
	Sessions() SessionStore
	Proofs() ProofStore
	BlobRefs() BlobRefStore
}

// Store is the persistence gateway
type Store interface {
	Initialize() error
	Close() error

	Repos() RepoStore
	Branches() BranchStore
	Commits() CommitStore
	Sessions() SessionStore
	Blocks() BlockStore
	Proofs() ProofStore
	BlobRefs() BlobRefStore

	// Tx runs fn atomically. A concurrent-write race surfaces as TxConflict.
	Tx(ctx context.Context, fn func(Tx) error) error
}

// Clock abstracts now() so stores and sweepers are testable
type Clock func() time.Time
