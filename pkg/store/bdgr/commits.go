package bdgr

import (
	"context"

	"github.com/dgraph-io/badger"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/store"
)

type commitStore struct {
	run   runner
	clock store.Clock
}

func (c *commitStore) Get(ctx context.Context, commitHash string) (*model.CommitDescriptor, error) {
	if commitHash == "" {
		return nil, store.IDIsRequired
	}
	var commit model.CommitDescriptor
	err := c.run.View(func(txn *badger.Txn) error {
		return getRecord(txn, pfxCommit+commitHash, &commit, store.CommitNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &commit, nil
}

// Create persists an immutable commit together with the index keys
// enforcing both uniqueness domains and the child-count predicate.
// All keys land in the same transaction.
func (c *commitStore) Create(ctx context.Context, commit *model.CommitDescriptor) error {
	if commit.CommitHash == "" {
		return store.IDIsRequired
	}
	return c.run.Update(func(txn *badger.Txn) error {
		has, err := hasKey(txn, pfxCommit+commit.CommitHash)
		if err != nil {
			return err
		}
		if has {
			return store.CommitHashExists
		}
		has, err = hasKey(txn, pfxParamIdx+commit.ParamHash)
		if err != nil {
			return err
		}
		if has {
			return store.ParamHashExists
		}

		if commit.CreatedAt.IsZero() {
			commit.CreatedAt = c.clock().UTC()
		}
		if err := putRecord(txn, pfxCommit+commit.CommitHash, commit); err != nil {
			return err
		}
		if err := txn.Set([]byte(pfxParamIdx+commit.ParamHash), []byte(commit.CommitHash)); err != nil {
			return err
		}
		return txn.Set([]byte(childIdxKey(commit.BranchID, commit.PreviousCommitHash, commit.CommitHash)), nil)
	})
}

func (c *commitStore) ListByBranch(ctx context.Context, branchID string) ([]model.CommitDescriptor, error) {
	var commits []model.CommitDescriptor
	err := c.run.View(func(txn *badger.Txn) error {
		return forEachValue(txn, pfxCommit, func(val []byte) error {
			var commit model.CommitDescriptor
			if e := jsoniter.Unmarshal(val, &commit); e != nil {
				return e
			}
			if commit.BranchID == branchID {
				commits = append(commits, commit)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return commits, nil
}

func (c *commitStore) Latest(ctx context.Context, branchID string) (*model.CommitDescriptor, error) {
	var latest *model.CommitDescriptor
	err := c.run.View(func(txn *badger.Txn) error {
		return forEachValue(txn, pfxCommit, func(val []byte) error {
			var commit model.CommitDescriptor
			if e := jsoniter.Unmarshal(val, &commit); e != nil {
				return e
			}
			if commit.BranchID != branchID || commit.IsDeleted {
				return nil
			}
			if latest == nil || commit.CreatedAt.After(latest.CreatedAt) {
				cp := commit
				latest = &cp
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, store.CommitNotFound
	}
	return latest, nil
}

func (c *commitStore) CountChildren(ctx context.Context, branchID, parentCommitHash string) (int, error) {
	count := 0
	prefix := pfxChildIdx + branchID + ":" + parentCommitHash + ":"
	err := c.run.View(func(txn *badger.Txn) error {
		return forEachKey(txn, prefix, func(string) error {
			count++
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (c *commitStore) HasParamHash(ctx context.Context, paramHash string) (bool, error) {
	var has bool
	err := c.run.View(func(txn *badger.Txn) error {
		var e error
		has, e = hasKey(txn, pfxParamIdx+paramHash)
		return e
	})
	return has, err
}
