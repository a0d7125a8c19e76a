package bdgr

import (
	"context"

	"github.com/dgraph-io/badger"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/store"
)

type branchStore struct {
	run   runner
	clock store.Clock
}

func (b *branchStore) Get(ctx context.Context, id string) (*model.BranchDescriptor, error) {
	if id == "" {
		return nil, store.IDIsRequired
	}
	var branch model.BranchDescriptor
	err := b.run.View(func(txn *badger.Txn) error {
		return getRecord(txn, pfxBranch+id, &branch, store.BranchNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

func (b *branchStore) Create(ctx context.Context, branch *model.BranchDescriptor) error {
	if branch.ID == "" {
		return store.IDIsRequired
	}
	return b.run.Update(func(txn *badger.Txn) error {
		has, err := hasKey(txn, pfxBranch+branch.ID)
		if err != nil {
			return err
		}
		if has {
			return store.BranchAlreadyExists
		}
		if branch.CreatedAt.IsZero() {
			branch.CreatedAt = b.clock().UTC()
		}
		branch.UpdatedAt = b.clock().UTC()
		return putRecord(txn, pfxBranch+branch.ID, branch)
	})
}

func (b *branchStore) Update(ctx context.Context, branch *model.BranchDescriptor) error {
	if branch.ID == "" {
		return store.IDIsRequired
	}
	return b.run.Update(func(txn *badger.Txn) error {
		has, err := hasKey(txn, pfxBranch+branch.ID)
		if err != nil {
			return err
		}
		if !has {
			return store.BranchNotFound
		}
		branch.UpdatedAt = b.clock().UTC()
		return putRecord(txn, pfxBranch+branch.ID, branch)
	})
}

func (b *branchStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return store.IDIsRequired
	}
	return b.run.Update(func(txn *badger.Txn) error {
		has, err := hasKey(txn, pfxBranch+id)
		if err != nil {
			return err
		}
		if !has {
			return store.BranchNotFound
		}
		return txn.Delete([]byte(pfxBranch + id))
	})
}

func (b *branchStore) ListByRepo(ctx context.Context, repoID string) ([]model.BranchDescriptor, error) {
	var branches []model.BranchDescriptor
	err := b.run.View(func(txn *badger.Txn) error {
		return forEachValue(txn, pfxBranch, func(val []byte) error {
			var branch model.BranchDescriptor
			if e := jsoniter.Unmarshal(val, &branch); e != nil {
				return e
			}
			if branch.RepoID == repoID {
				branches = append(branches, branch)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return branches, nil
}
