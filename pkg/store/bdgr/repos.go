package bdgr

import (
	"context"
	"strings"

	"github.com/dgraph-io/badger"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/store"
)

type repoStore struct {
	run   runner
	clock store.Clock
}

func (r *repoStore) Get(ctx context.Context, id string) (*model.RepoDescriptor, error) {
	if id == "" {
		return nil, store.IDIsRequired
	}
	var repo model.RepoDescriptor
	err := r.run.View(func(txn *badger.Txn) error {
		return getRecord(txn, pfxRepo+id, &repo, store.RepoNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &repo, nil
}

func (r *repoStore) Create(ctx context.Context, repo *model.RepoDescriptor) error {
	if repo.ID == "" {
		return store.IDIsRequired
	}
	return r.run.Update(func(txn *badger.Txn) error {
		has, err := hasKey(txn, pfxRepo+repo.ID)
		if err != nil {
			return err
		}
		if has {
			return store.RepoAlreadyExists
		}
		if repo.CreatedAt.IsZero() {
			repo.CreatedAt = r.clock().UTC()
		}
		repo.UpdatedAt = r.clock().UTC()
		return putRecord(txn, pfxRepo+repo.ID, repo)
	})
}

func (r *repoStore) Update(ctx context.Context, repo *model.RepoDescriptor) error {
	if repo.ID == "" {
		return store.IDIsRequired
	}
	return r.run.Update(func(txn *badger.Txn) error {
		has, err := hasKey(txn, pfxRepo+repo.ID)
		if err != nil {
			return err
		}
		if !has {
			return store.RepoNotFound
		}
		repo.UpdatedAt = r.clock().UTC()
		return putRecord(txn, pfxRepo+repo.ID, repo)
	})
}

// Delete removes a repository and cascades to its branches and their commits
func (r *repoStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return store.IDIsRequired
	}
	return r.run.Update(func(txn *badger.Txn) error {
		has, err := hasKey(txn, pfxRepo+id)
		if err != nil {
			return err
		}
		if !has {
			return store.RepoNotFound
		}

		branchIDs := make(map[string]struct{})
		err = forEachValue(txn, pfxBranch, func(val []byte) error {
			var branch model.BranchDescriptor
			if e := jsoniter.Unmarshal(val, &branch); e != nil {
				return e
			}
			if branch.RepoID == id {
				branchIDs[branch.ID] = struct{}{}
			}
			return nil
		})
		if err != nil {
			return err
		}

		var doomed []string
		err = forEachValue(txn, pfxCommit, func(val []byte) error {
			var commit model.CommitDescriptor
			if e := jsoniter.Unmarshal(val, &commit); e != nil {
				return e
			}
			if _, in := branchIDs[commit.BranchID]; !in {
				return nil
			}
			doomed = append(doomed,
				pfxCommit+commit.CommitHash,
				pfxParamIdx+commit.ParamHash,
				childIdxKey(commit.BranchID, commit.PreviousCommitHash, commit.CommitHash))
			return nil
		})
		if err != nil {
			return err
		}
		for branchID := range branchIDs {
			doomed = append(doomed, pfxBranch+branchID)
		}
		doomed = append(doomed, pfxRepo+id)

		for _, key := range doomed {
			if e := txn.Delete([]byte(key)); e != nil && e != badger.ErrKeyNotFound {
				return e
			}
		}
		return nil
	})
}

func (r *repoStore) List(ctx context.Context) ([]model.RepoDescriptor, error) {
	var repos []model.RepoDescriptor
	err := r.run.View(func(txn *badger.Txn) error {
		return forEachValue(txn, pfxRepo, func(val []byte) error {
			var repo model.RepoDescriptor
			if e := jsoniter.Unmarshal(val, &repo); e != nil {
				return e
			}
			repos = append(repos, repo)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return repos, nil
}

func childIdxKey(branchID, parentHash, commitHash string) string {
	return pfxChildIdx + strings.Join([]string{branchID, parentHash, commitHash}, ":")
}
