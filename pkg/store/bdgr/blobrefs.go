package bdgr

import (
	"context"

	"github.com/dgraph-io/badger"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/store"
)

type blobRefStore struct {
	run   runner
	clock store.Clock
}

func (b *blobRefStore) Get(ctx context.Context, cid string) (*model.BlobRef, error) {
	if cid == "" {
		return nil, store.IDIsRequired
	}
	var ref model.BlobRef
	err := b.run.View(func(txn *badger.Txn) error {
		return getRecord(txn, pfxBlobRef+cid, &ref, store.BlobRefNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// Upsert is idempotent by CID: re-recording a known blob keeps the
// original record untouched.
func (b *blobRefStore) Upsert(ctx context.Context, ref *model.BlobRef) error {
	if ref.CID == "" {
		return store.IDIsRequired
	}
	return b.run.Update(func(txn *badger.Txn) error {
		has, err := hasKey(txn, pfxBlobRef+ref.CID)
		if err != nil {
			return err
		}
		if has {
			return nil
		}
		if ref.CreatedAt.IsZero() {
			ref.CreatedAt = b.clock().UTC()
		}
		return putRecord(txn, pfxBlobRef+ref.CID, ref)
	})
}

// Delete is idempotent
func (b *blobRefStore) Delete(ctx context.Context, cid string) error {
	if cid == "" {
		return store.IDIsRequired
	}
	return b.run.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(pfxBlobRef + cid))
	})
}
