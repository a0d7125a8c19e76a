package bdgr

import (
	"context"

	"github.com/dgraph-io/badger"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/store"
)

type blockStore struct {
	run runner
}

func (b *blockStore) Get(ctx context.Context, identity string) (*model.BlockDescriptor, error) {
	if identity == "" {
		return nil, store.IDIsRequired
	}
	var block model.BlockDescriptor
	err := b.run.View(func(txn *badger.Txn) error {
		return getRecord(txn, pfxBlock+identity, &block, store.BlockNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (b *blockStore) Upsert(ctx context.Context, block *model.BlockDescriptor) error {
	if block.Identity == "" {
		return store.IDIsRequired
	}
	return b.run.Update(func(txn *badger.Txn) error {
		return putRecord(txn, pfxBlock+block.Identity, block)
	})
}

// Delete is idempotent
func (b *blockStore) Delete(ctx context.Context, identity string) error {
	if identity == "" {
		return store.IDIsRequired
	}
	return b.run.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(pfxBlock + identity))
	})
}

func (b *blockStore) List(ctx context.Context) ([]model.BlockDescriptor, error) {
	var blocks []model.BlockDescriptor
	err := b.run.View(func(txn *badger.Txn) error {
		return forEachValue(txn, pfxBlock, func(val []byte) error {
			var block model.BlockDescriptor
			if e := jsoniter.Unmarshal(val, &block); e != nil {
				return e
			}
			blocks = append(blocks, block)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}
