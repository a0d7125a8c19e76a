package bdgr

import (
	"context"

	"github.com/dgraph-io/badger"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/store"
)

type proofStore struct {
	run runner
}

func (p *proofStore) Has(ctx context.Context, artifact model.ProofArtifact) (bool, error) {
	var has bool
	err := p.run.View(func(txn *badger.Txn) error {
		var e error
		has, e = hasKey(txn, pfxProof+artifact.TripleKey())
		return e
	})
	return has, err
}

// Create records a proof artifact triple; the triple is a global
// uniqueness domain.
func (p *proofStore) Create(ctx context.Context, artifact model.ProofArtifact) error {
	return p.run.Update(func(txn *badger.Txn) error {
		has, err := hasKey(txn, pfxProof+artifact.TripleKey())
		if err != nil {
			return err
		}
		if has {
			return store.ProofExists
		}
		return putRecord(txn, pfxProof+artifact.TripleKey(), artifact)
	})
}
