// Package bdgr implements the persistence gateway on top of badger.
//
// All record kinds share a single badger DB, partitioned by key prefix.
// Uniqueness domains (commit hash, parameter hash, proof triple) are
// enforced with index keys written in the same badger transaction as the
// record; badger's conflict detection at commit time is the serialization
// point for racing writers.
package bdgr

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/paramon/pkg/store"
)

const (
	pfxRepo     = "repo:"
	pfxBranch   = "branch:"
	pfxCommit   = "commit:"
	pfxSession  = "session:"
	pfxBlock    = "block:"
	pfxProof    = "proof:"
	pfxBlobRef  = "blobref:"
	pfxParamIdx = "idx:param:"
	pfxChildIdx = "idx:child:" // idx:child:<branchID>:<parentHash>:<commitHash>
)

func makeBadgerDb(dir string) (*badger.DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		log.Println("mkdir -p", dir, err)
	}
	bopts := badger.DefaultOptions(dir).WithLogger(nil)
	return badger.Open(bopts)
}

// New creates a badger-backed persistence gateway rooted at baseDir
func New(baseDir string, opts ...Option) store.Store {
	if baseDir == "" {
		baseDir = ".paramon"
	}
	s := &metaStore{
		baseDir: baseDir,
		clock:   time.Now,
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// Option to configure the badger store
type Option func(*metaStore)

// WithClock overrides the time source, for tests
func WithClock(clock store.Clock) Option {
	return func(s *metaStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

type metaStore struct {
	baseDir string
	db      *badger.DB
	clock   store.Clock
	init    sync.Once
	close   sync.Once
}

func (s *metaStore) Initialize() error {
	var err error
	s.init.Do(func() {
		var db *badger.DB
		db, err = makeBadgerDb(s.baseDir)
		if err != nil {
			return
		}
		s.db = db
	})
	return err
}

func (s *metaStore) Close() error {
	var err error
	s.close.Do(func() {
		if s.db != nil {
			err = s.db.Close()
			if err == nil {
				s.db = nil
			}
		}
	})
	return err
}

func (s *metaStore) Repos() store.RepoStore       { return &repoStore{run: dbRunner{s.db}, clock: s.clock} }
func (s *metaStore) Branches() store.BranchStore  { return &branchStore{run: dbRunner{s.db}, clock: s.clock} }
func (s *metaStore) Commits() store.CommitStore   { return &commitStore{run: dbRunner{s.db}, clock: s.clock} }
func (s *metaStore) Sessions() store.SessionStore { return &sessionStore{run: dbRunner{s.db}, clock: s.clock} }
func (s *metaStore) Blocks() store.BlockStore     { return &blockStore{run: dbRunner{s.db}} }
func (s *metaStore) Proofs() store.ProofStore     { return &proofStore{run: dbRunner{s.db}} }
func (s *metaStore) BlobRefs() store.BlobRefStore { return &blobRefStore{run: dbRunner{s.db}, clock: s.clock} }

// Tx runs fn against stores bound to a single badger update transaction
func (s *metaStore) Tx(ctx context.Context, fn func(store.Tx) error) error {
	return rewriteConflict(s.db.Update(func(txn *badger.Txn) error {
		return fn(&txStores{run: txnRunner{txn}, clock: s.clock})
	}))
}

// rewriteConflict translates badger's commit-time conflict into the
// gateway sentinel, so callers never see a backend error
func rewriteConflict(err error) error {
	if err == badger.ErrConflict {
		return store.TxConflict
	}
	return err
}

type txStores struct {
	run   txnRunner
	clock store.Clock
}

func (t *txStores) Repos() store.RepoStore       { return &repoStore{run: t.run, clock: t.clock} }
func (t *txStores) Branches() store.BranchStore  { return &branchStore{run: t.run, clock: t.clock} }
func (t *txStores) Commits() store.CommitStore   { return &commitStore{run: t.run, clock: t.clock} }
func (t *txStores) Sessions() store.SessionStore { return &sessionStore{run: t.run, clock: t.clock} }
func (t *txStores) Proofs() store.ProofStore     { return &proofStore{run: t.run} }
func (t *txStores) BlobRefs() store.BlobRefStore { return &blobRefStore{run: t.run, clock: t.clock} }

// runner abstracts "one-shot badger txn" vs "bound to an enclosing txn"
type runner interface {
	View(func(*badger.Txn) error) error
	Update(func(*badger.Txn) error) error
}

type dbRunner struct {
	db *badger.DB
}

func (r dbRunner) View(fn func(*badger.Txn) error) error { return r.db.View(fn) }

func (r dbRunner) Update(fn func(*badger.Txn) error) error {
	return rewriteConflict(r.db.Update(fn))
}

type txnRunner struct {
	txn *badger.Txn
}

func (r txnRunner) View(fn func(*badger.Txn) error) error   { return fn(r.txn) }
func (r txnRunner) Update(fn func(*badger.Txn) error) error { return fn(r.txn) }

func getRecord(txn *badger.Txn, key string, out interface{}, notFound error) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return notFound
		}
		return err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	return jsoniter.Unmarshal(data, out)
}

func putRecord(txn *badger.Txn, key string, v interface{}) error {
	data, err := jsoniter.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

func hasKey(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func forEachValue(txn *badger.Txn, prefix string, each func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	defer it.Close()

	pref := []byte(prefix)
	for it.Seek(pref); it.ValidForPrefix(pref); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := each(val); err != nil {
			return err
		}
	}
	return nil
}

func forEachKey(txn *badger.Txn, prefix string, each func(key string) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	pref := []byte(prefix)
	for it.Seek(pref); it.ValidForPrefix(pref); it.Next() {
		if err := each(string(it.Item().Key())); err != nil {
			return err
		}
	}
	return nil
}
