// Package blob layers content addressing on top of a raw storage.Store.
//
// Keys are derived from the content itself with the blake hash
// (https://en.wikipedia.org/wiki/BLAKE_(hash_function)), so re-uploading
// identical bytes is a deduplicated no-op and removes are idempotent.
package blob

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"

	blake2b "github.com/minio/blake2b-simd"
	"github.com/oneconcern/paramon/pkg/dlogger"
	"github.com/oneconcern/paramon/pkg/storage"
	"go.uber.org/zap"

	units "github.com/docker/go-units"
)

// DefaultMaxObjectSize bounds the size of a single uploaded object (2 GiB)
const DefaultMaxObjectSize = 2 * units.GiB

type errString string

func (e errString) Error() string { return string(e) }

const (
	// ErrObjectTooBig indicates content exceeding the configured size cap
	ErrObjectTooBig errString = "object too big for the blob store"

	// ErrNotFound indicates an absent content identifier
	ErrNotFound errString = "blob not found"
)

// AddResult holds the outcome of an Add operation
type AddResult struct {
	CID   string // content identifier, derived from the bytes
	Size  int64  // bytes written
	Found bool   // the content was already present (dedup no-op)
}

// Store is a content-addressed blob store
type Store interface {
	String() string
	Add(context.Context, io.Reader) (AddResult, error)
	Get(context.Context, string) (io.ReadCloser, error)
	Has(context.Context, string) (bool, error)
	Remove(context.Context, string) error
}

// CIDFromBytes derives the content identifier of a byte buffer
func CIDFromBytes(data []byte) string {
	h := blake2b.Sum512(data)
	return hex.EncodeToString(h[:])
}

// Option to configure the content-addressed store
type Option func(*casStore)

// Logger sets a logger for this store
func Logger(l *zap.Logger) Option {
	return func(s *casStore) {
		s.l = l
	}
}

// MaxObjectSize caps the size of a single object
func MaxObjectSize(size int64) Option {
	return func(s *casStore) {
		if size > 0 {
			s.maxSize = size
		}
	}
}

// New creates a content-addressed store over a raw backend
func New(backend storage.Store, opts ...Option) Store {
	s := &casStore{
		backend: backend,
		maxSize: DefaultMaxObjectSize,
		l:       dlogger.MustNew(dlogger.LogLevelInfo),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

type casStore struct {
	backend storage.Store
	maxSize int64
	l       *zap.Logger
}

func (s *casStore) String() string {
	return "cas@" + s.backend.String()
}

func (s *casStore) Add(ctx context.Context, r io.Reader) (AddResult, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return AddResult{}, err
	}
	if int64(len(data)) > s.maxSize {
		return AddResult{}, ErrObjectTooBig
	}

	cid := CIDFromBytes(data)
	has, err := s.backend.Has(ctx, cid)
	if err != nil {
		return AddResult{}, err
	}
	if has {
		s.l.Debug("blob already present", zap.String("cid", cid))
		return AddResult{CID: cid, Size: int64(len(data)), Found: true}, nil
	}

	if err := s.backend.Put(ctx, cid, bytes.NewReader(data)); err != nil {
		return AddResult{}, err
	}
	s.l.Debug("blob stored", zap.String("cid", cid), zap.Int("size", len(data)))
	return AddResult{CID: cid, Size: int64(len(data))}, nil
}

func (s *casStore) Get(ctx context.Context, cid string) (io.ReadCloser, error) {
	rdr, err := s.backend.Get(ctx, cid)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rdr, nil
}

func (s *casStore) Has(ctx context.Context, cid string) (bool, error) {
	return s.backend.Has(ctx, cid)
}

// Remove deletes content by identifier. Removing an absent CID is a no-op.
func (s *casStore) Remove(ctx context.Context, cid string) error {
	if err := s.backend.Delete(ctx, cid); err != nil && err != storage.ErrNotFound {
		return err
	}
	return nil
}
