package session

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/oneconcern/paramon/pkg/blob"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/store"
)

// memStore is an in-memory persistence gateway for manager tests.
// Tx snapshots the maps and restores them when fn fails.
type memStore struct {
	mu       sync.Mutex
	repos    map[string]model.RepoDescriptor
	branches map[string]model.BranchDescriptor
	commits  map[string]model.CommitDescriptor
	sessions map[string]model.SessionDescriptor
	blocks   map[string]model.BlockDescriptor
	proofs   map[string]struct{}
	blobRefs map[string]model.BlobRef
}

func newMemStore() *memStore {
	return &memStore{
		repos:    map[string]model.RepoDescriptor{},
		branches: map[string]model.BranchDescriptor{},
		commits:  map[string]model.CommitDescriptor{},
		sessions: map[string]model.SessionDescriptor{},
		blocks:   map[string]model.BlockDescriptor{},
		proofs:   map[string]struct{}{},
		blobRefs: map[string]model.BlobRef{},
	}
}

func (m *memStore) Initialize() error { return nil }
func (m *memStore) Close() error      { return nil }

func (m *memStore) Repos() store.RepoStore       { return (*memRepos)(m) }
func (m *memStore) Branches() store.BranchStore  { return (*memBranches)(m) }
func (m *memStore) Commits() store.CommitStore   { return (*memCommits)(m) }
func (m *memStore) Sessions() store.SessionStore { return (*memSessions)(m) }
func (m *memStore) Blocks() store.BlockStore     { return (*memBlocks)(m) }
func (m *memStore) Proofs() store.ProofStore     { return (*memProofs)(m) }
func (m *memStore) BlobRefs() store.BlobRefStore { return (*memBlobRefs)(m) }

func (m *memStore) Tx(_ context.Context, fn func(store.Tx) error) error {
	snapshot := m.clone()
	if err := fn(m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *memStore) clone() *memStore {
	c := newMemStore()
	for k, v := range m.repos {
		c.repos[k] = v
	}
	for k, v := range m.branches {
		c.branches[k] = v
	}
	for k, v := range m.commits {
		c.commits[k] = v
	}
	for k, v := range m.sessions {
		c.sessions[k] = v
	}
	for k, v := range m.blocks {
		c.blocks[k] = v
	}
	for k := range m.proofs {
		c.proofs[k] = struct{}{}
	}
	for k, v := range m.blobRefs {
		c.blobRefs[k] = v
	}
	return c
}

func (m *memStore) restore(s *memStore) {
	m.repos = s.repos
	m.branches = s.branches
	m.commits = s.commits
	m.sessions = s.sessions
	m.blocks = s.blocks
	m.proofs = s.proofs
	m.blobRefs = s.blobRefs
}

type memRepos memStore

func (m *memRepos) Get(_ context.Context, id string) (*model.RepoDescriptor, error) {
	r, ok := m.repos[id]
	if !ok {
		return nil, store.RepoNotFound
	}
	return &r, nil
}

func (m *memRepos) Create(_ context.Context, r *model.RepoDescriptor) error {
	if _, ok := m.repos[r.ID]; ok {
		return store.RepoAlreadyExists
	}
	m.repos[r.ID] = *r
	return nil
}

func (m *memRepos) Update(_ context.Context, r *model.RepoDescriptor) error {
	if _, ok := m.repos[r.ID]; !ok {
		return store.RepoNotFound
	}
	m.repos[r.ID] = *r
	return nil
}

func (m *memRepos) Delete(_ context.Context, id string) error {
	delete(m.repos, id)
	return nil
}

func (m *memRepos) List(_ context.Context) ([]model.RepoDescriptor, error) {
	out := make([]model.RepoDescriptor, 0, len(m.repos))
	for _, r := range m.repos {
		out = append(out, r)
	}
	return out, nil
}

type memBranches memStore

func (m *memBranches) Get(_ context.Context, id string) (*model.BranchDescriptor, error) {
	b, ok := m.branches[id]
	if !ok {
		return nil, store.BranchNotFound
	}
	return &b, nil
}

func (m *memBranches) Create(_ context.Context, b *model.BranchDescriptor) error {
	if _, ok := m.branches[b.ID]; ok {
		return store.BranchAlreadyExists
	}
	m.branches[b.ID] = *b
	return nil
}

func (m *memBranches) Update(_ context.Context, b *model.BranchDescriptor) error {
	if _, ok := m.branches[b.ID]; !ok {
		return store.BranchNotFound
	}
	m.branches[b.ID] = *b
	return nil
}

func (m *memBranches) Delete(_ context.Context, id string) error {
	delete(m.branches, id)
	return nil
}

func (m *memBranches) ListByRepo(_ context.Context, repoID string) ([]model.BranchDescriptor, error) {
	var out []model.BranchDescriptor
	for _, b := range m.branches {
		if b.RepoID == repoID {
			out = append(out, b)
		}
	}
	return out, nil
}

type memCommits memStore

func (m *memCommits) Get(_ context.Context, hash string) (*model.CommitDescriptor, error) {
	c, ok := m.commits[hash]
	if !ok {
		return nil, store.CommitNotFound
	}
	return &c, nil
}

func (m *memCommits) Create(_ context.Context, c *model.CommitDescriptor) error {
	if _, ok := m.commits[c.CommitHash]; ok {
		return store.CommitHashExists
	}
	for _, existing := range m.commits {
		if existing.ParamHash == c.ParamHash {
			return store.ParamHashExists
		}
	}
	m.commits[c.CommitHash] = *c
	return nil
}

func (m *memCommits) ListByBranch(_ context.Context, branchID string) ([]model.CommitDescriptor, error) {
	var out []model.CommitDescriptor
	for _, c := range m.commits {
		if c.BranchID == branchID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCommits) Latest(_ context.Context, branchID string) (*model.CommitDescriptor, error) {
	var latest *model.CommitDescriptor
	for _, c := range m.commits {
		c := c
		if c.BranchID != branchID || c.IsDeleted {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = &c
		}
	}
	if latest == nil {
		return nil, store.CommitNotFound
	}
	return latest, nil
}

func (m *memCommits) CountChildren(_ context.Context, branchID, parentHash string) (int, error) {
	n := 0
	for _, c := range m.commits {
		if c.BranchID == branchID && c.PreviousCommitHash == parentHash {
			n++
		}
	}
	return n, nil
}

func (m *memCommits) HasParamHash(_ context.Context, paramHash string) (bool, error) {
	for _, c := range m.commits {
		if c.ParamHash == paramHash {
			return true, nil
		}
	}
	return false, nil
}

type memSessions memStore

func (m *memSessions) Get(_ context.Context, id string) (*model.SessionDescriptor, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.SessionNotFound
	}
	return &s, nil
}

func (m *memSessions) Create(_ context.Context, s *model.SessionDescriptor) error {
	m.sessions[s.ID] = *s
	return nil
}

func (m *memSessions) Update(_ context.Context, s *model.SessionDescriptor) error {
	if _, ok := m.sessions[s.ID]; !ok {
		return store.SessionNotFound
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func (m *memSessions) List(_ context.Context) ([]model.SessionDescriptor, error) {
	out := make([]model.SessionDescriptor, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (m *memSessions) UpdateStatus(_ context.Context, id string, from, to model.SessionStatus, mutate func(*model.SessionDescriptor)) error {
	s, ok := m.sessions[id]
	if !ok {
		return store.SessionNotFound
	}
	if s.Status != from {
		return store.StatusConflict
	}
	s.Status = to
	if mutate != nil {
		mutate(&s)
	}
	m.sessions[id] = s
	return nil
}

type memBlocks memStore

func (m *memBlocks) Get(_ context.Context, identity string) (*model.BlockDescriptor, error) {
	b, ok := m.blocks[identity]
	if !ok {
		return nil, store.BlockNotFound
	}
	return &b, nil
}

func (m *memBlocks) Upsert(_ context.Context, b *model.BlockDescriptor) error {
	m.blocks[b.Identity] = *b
	return nil
}

func (m *memBlocks) Delete(_ context.Context, identity string) error {
	delete(m.blocks, identity)
	return nil
}

func (m *memBlocks) List(_ context.Context) ([]model.BlockDescriptor, error) {
	out := make([]model.BlockDescriptor, 0, len(m.blocks))
	for _, b := range m.blocks {
		out = append(out, b)
	}
	return out, nil
}

type memProofs memStore

func (m *memProofs) Has(_ context.Context, p model.ProofArtifact) (bool, error) {
	_, ok := m.proofs[p.TripleKey()]
	return ok, nil
}

func (m *memProofs) Create(_ context.Context, p model.ProofArtifact) error {
	if _, ok := m.proofs[p.TripleKey()]; ok {
		return store.ProofExists
	}
	m.proofs[p.TripleKey()] = struct{}{}
	return nil
}

type memBlobRefs memStore

func (m *memBlobRefs) Get(_ context.Context, cid string) (*model.BlobRef, error) {
	r, ok := m.blobRefs[cid]
	if !ok {
		return nil, store.BlobRefNotFound
	}
	return &r, nil
}

func (m *memBlobRefs) Upsert(_ context.Context, r *model.BlobRef) error {
	if _, ok := m.blobRefs[r.CID]; !ok {
		m.blobRefs[r.CID] = *r
	}
	return nil
}

func (m *memBlobRefs) Delete(_ context.Context, cid string) error {
	delete(m.blobRefs, cid)
	return nil
}

// memBlob is an in-memory content-addressed store
type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlob() *memBlob {
	return &memBlob{objects: map[string][]byte{}}
}

func (b *memBlob) String() string { return "mem" }

func (b *memBlob) Add(_ context.Context, r io.Reader) (blob.AddResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return blob.AddResult{}, err
	}
	cid := blob.CIDFromBytes(data)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[cid]; ok {
		return blob.AddResult{CID: cid, Size: int64(len(data)), Found: true}, nil
	}
	b.objects[cid] = data
	return blob.AddResult{CID: cid, Size: int64(len(data))}, nil
}

func (b *memBlob) Get(_ context.Context, cid string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[cid]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBlob) Has(_ context.Context, cid string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[cid]
	return ok, nil
}

func (b *memBlob) Remove(_ context.Context, cid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, cid)
	return nil
}
