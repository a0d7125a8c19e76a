package sweep

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/oneconcern/paramon/pkg/blob"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/storage/localfs"
	"github.com/oneconcern/paramon/pkg/store"
	"github.com/oneconcern/paramon/pkg/store/bdgr"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	stores store.Store
	blobs  blob.Store
	swp    *Sweeper
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }

	h.stores = bdgr.New(t.TempDir(), bdgr.WithClock(clock))
	require.NoError(t, h.stores.Initialize())
	t.Cleanup(func() {
		require.NoError(t, h.stores.Close())
	})

	h.blobs = blob.New(localfs.New(afero.NewMemMapFs()), blob.Logger(zap.NewNop()))
	h.swp = New(h.stores, h.blobs, WithClock(clock), Logger(zap.NewNop()))
	return h
}

func (h *harness) stageBlob(t *testing.T, content string) string {
	t.Helper()
	res, err := h.blobs.Add(context.Background(), bytes.NewReader([]byte(content)))
	require.NoError(t, err)
	ref := &model.BlobRef{CID: res.CID, URI: model.BlobURI(res.CID), Size: res.Size, CreatedAt: h.now}
	require.NoError(t, h.stores.BlobRefs().Upsert(context.Background(), ref))
	return res.CID
}

func (h *harness) addSession(t *testing.T, s model.SessionDescriptor) {
	t.Helper()
	require.NoError(t, h.stores.Sessions().Create(context.Background(), &s))
}

func TestSweepReclaimsExpiredSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	proofCID := h.stageBlob(t, "proof")
	paramsCID := h.stageBlob(t, "params")

	// expired, reclaimed and deleted on sight
	h.addSession(t, model.SessionDescriptor{
		ID:        "dead",
		Identity:  "bob",
		Status:    model.StatusZKMLUploaded,
		ProofCID:  proofCID,
		ParamsCID: paramsCID,
		ExpiresAt: h.now.Add(-2 * time.Hour),
		CreatedAt: h.now.Add(-3 * time.Hour),
	})

	// just expired, goes the same way
	freshCID := h.stageBlob(t, "fresh-proof")
	h.addSession(t, model.SessionDescriptor{
		ID:        "recent",
		Identity:  "bob",
		Status:    model.StatusZKMLUploaded,
		ProofCID:  freshCID,
		ExpiresAt: h.now.Add(-time.Minute),
		CreatedAt: h.now.Add(-time.Hour),
	})

	// still alive, untouched
	liveCID := h.stageBlob(t, "live-proof")
	h.addSession(t, model.SessionDescriptor{
		ID:        "live",
		Identity:  "bob",
		Status:    model.StatusZKMLUploaded,
		ProofCID:  liveCID,
		ExpiresAt: h.now.Add(time.Hour),
		CreatedAt: h.now,
	})

	stats, err := h.swp.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SessionsDeleted)
	assert.Equal(t, 3, stats.BlobsReclaimed)

	_, err = h.stores.Sessions().Get(ctx, "dead")
	require.ErrorIs(t, err, store.SessionNotFound)
	_, err = h.stores.Sessions().Get(ctx, "recent")
	require.ErrorIs(t, err, store.SessionNotFound)

	for _, cid := range []string{proofCID, paramsCID, freshCID} {
		has, err := h.blobs.Has(ctx, cid)
		require.NoError(t, err)
		assert.False(t, has)
	}
	has, err := h.blobs.Has(ctx, liveCID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSweepKeepsFinalizedBlobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	paramsCID := h.stageBlob(t, "committed-params")
	h.addSession(t, model.SessionDescriptor{
		ID:        "done",
		Identity:  "bob",
		Status:    model.StatusFinalized,
		Consumed:  true,
		ParamsCID: paramsCID,
		ExpiresAt: h.now.Add(-2 * time.Hour),
		CreatedAt: h.now.Add(-3 * time.Hour),
	})

	stats, err := h.swp.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SessionsDeleted)
	assert.Zero(t, stats.BlobsReclaimed)

	// the commit's blob survives the session record
	has, err := h.blobs.Has(ctx, paramsCID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSweepDropsStaleErroredSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cid := h.stageBlob(t, "errored-proof")
	h.addSession(t, model.SessionDescriptor{
		ID:          "errored",
		Identity:    "bob",
		Status:      model.StatusError,
		ProofCID:    cid,
		ErrorCount:  1,
		LastErrorAt: h.now.Add(-2 * time.Hour),
		ExpiresAt:   h.now.Add(time.Hour),
		CreatedAt:   h.now.Add(-3 * time.Hour),
	})

	// errored just now, kept until the retention window elapses
	h.addSession(t, model.SessionDescriptor{
		ID:          "just-errored",
		Identity:    "bob",
		Status:      model.StatusError,
		ErrorCount:  1,
		LastErrorAt: h.now.Add(-time.Minute),
		ExpiresAt:   h.now.Add(time.Hour),
		CreatedAt:   h.now,
	})

	stats, err := h.swp.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SessionsDeleted)
	assert.Equal(t, 1, stats.BlobsReclaimed)

	_, err = h.stores.Sessions().Get(ctx, "errored")
	require.ErrorIs(t, err, store.SessionNotFound)
	_, err = h.stores.Sessions().Get(ctx, "just-errored")
	require.NoError(t, err)
}

func TestSweepDropsElapsedBlocks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.stores.Blocks().Upsert(ctx, &model.BlockDescriptor{
		Identity:     "bob",
		BlockedUntil: h.now.Add(-time.Minute),
	}))
	require.NoError(t, h.stores.Blocks().Upsert(ctx, &model.BlockDescriptor{
		Identity:     "alice",
		BlockedUntil: h.now.Add(time.Minute),
	}))

	stats, err := h.swp.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.BlocksDeleted)

	_, err = h.stores.Blocks().Get(ctx, "bob")
	require.ErrorIs(t, err, store.BlockNotFound)
	_, err = h.stores.Blocks().Get(ctx, "alice")
	require.NoError(t, err)
}

func TestSweepIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cid := h.stageBlob(t, "proof")
	h.addSession(t, model.SessionDescriptor{
		ID:        "recent",
		Identity:  "bob",
		Status:    model.StatusZKMLUploaded,
		ProofCID:  cid,
		ExpiresAt: h.now.Add(-time.Minute),
		CreatedAt: h.now.Add(-time.Hour),
	})

	_, err := h.swp.SweepOnce(ctx)
	require.NoError(t, err)

	stats, err := h.swp.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.SessionsDeleted)
	assert.Zero(t, stats.BlobsReclaimed)
}
