package web

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oneconcern/paramon/pkg/auth"
	"github.com/oneconcern/paramon/pkg/blob"
	"github.com/oneconcern/paramon/pkg/governor"
	"github.com/oneconcern/paramon/pkg/graph"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/session"
	"github.com/oneconcern/paramon/pkg/storage/localfs"
	"github.com/oneconcern/paramon/pkg/store"
	"github.com/oneconcern/paramon/pkg/store/bdgr"
	"github.com/oneconcern/paramon/pkg/token"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type webFixture struct {
	router http.Handler
	stores store.Store
	gov    *governor.Governor
	now    time.Time
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()

	f := &webFixture{
		now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.stores = bdgr.New(t.TempDir(), bdgr.WithClock(clock))
	require.NoError(t, f.stores.Initialize())
	t.Cleanup(func() {
		require.NoError(t, f.stores.Close())
	})

	blobs := blob.New(localfs.New(afero.NewMemMapFs()), blob.Logger(zap.NewNop()))
	codec := token.New("session-secret", "proof-secret", 10*time.Minute, token.WithClock(clock))
	f.gov = governor.New(f.stores.Blocks(), f.stores.Sessions(),
		governor.WithClock(clock), governor.Logger(zap.NewNop()))
	resolver := graph.New(graph.WithClock(clock), graph.Logger(zap.NewNop()))
	mgr := session.New(f.stores, blobs, codec, f.gov, resolver,
		session.WithClock(clock), session.Logger(zap.NewNop()))

	srv := NewServer(mgr, f.stores, blobs, auth.NewHeader(""), Logger(zap.NewNop()))
	f.router = InitRouter(srv)

	ctx := context.Background()
	require.NoError(t, f.stores.Repos().Create(ctx, &model.RepoDescriptor{
		ID:            "r1",
		Name:          "resnet-weights",
		Owner:         "alice",
		WriteAccess:   []string{"bob"},
		CommitPolicy:  model.CommitPolicyFork,
		DefaultBranch: "b1",
		BaseArtifact:  "base-artifact-cid",
	}))
	require.NoError(t, f.stores.Branches().Create(ctx, &model.BranchDescriptor{
		ID:     "b1",
		RepoID: "r1",
		Name:   "main",
	}))
	return f
}

func (f *webFixture) do(t *testing.T, method, path, identity string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if identity != "" {
		req.Header.Set(auth.DefaultIdentityHeader, identity)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *webFixture) upload(t *testing.T, method, path, identity string, files map[string][]byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, content := range files {
		part, err := mw.CreateFormFile(field, field+".bin")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(auth.DefaultIdentityHeader, identity)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(into))
}

const createBase = "/repos/r1/branches/b1/commits/create"

func TestProtocolOverHTTP(t *testing.T) {
	f := newWebFixture(t)

	proof, settings, vk := []byte("proof-1"), []byte("settings-1"), []byte("vk-1")
	params := []byte("params-1")

	// initiate
	rec := f.do(t, http.MethodPost, createBase+"/initiate", "bob", []byte(`{}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var init session.InitiateResult
	decode(t, rec, &init)
	assert.Equal(t, model.GenesisCommitHash, init.ParentCommitHash)
	require.NotEmpty(t, init.InitiateToken)

	// check proof existence
	body := fmt.Sprintf(`{"proofCid":%q,"settingsCid":%q,"verificationKeyCid":%q}`,
		blob.CIDFromBytes(proof), blob.CIDFromBytes(settings), blob.CIDFromBytes(vk))
	rec = f.do(t, http.MethodPost, createBase+"/check-proof", "bob", []byte(body),
		map[string]string{HeaderInitiateToken: init.InitiateToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var chk session.CheckProofResult
	decode(t, rec, &chk)
	require.NotEmpty(t, chk.ZKMLToken)

	// upload the proof triple
	rec = f.upload(t, http.MethodPost, createBase+"/upload-proofs", "bob",
		map[string][]byte{"proof": proof, "settings": settings, "verificationKey": vk},
		map[string]string{HeaderInitiateToken: init.InitiateToken, HeaderZKMLToken: chk.ZKMLToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var up session.UploadProofsResult
	decode(t, rec, &up)
	require.NotEmpty(t, up.ZKMLReceiptToken)

	// upload the parameters
	rec = f.upload(t, http.MethodPost, createBase+"/upload-params", "bob",
		map[string][]byte{"params": params},
		map[string]string{HeaderInitiateToken: init.InitiateToken, HeaderZKMLReceiptToken: up.ZKMLReceiptToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pu session.UploadParametersResult
	decode(t, rec, &pu)
	require.NotEmpty(t, pu.ParamsReceiptToken)

	// finalize
	rec = f.do(t, http.MethodPost, createBase+"/finalize", "bob",
		[]byte(`{"message":"train run","paramHash":"ph-1","architecture":"resnet50","metrics":{"accuracy":0.93,"loss":0.21}}`),
		map[string]string{
			HeaderInitiateToken:      init.InitiateToken,
			HeaderZKMLReceiptToken:   up.ZKMLReceiptToken,
			HeaderParamsReceiptToken: pu.ParamsReceiptToken,
		})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var fin session.FinalizeResult
	decode(t, rec, &fin)
	assert.Nil(t, fin.ForkedBranch)
	assert.Equal(t, "b1", fin.Commit.BranchID)
	assert.True(t, fin.Commit.Verified)

	// the commit is served back
	rec = f.do(t, http.MethodGet, "/repos/r1/commits/"+fin.Commit.CommitHash, "bob", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/repos/r1/branches/b1/commits/latest", "bob", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var head model.CommitDescriptor
	decode(t, rec, &head)
	assert.Equal(t, fin.Commit.CommitHash, head.CommitHash)

	rec = f.do(t, http.MethodGet, "/repos/r1/branches/b1/commits/", "bob", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var commits []model.CommitDescriptor
	decode(t, rec, &commits)
	assert.Len(t, commits, 1)
}

func TestAuthenticationRequired(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(t, http.MethodPost, createBase+"/initiate", "", []byte(`{}`), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	var apiErr apiError
	decode(t, rec, &apiErr)
	assert.Equal(t, "FORBIDDEN", apiErr.Code)
}

func TestErrorMapping(t *testing.T) {
	f := newWebFixture(t)

	// unknown repo
	rec := f.do(t, http.MethodPost, "/repos/nope/branches/b1/commits/create/initiate", "bob", []byte(`{}`), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	var apiErr apiError
	decode(t, rec, &apiErr)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)

	// malformed body
	rec = f.do(t, http.MethodPost, createBase+"/check-proof", "bob", []byte(`{`),
		map[string]string{HeaderInitiateToken: "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// garbage token
	rec = f.do(t, http.MethodPost, createBase+"/check-proof", "bob",
		[]byte(`{"proofCid":"p","settingsCid":"s","verificationKeyCid":"v"}`),
		map[string]string{HeaderInitiateToken: "garbage"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	decode(t, rec, &apiErr)
	assert.Equal(t, "TOKEN_INVALID", apiErr.Code)
}

func TestRateLimitedResponse(t *testing.T) {
	f := newWebFixture(t)
	require.NoError(t, f.gov.Block(context.Background(), "bob"))

	rec := f.do(t, http.MethodPost, createBase+"/initiate", "bob", []byte(`{}`), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var apiErr apiError
	decode(t, rec, &apiErr)
	assert.Equal(t, "RATE_LIMITED", apiErr.Code)
	assert.Positive(t, apiErr.RetryAfterSeconds)
}

func TestProbes(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/readyz", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
