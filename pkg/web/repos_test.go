package web

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/oneconcern/paramon/pkg/blob"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// walkToFinalize drives a fresh session through upload-params and returns
// the headers finalize expects
func (f *webFixture) walkToFinalize(t *testing.T, base, identity, salt string) map[string]string {
	t.Helper()
	proof, settings, vk := []byte("proof-"+salt), []byte("settings-"+salt), []byte("vk-"+salt)
	params := []byte("params-" + salt)

	rec := f.do(t, http.MethodPost, base+"/initiate", identity, []byte(`{}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var init session.InitiateResult
	decode(t, rec, &init)

	body := fmt.Sprintf(`{"proofCid":%q,"settingsCid":%q,"verificationKeyCid":%q}`,
		blob.CIDFromBytes(proof), blob.CIDFromBytes(settings), blob.CIDFromBytes(vk))
	rec = f.do(t, http.MethodPost, base+"/check-proof", identity, []byte(body),
		map[string]string{HeaderInitiateToken: init.InitiateToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var chk session.CheckProofResult
	decode(t, rec, &chk)

	rec = f.upload(t, http.MethodPost, base+"/upload-proofs", identity,
		map[string][]byte{"proof": proof, "settings": settings, "verificationKey": vk},
		map[string]string{HeaderInitiateToken: init.InitiateToken, HeaderZKMLToken: chk.ZKMLToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var up session.UploadProofsResult
	decode(t, rec, &up)

	rec = f.upload(t, http.MethodPost, base+"/upload-params", identity,
		map[string][]byte{"params": params},
		map[string]string{HeaderInitiateToken: init.InitiateToken, HeaderZKMLReceiptToken: up.ZKMLReceiptToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pu session.UploadParametersResult
	decode(t, rec, &pu)

	return map[string]string{
		HeaderInitiateToken:      init.InitiateToken,
		HeaderZKMLReceiptToken:   up.ZKMLReceiptToken,
		HeaderParamsReceiptToken: pu.ParamsReceiptToken,
	}
}

func TestRepoLifecycleOverHTTP(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(t, http.MethodPost, "/repos", "carol",
		[]byte(`{"name":"bert-weights","description":"fine tunes","commitPolicy":"SERIAL"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var repo model.RepoDescriptor
	decode(t, rec, &repo)
	require.NotEmpty(t, repo.ID)
	assert.Equal(t, "carol", repo.Owner)
	assert.Equal(t, model.CommitPolicySerial, repo.CommitPolicy)

	rec = f.do(t, http.MethodGet, "/repos/"+repo.ID, "carol", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/repos/"+repo.ID+"/branches", "carol", []byte(`{"name":"main"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var branch model.BranchDescriptor
	decode(t, rec, &branch)
	require.NotEmpty(t, branch.ID)
	assert.Equal(t, repo.ID, branch.RepoID)

	rec = f.do(t, http.MethodGet, "/repos/"+repo.ID+"/branches", "carol", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var branches []model.BranchDescriptor
	decode(t, rec, &branches)
	assert.Len(t, branches, 1)

	rec = f.upload(t, http.MethodPut, "/repos/"+repo.ID+"/base-artifact", "carol",
		map[string][]byte{"artifact": []byte("base-model-weights")}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var set struct {
		BaseArtifact string `json:"baseArtifact"`
	}
	decode(t, rec, &set)
	assert.Equal(t, blob.CIDFromBytes([]byte("base-model-weights")), set.BaseArtifact)

	// the API-created repo accepts a full commit walk
	createPath := "/repos/" + repo.ID + "/branches/" + branch.ID + "/commits/create"
	headers := f.walkToFinalize(t, createPath, "carol", "lifecycle")
	rec = f.do(t, http.MethodPost, createPath+"/finalize", "carol",
		[]byte(`{"message":"first","paramHash":"ph-lifecycle","architecture":"bert"}`), headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateRepoValidation(t *testing.T) {
	f := newWebFixture(t)

	// repo names are letters, digits and hyphens only
	rec := f.do(t, http.MethodPost, "/repos", "carol", []byte(`{"name":"has space"}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var apiErr apiError
	decode(t, rec, &apiErr)
	assert.Equal(t, "VALIDATION", apiErr.Code)

	rec = f.do(t, http.MethodPost, "/repos", "carol", []byte(`{"name":"ok","commitPolicy":"CHAOS"}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// duplicate ids conflict
	rec = f.do(t, http.MethodPost, "/repos", "carol", []byte(`{"id":"dup","name":"one"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/repos", "carol", []byte(`{"id":"dup","name":"two"}`), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	decode(t, rec, &apiErr)
	assert.Equal(t, "CONFLICT", apiErr.Code)
}

func TestRepoWriteAccessEnforced(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(t, http.MethodPost, "/repos/r1/branches", "mallory", []byte(`{"name":"side"}`), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	var apiErr apiError
	decode(t, rec, &apiErr)
	assert.Equal(t, "FORBIDDEN", apiErr.Code)

	rec = f.upload(t, http.MethodPut, "/repos/r1/base-artifact", "mallory",
		map[string][]byte{"artifact": []byte("weights")}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFinalizeWithoutBaseArtifact(t *testing.T) {
	f := newWebFixture(t)

	rec := f.do(t, http.MethodPost, "/repos", "carol", []byte(`{"id":"bare","name":"no-base"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/repos/bare/branches", "carol", []byte(`{"id":"bb","name":"main"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	createPath := "/repos/bare/branches/bb/commits/create"
	headers := f.walkToFinalize(t, createPath, "carol", "bare")
	rec = f.do(t, http.MethodPost, createPath+"/finalize", "carol",
		[]byte(`{"message":"m","paramHash":"ph-bare","architecture":"arch"}`), headers)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var apiErr apiError
	decode(t, rec, &apiErr)
	assert.Equal(t, "VALIDATION", apiErr.Code)
}
