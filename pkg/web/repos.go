package web

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/oneconcern/paramon/pkg/errors"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/status"
	"github.com/oneconcern/paramon/pkg/store"
)

/* repository management handlers */

// HandleCreateRepo registers a repository owned by the caller
func (s *Server) HandleCreateRepo() http.HandlerFunc {
	type request struct {
		ID            string             `json:"id"`
		Name          string             `json:"name"`
		Description   string             `json:"description"`
		CommitPolicy  model.CommitPolicy `json:"commitPolicy"`
		WriteAccess   []string           `json:"writeAccess"`
		AdminAccess   []string           `json:"adminAccess"`
		DefaultBranch string             `json:"defaultBranch"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, s.l, status.ErrValidation.WrapMsg("malformed request body: %v", err))
			return
		}
		repo := &model.RepoDescriptor{
			ID:            req.ID,
			Name:          req.Name,
			Description:   req.Description,
			Owner:         s.identity(r),
			WriteAccess:   req.WriteAccess,
			AdminAccess:   req.AdminAccess,
			CommitPolicy:  req.CommitPolicy,
			DefaultBranch: req.DefaultBranch,
		}
		if repo.ID == "" {
			repo.ID = uuid.NewString()
		}
		if repo.CommitPolicy == "" {
			repo.CommitPolicy = model.CommitPolicyFork
		}
		if err := model.ValidateRepo(*repo); err != nil {
			writeError(w, s.l, status.ErrValidation.Wrap(err))
			return
		}
		if err := s.stores.Repos().Create(r.Context(), repo); err != nil {
			if errors.Is(err, store.RepoAlreadyExists) {
				err = status.ErrConflict.WrapMsg("repo %s already exists", repo.ID)
			}
			writeError(w, s.l, err)
			return
		}
		writeJSON(w, http.StatusCreated, repo)
	}
}

// HandleGetRepo returns one repository descriptor
func (s *Server) HandleGetRepo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repo, err := s.stores.Repos().Get(r.Context(), chi.URLParam(r, "repoID"))
		if err != nil {
			if errors.Is(err, store.RepoNotFound) {
				err = status.ErrNotFound.WrapMsg("repo not found")
			}
			writeError(w, s.l, err)
			return
		}
		writeJSON(w, http.StatusOK, repo)
	}
}

// HandleCreateBranch opens a new line of commits in a repository
func (s *Server) HandleCreateBranch() http.HandlerFunc {
	type request struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, s.l, status.ErrValidation.WrapMsg("malformed request body: %v", err))
			return
		}
		repo, err := s.repoForWrite(r)
		if err != nil {
			writeError(w, s.l, err)
			return
		}
		branch := &model.BranchDescriptor{
			ID:          req.ID,
			RepoID:      repo.ID,
			Name:        req.Name,
			Description: req.Description,
		}
		if branch.ID == "" {
			branch.ID = uuid.NewString()
		}
		if err := model.ValidateBranch(*branch); err != nil {
			writeError(w, s.l, status.ErrValidation.Wrap(err))
			return
		}
		if err := s.stores.Branches().Create(r.Context(), branch); err != nil {
			if errors.Is(err, store.BranchAlreadyExists) {
				err = status.ErrConflict.WrapMsg("branch %s already exists", branch.ID)
			}
			writeError(w, s.l, err)
			return
		}
		writeJSON(w, http.StatusCreated, branch)
	}
}

// HandleListBranches lists the branches of a repository
func (s *Server) HandleListBranches() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repoID := chi.URLParam(r, "repoID")
		if _, err := s.stores.Repos().Get(r.Context(), repoID); err != nil {
			if errors.Is(err, store.RepoNotFound) {
				err = status.ErrNotFound.WrapMsg("repo not found")
			}
			writeError(w, s.l, err)
			return
		}
		branches, err := s.stores.Branches().ListByRepo(r.Context(), repoID)
		if err != nil {
			writeError(w, s.l, err)
			return
		}
		writeJSON(w, http.StatusOK, branches)
	}
}

// HandleSetBaseArtifact uploads the base model artifact commits build on.
// Finalization refuses repositories without one.
func (s *Server) HandleSetBaseArtifact() http.HandlerFunc {
	type response struct {
		BaseArtifact string `json:"baseArtifact"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		repo, err := s.repoForWrite(r)
		if err != nil {
			writeError(w, s.l, err)
			return
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, s.l, status.ErrValidation.WrapMsg("malformed multipart body: %v", err))
			return
		}
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()
		artifact, _, err := r.FormFile("artifact")
		if err != nil {
			writeError(w, s.l, status.ErrValidation.WrapMsg("missing artifact part"))
			return
		}
		defer func() {
			_ = artifact.Close()
		}()

		res, err := s.blobs.Add(r.Context(), artifact)
		if err != nil {
			writeError(w, s.l, err)
			return
		}
		ref := &model.BlobRef{CID: res.CID, URI: model.BlobURI(res.CID), Size: res.Size}
		if err := s.stores.BlobRefs().Upsert(r.Context(), ref); err != nil {
			writeError(w, s.l, err)
			return
		}

		repo.BaseArtifact = res.CID
		if err := s.stores.Repos().Update(r.Context(), repo); err != nil {
			writeError(w, s.l, err)
			return
		}
		writeJSON(w, http.StatusOK, response{BaseArtifact: res.CID})
	}
}

// repoForWrite loads the requested repository and checks the caller may
// write to it
func (s *Server) repoForWrite(r *http.Request) (*model.RepoDescriptor, error) {
	repo, err := s.stores.Repos().Get(r.Context(), chi.URLParam(r, "repoID"))
	if err != nil {
		if errors.Is(err, store.RepoNotFound) {
			return nil, status.ErrNotFound.WrapMsg("repo not found")
		}
		return nil, err
	}
	identity := s.identity(r)
	if !repo.HasWriteAccess(identity) {
		return nil, status.ErrAuthorization.WrapMsg("%s has no write access to repo %s", identity, repo.ID)
	}
	return repo, nil
}
