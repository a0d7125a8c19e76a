// Package web exposes the commit creation protocol over HTTP.
package web

import (
	"net/http"

	"github.com/oneconcern/paramon/pkg/auth"
	"github.com/oneconcern/paramon/pkg/blob"
	"github.com/oneconcern/paramon/pkg/dlogger"
	"github.com/oneconcern/paramon/pkg/errors"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/session"
	"github.com/oneconcern/paramon/pkg/status"
	"github.com/oneconcern/paramon/pkg/store"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// Token headers chaining the protocol steps together
const (
	HeaderInitiateToken      = "X-Initiate-Token"
	HeaderZKMLToken          = "X-Zkml-Token"
	HeaderZKMLReceiptToken   = "X-Zkml-Receipt-Token"
	HeaderParamsReceiptToken = "X-Params-Receipt-Token"
)

// uploads parsed in memory up to this many bytes before spilling to disk
const multipartMemory = 32 << 20

// Option to configure the server
type Option func(*Server)

// Logger sets a logger for the server
func Logger(l *zap.Logger) Option {
	return func(s *Server) {
		s.l = l
	}
}

// Server holds the handlers of the protocol API
type Server struct {
	mgr    *session.Manager
	stores store.Store
	blobs  blob.Store
	auth   auth.Authable
	l      *zap.Logger
}

// NewServer creates the protocol API server
func NewServer(mgr *session.Manager, stores store.Store, blobs blob.Store, authable auth.Authable, opts ...Option) *Server {
	s := &Server{
		mgr:    mgr,
		stores: stores,
		blobs:  blobs,
		auth:   authable,
		l:      dlogger.MustNew(dlogger.LogLevelInfo),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// Authenticate resolves the caller identity and stores it on the context
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.auth.Principal(r)
		if err != nil {
			writeError(w, s.l, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

func (s *Server) identity(r *http.Request) string {
	identity, _ := auth.IdentityFromContext(r.Context())
	return identity
}

/* protocol handlers */

// HandleInitiate opens a commit creation session
func (s *Server) HandleInitiate() http.HandlerFunc {
	type request struct {
		ParentCommitHash string `json:"parentCommitHash"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, s.l, status.ErrValidation.WrapMsg("malformed request body: %v", err))
				return
			}
		}
		res, err := s.mgr.Initiate(r.Context(), s.identity(r),
			chi.URLParam(r, "repoID"), chi.URLParam(r, "branchID"), req.ParentCommitHash)
		if err != nil {
			writeError(w, s.l, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// HandleCheckProof runs the proof existence check
func (s *Server) HandleCheckProof() http.HandlerFunc {
	type request struct {
		ProofCID           string `json:"proofCid"`
		SettingsCID        string `json:"settingsCid"`
		VerificationKeyCID string `json:"verificationKeyCid"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, s.l, status.ErrValidation.WrapMsg("malformed request body: %v", err))
			return
		}
		res, err := s.mgr.CheckProofExistence(r.Context(), s.identity(r),
			r.Header.Get(HeaderInitiateToken),
			req.ProofCID, req.SettingsCID, req.VerificationKeyCID)
		if err != nil {
			writeError(w, s.l, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleUploadProofs receives the proof triple as a multipart upload
func (s *Server) HandleUploadProofs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, s.l, status.ErrValidation.WrapMsg("malformed multipart body: %v", err))
			return
		}
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()

		parts := make([]interface{ Close() error }, 0, 3)
		defer func() {
			for _, p := range parts {
				_ = p.Close()
			}
		}()

		proof, _, err := r.FormFile("proof")
		if err != nil {
			writeError(w, s.l, status.ErrValidation.WrapMsg("missing proof part"))
			return
		}
		parts = append(parts, proof)
		settings, _, err := r.FormFile("settings")
		if err != nil {
			writeError(w, s.l, status.ErrValidation.WrapMsg("missing settings part"))
			return
		}
		parts = append(parts, settings)
		vk, _, err := r.FormFile("verificationKey")
		if err != nil {
			writeError(w, s.l, status.ErrValidation.WrapMsg("missing verificationKey part"))
			return
		}
		parts = append(parts, vk)

		res, err := s.mgr.UploadProofs(r.Context(), s.identity(r),
			r.Header.Get(HeaderInitiateToken), r.Header.Get(HeaderZKMLToken),
			proof, settings, vk)
		if err != nil {
			writeError(w, s.l, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleUploadParameters receives the model parameter blob
func (s *Server) HandleUploadParameters() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeError(w, s.l, status.ErrValidation.WrapMsg("malformed multipart body: %v", err))
			return
		}
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()

		params, _, err := r.FormFile("params")
		if err != nil {
			writeError(w, s.l, status.ErrValidation.WrapMsg("missing params part"))
			return
		}
		defer func() {
			_ = params.Close()
		}()

		res, err := s.mgr.UploadParameters(r.Context(), s.identity(r),
			r.Header.Get(HeaderInitiateToken), r.Header.Get(HeaderZKMLReceiptToken),
			params)
		if err != nil {
			writeError(w, s.l, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleFinalize creates the commit from the staged session
func (s *Server) HandleFinalize() http.HandlerFunc {
	type request struct {
		Message      string              `json:"message"`
		ParamHash    string              `json:"paramHash"`
		Architecture string              `json:"architecture"`
		Metrics      model.CommitMetrics `json:"metrics"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, s.l, status.ErrValidation.WrapMsg("malformed request body: %v", err))
			return
		}
		res, err := s.mgr.Finalize(r.Context(), session.FinalizeRequest{
			Identity:           s.identity(r),
			InitiateToken:      r.Header.Get(HeaderInitiateToken),
			ZKMLReceiptToken:   r.Header.Get(HeaderZKMLReceiptToken),
			ParamsReceiptToken: r.Header.Get(HeaderParamsReceiptToken),
			Message:            req.Message,
			ParamHash:          req.ParamHash,
			Architecture:       req.Architecture,
			Metrics:            req.Metrics,
		})
		if err != nil {
			writeError(w, s.l, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

/* read handlers */

// HandleListCommits lists the commits of a branch, newest first handled
// client side
func (s *Server) HandleListCommits() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branchID := chi.URLParam(r, "branchID")
		if _, err := s.branchInRepo(r, branchID); err != nil {
			writeError(w, s.l, err)
			return
		}
		commits, err := s.stores.Commits().ListByBranch(r.Context(), branchID)
		if err != nil {
			writeError(w, s.l, err)
			return
		}
		writeJSON(w, http.StatusOK, commits)
	}
}

// HandleGetCommit returns one commit by hash
func (s *Server) HandleGetCommit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		commit, err := s.stores.Commits().Get(r.Context(), chi.URLParam(r, "commitHash"))
		if err != nil {
			if errors.Is(err, store.CommitNotFound) {
				err = status.ErrNotFound.WrapMsg("commit not found")
			}
			writeError(w, s.l, err)
			return
		}
		if commit.IsDeleted {
			writeError(w, s.l, status.ErrNotFound.WrapMsg("commit not found"))
			return
		}
		writeJSON(w, http.StatusOK, commit)
	}
}

// HandleLatestCommit returns the branch head
func (s *Server) HandleLatestCommit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		branchID := chi.URLParam(r, "branchID")
		if _, err := s.branchInRepo(r, branchID); err != nil {
			writeError(w, s.l, err)
			return
		}
		commit, err := s.stores.Commits().Latest(r.Context(), branchID)
		if err != nil {
			if errors.Is(err, store.CommitNotFound) {
				err = status.ErrNotFound.WrapMsg("branch has no commits")
			}
			writeError(w, s.l, err)
			return
		}
		writeJSON(w, http.StatusOK, commit)
	}
}

func (s *Server) branchInRepo(r *http.Request, branchID string) (*model.BranchDescriptor, error) {
	branch, err := s.stores.Branches().Get(r.Context(), branchID)
	if err != nil {
		if errors.Is(err, store.BranchNotFound) {
			return nil, status.ErrNotFound.WrapMsg("branch not found")
		}
		return nil, err
	}
	if branch.RepoID != chi.URLParam(r, "repoID") {
		return nil, status.ErrNotFound.WrapMsg("branch not found in this repo")
	}
	return branch, nil
}

/* probes */

// HandleHealthz is the liveness probe
func (s *Server) HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// HandleReadyz is the readiness probe, it exercises the store
func (s *Server) HandleReadyz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.stores.Repos().List(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
