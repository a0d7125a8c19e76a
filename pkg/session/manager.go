// Package session drives the commit creation protocol.
//
// A commit is created through a chain of five operations, each gated by a
// capability token minted by the previous one. The manager owns the
// session state machine, stages uploaded blobs, and finalizes the commit
// in a single store transaction, compensating staged blobs when an
// attempt dies on the way.
package session

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oneconcern/paramon/pkg/blob"
	"github.com/oneconcern/paramon/pkg/dlogger"
	"github.com/oneconcern/paramon/pkg/errors"
	"github.com/oneconcern/paramon/pkg/governor"
	"github.com/oneconcern/paramon/pkg/graph"
	"github.com/oneconcern/paramon/pkg/model"
	"github.com/oneconcern/paramon/pkg/status"
	"github.com/oneconcern/paramon/pkg/store"
	"github.com/oneconcern/paramon/pkg/token"
	"go.uber.org/zap"
)

// Option to configure the manager
type Option func(*Manager)

// Logger sets a logger for the manager
func Logger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.l = l
	}
}

// WithClock overrides the time source, for tests
func WithClock(clock store.Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// SessionTTL overrides the session lifetime, which otherwise follows the
// token TTL
func SessionTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.sessionTTL = ttl
		}
	}
}

// Manager orchestrates commit creation sessions
type Manager struct {
	stores     store.Store
	blobs      blob.Store
	tokens     *token.Codec
	gov        *governor.Governor
	resolver   *graph.Resolver
	sessionTTL time.Duration
	clock      store.Clock
	l          *zap.Logger
}

// New creates a session manager
func New(stores store.Store, blobs blob.Store, tokens *token.Codec, gov *governor.Governor, resolver *graph.Resolver, opts ...Option) *Manager {
	m := &Manager{
		stores:     stores,
		blobs:      blobs,
		tokens:     tokens,
		gov:        gov,
		resolver:   resolver,
		sessionTTL: tokens.TTL(),
		clock:      time.Now,
		l:          dlogger.MustNew(dlogger.LogLevelInfo),
	}
	for _, apply := range opts {
		apply(m)
	}
	return m
}

// InitiateResult is the outcome of a successful session initiation
type InitiateResult struct {
	SessionID        string    `json:"sessionId"`
	ParentCommitHash string    `json:"parentCommitHash"`
	InitiateToken    string    `json:"initiateToken"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

// Initiate opens a commit creation session on a branch.
//
// The parent commit is pinned now: either the caller's explicit choice or
// the branch head at this instant. SERIAL repositories reject up front
// when the parent already has a successor.
func (m *Manager) Initiate(ctx context.Context, identity, repoID, branchID, parentCommitHash string) (*InitiateResult, error) {
	remaining, err := m.gov.Remaining(ctx, identity)
	if err != nil {
		return nil, status.ErrInternal.Wrap(err)
	}
	if remaining > 0 {
		return nil, status.RateLimited(remaining)
	}

	repo, err := m.stores.Repos().Get(ctx, repoID)
	if err != nil {
		if errors.Is(err, store.RepoNotFound) {
			return nil, status.ErrNotFound.WrapMsg("repo %s not found", repoID)
		}
		return nil, status.ErrInternal.Wrap(err)
	}
	if !repo.HasWriteAccess(identity) {
		return nil, status.ErrAuthorization.WrapMsg("%s has no write access to repo %s", identity, repoID)
	}

	branch, err := m.stores.Branches().Get(ctx, branchID)
	if err != nil {
		if errors.Is(err, store.BranchNotFound) {
			return nil, status.ErrNotFound.WrapMsg("branch %s not found", branchID)
		}
		return nil, status.ErrInternal.Wrap(err)
	}
	if branch.RepoID != repoID {
		return nil, status.ErrNotFound.WrapMsg("branch %s not found in repo %s", branchID, repoID)
	}

	parent, err := m.resolver.ResolveParent(ctx, m.stores.Commits(), branchID, parentCommitHash)
	if err != nil {
		return nil, err
	}
	if err := m.resolver.CheckSerial(ctx, m.stores.Commits(), repo, branchID, parent); err != nil {
		return nil, err
	}

	now := m.clock().UTC()
	session := &model.SessionDescriptor{
		ID:               uuid.NewString(),
		JTI:              uuid.NewString(),
		Identity:         identity,
		RepoID:           repoID,
		BranchID:         branchID,
		ParentCommitHash: parent,
		Status:           model.StatusInitiated,
		ExpiresAt:        now.Add(m.sessionTTL),
		CreatedAt:        now,
	}
	if err := m.stores.Sessions().Create(ctx, session); err != nil {
		return nil, status.ErrInternal.Wrap(err)
	}

	scope := token.Context{SessionID: session.ID, Identity: identity, RepoID: repoID, BranchID: branchID}
	signed, expiresAt, err := m.tokens.MintInitiate(scope, session.JTI, parent)
	if err != nil {
		return nil, err
	}

	m.l.Info("session initiated",
		zap.String("session", session.ID),
		zap.String("identity", identity),
		zap.String("repo", repoID),
		zap.String("branch", branchID),
		zap.String("parent", parent))

	return &InitiateResult{
		SessionID:        session.ID,
		ParentCommitHash: parent,
		InitiateToken:    signed,
		ExpiresAt:        expiresAt,
	}, nil
}

// CheckProofResult is the outcome of a successful proof existence check
type CheckProofResult struct {
	ZKMLToken string    `json:"zkmlToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CheckProofExistence verifies the declared proof triple is unseen and
// mints the upload token allow-listing exactly those identifiers.
//
// Presenting a stale or foreign session here earns an initiation block:
// at this stage there is no honest reason to hold a token that does not
// match a live INITIATED session.
func (m *Manager) CheckProofExistence(ctx context.Context, identity, initiateToken, proofCID, settingsCID, vkCID string) (*CheckProofResult, error) {
	triple := model.ProofArtifact{
		ProofCID:           strings.TrimSpace(proofCID),
		SettingsCID:        strings.TrimSpace(settingsCID),
		VerificationKeyCID: strings.TrimSpace(vkCID),
	}
	if triple.ProofCID == "" || triple.SettingsCID == "" || triple.VerificationKeyCID == "" {
		return nil, status.ErrValidation.WrapMsg("proof, settings and verification key CIDs are all required")
	}

	claims, err := m.tokens.VerifyInitiate(initiateToken)
	if err != nil {
		return nil, err
	}
	if claims.Identity != identity {
		return nil, status.ErrToken.WrapMsg("token was not issued to %s", identity)
	}

	session, err := m.usableSession(ctx, claims.SessionID, identity, model.StatusInitiated, true)
	if err != nil {
		return nil, err
	}

	exists, err := m.stores.Proofs().Has(ctx, triple)
	if err != nil {
		return nil, status.ErrInternal.Wrap(err)
	}
	if exists {
		m.failSession(ctx, session.ID, identity)
		return nil, status.ErrConflict.WrapMsg("proof artifact already recorded")
	}

	if err := m.stores.Sessions().UpdateStatus(ctx, session.ID, model.StatusInitiated, model.StatusZKMLVerified, nil); err != nil {
		return nil, m.mapStatusUpdateErr(ctx, session.ID, identity, err)
	}

	scope := token.Context{SessionID: session.ID, Identity: identity, RepoID: session.RepoID, BranchID: session.BranchID}
	signed, expiresAt, err := m.tokens.MintZKML(scope, token.AllowedCIDs{
		Proof:           triple.ProofCID,
		Settings:        triple.SettingsCID,
		VerificationKey: triple.VerificationKeyCID,
	})
	if err != nil {
		return nil, err
	}

	m.l.Info("proof existence check passed",
		zap.String("session", session.ID),
		zap.String("triple", triple.TripleKey()))

	return &CheckProofResult{ZKMLToken: signed, ExpiresAt: expiresAt}, nil
}

// UploadProofsResult is the outcome of a successful proof upload
type UploadProofsResult struct {
	ProofCID           string    `json:"proofCid"`
	SettingsCID        string    `json:"settingsCid"`
	VerificationKeyCID string    `json:"verificationKeyCid"`
	ZKMLReceiptToken   string    `json:"zkmlReceiptToken"`
	ExpiresAt          time.Time `json:"expiresAt"`
}

// UploadProofs stores the proof triple and binds it to the session.
//
// The identifiers of the stored bytes are recomputed server side and
// compared against the allow-list pinned in the zkml token, so swapping
// content after the existence check cannot succeed.
func (m *Manager) UploadProofs(ctx context.Context, identity, initiateToken, zkmlToken string, proof, settings, vk io.Reader) (*UploadProofsResult, error) {
	initiate, err := m.tokens.VerifyInitiate(initiateToken)
	if err != nil {
		return nil, err
	}
	zkml, err := m.tokens.VerifyZKML(zkmlToken)
	if err != nil {
		return nil, err
	}
	if initiate.Identity != identity {
		return nil, status.ErrToken.WrapMsg("token was not issued to %s", identity)
	}
	if !zkml.Context.Matches(initiate.Context) {
		m.failSession(ctx, initiate.SessionID, identity)
		return nil, status.ErrToken.WrapMsg("upload token does not match the session")
	}

	session, err := m.usableSession(ctx, initiate.SessionID, identity, model.StatusZKMLVerified, false)
	if err != nil {
		return nil, err
	}

	staged := make([]blob.AddResult, 0, 3)
	rollback := func() {
		for _, res := range staged {
			if res.Found {
				// pre-existing content is referenced elsewhere, leave it
				continue
			}
			if rerr := m.blobs.Remove(ctx, res.CID); rerr != nil {
				m.l.Warn("failed to reclaim staged blob",
					zap.String("cid", res.CID), zap.Error(rerr))
			}
		}
	}

	uploads := []struct {
		name    string
		r       io.Reader
		allowed string
	}{
		{"proof", proof, zkml.AllowedCIDs.Proof},
		{"settings", settings, zkml.AllowedCIDs.Settings},
		{"verification key", vk, zkml.AllowedCIDs.VerificationKey},
	}
	for _, up := range uploads {
		res, err := m.blobs.Add(ctx, up.r)
		if err != nil {
			rollback()
			if errors.Is(err, blob.ErrObjectTooBig) {
				return nil, err
			}
			return nil, status.ErrInternal.WrapMsg("storing %s blob: %v", up.name, err)
		}
		staged = append(staged, res)
		if res.CID != up.allowed {
			rollback()
			m.failSession(ctx, session.ID, identity)
			return nil, status.ErrCIDMismatch.WrapMsg("%s content does not match the declared identifier", up.name)
		}
	}

	triple := model.ProofArtifact{
		ProofCID:           staged[0].CID,
		SettingsCID:        staged[1].CID,
		VerificationKeyCID: staged[2].CID,
	}

	// the existence check may have raced another session on the same triple
	exists, err := m.stores.Proofs().Has(ctx, triple)
	if err != nil {
		rollback()
		return nil, status.ErrInternal.Wrap(err)
	}
	if exists {
		rollback()
		m.failSession(ctx, session.ID, identity)
		return nil, status.ErrConflict.WrapMsg("proof artifact already recorded")
	}

	now := m.clock().UTC()
	for _, res := range staged {
		ref := &model.BlobRef{CID: res.CID, URI: model.BlobURI(res.CID), Size: res.Size, CreatedAt: now}
		if err := m.stores.BlobRefs().Upsert(ctx, ref); err != nil {
			rollback()
			return nil, status.ErrInternal.Wrap(err)
		}
	}

	err = m.stores.Sessions().UpdateStatus(ctx, session.ID, model.StatusZKMLVerified, model.StatusZKMLUploaded,
		func(s *model.SessionDescriptor) {
			s.ProofCID = triple.ProofCID
			s.SettingsCID = triple.SettingsCID
			s.VerificationKeyCID = triple.VerificationKeyCID
		})
	if err != nil {
		rollback()
		return nil, m.mapStatusUpdateErr(ctx, session.ID, identity, err)
	}

	scope := token.Context{SessionID: session.ID, Identity: identity, RepoID: session.RepoID, BranchID: session.BranchID}
	signed, expiresAt, err := m.tokens.MintZKMLReceipt(scope, triple.ProofCID, triple.SettingsCID, triple.VerificationKeyCID)
	if err != nil {
		return nil, err
	}

	m.l.Info("proof triple uploaded",
		zap.String("session", session.ID),
		zap.String("triple", triple.TripleKey()))

	return &UploadProofsResult{
		ProofCID:           triple.ProofCID,
		SettingsCID:        triple.SettingsCID,
		VerificationKeyCID: triple.VerificationKeyCID,
		ZKMLReceiptToken:   signed,
		ExpiresAt:          expiresAt,
	}, nil
}

// UploadParametersResult is the outcome of a successful parameter upload
type UploadParametersResult struct {
	ParamsCID          string    `json:"paramsCid"`
	ParamsReceiptToken string    `json:"paramsReceiptToken"`
	ExpiresAt          time.Time `json:"expiresAt"`
}

// UploadParameters stores the model parameter blob and binds it to the
// session. A session stages at most one parameter blob.
func (m *Manager) UploadParameters(ctx context.Context, identity, initiateToken, zkmlReceiptToken string, params io.Reader) (*UploadParametersResult, error) {
	initiate, err := m.tokens.VerifyInitiate(initiateToken)
	if err != nil {
		return nil, err
	}
	receipt, err := m.tokens.VerifyZKMLReceipt(zkmlReceiptToken)
	if err != nil {
		return nil, err
	}
	if initiate.Identity != identity {
		return nil, status.ErrToken.WrapMsg("token was not issued to %s", identity)
	}
	if !receipt.Context.Matches(initiate.Context) {
		return nil, status.ErrToken.WrapMsg("receipt token does not match the session")
	}

	session, err := m.usableSession(ctx, initiate.SessionID, identity, model.StatusZKMLUploaded, false)
	if err != nil {
		return nil, err
	}
	if session.ParamsCID != "" {
		m.failSession(ctx, session.ID, identity)
		return nil, status.ErrConflict.WrapMsg("parameters already uploaded for this session")
	}

	res, err := m.blobs.Add(ctx, params)
	if err != nil {
		if errors.Is(err, blob.ErrObjectTooBig) {
			return nil, err
		}
		return nil, status.ErrInternal.WrapMsg("storing parameter blob: %v", err)
	}
	reclaim := func() {
		if res.Found {
			return
		}
		if rerr := m.blobs.Remove(ctx, res.CID); rerr != nil {
			m.l.Warn("failed to reclaim staged blob",
				zap.String("cid", res.CID), zap.Error(rerr))
		}
	}

	ref := &model.BlobRef{CID: res.CID, URI: model.BlobURI(res.CID), Size: res.Size, CreatedAt: m.clock().UTC()}
	if err := m.stores.BlobRefs().Upsert(ctx, ref); err != nil {
		reclaim()
		return nil, status.ErrInternal.Wrap(err)
	}

	err = m.stores.Sessions().UpdateStatus(ctx, session.ID, model.StatusZKMLUploaded, model.StatusParamsUploaded,
		func(s *model.SessionDescriptor) {
			s.ParamsCID = res.CID
		})
	if err != nil {
		reclaim()
		return nil, m.mapStatusUpdateErr(ctx, session.ID, identity, err)
	}

	scope := token.Context{SessionID: session.ID, Identity: identity, RepoID: session.RepoID, BranchID: session.BranchID}
	signed, expiresAt, err := m.tokens.MintParamsReceipt(scope, res.CID)
	if err != nil {
		return nil, err
	}

	m.l.Info("parameters uploaded",
		zap.String("session", session.ID),
		zap.String("cid", res.CID))

	return &UploadParametersResult{
		ParamsCID:          res.CID,
		ParamsReceiptToken: signed,
		ExpiresAt:          expiresAt,
	}, nil
}

// FinalizeRequest carries the commit metadata presented at finalization
type FinalizeRequest struct {
	Identity           string
	InitiateToken      string
	ZKMLReceiptToken   string
	ParamsReceiptToken string
	Message            string
	ParamHash          string
	Architecture       string
	Metrics            model.CommitMetrics
}

// FinalizeResult is the outcome of a successful finalization
type FinalizeResult struct {
	Commit       model.CommitDescriptor  `json:"commit"`
	ForkedBranch *model.BranchDescriptor `json:"forkedBranch,omitempty"`
}

// Finalize creates the commit from the session's staged blobs.
//
// All record writes happen in one store transaction: the proof triple
// registration, the optional fork branch, the commit with its uniqueness
// domains, the branch and repo bumps, and the session consumption. Either
// the commit exists in full or nothing changed.
func (m *Manager) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	initiate, err := m.tokens.VerifyInitiate(req.InitiateToken)
	if err != nil {
		return nil, err
	}
	zkmlReceipt, err := m.tokens.VerifyZKMLReceipt(req.ZKMLReceiptToken)
	if err != nil {
		return nil, err
	}
	paramsReceipt, err := m.tokens.VerifyParamsReceipt(req.ParamsReceiptToken)
	if err != nil {
		return nil, err
	}
	if initiate.Identity != req.Identity {
		return nil, status.ErrToken.WrapMsg("token was not issued to %s", req.Identity)
	}
	if !zkmlReceipt.Context.Matches(initiate.Context) || !paramsReceipt.Context.Matches(initiate.Context) {
		return nil, status.ErrToken.WrapMsg("receipt tokens do not match the session")
	}

	session, err := m.usableSession(ctx, initiate.SessionID, req.Identity, model.StatusParamsUploaded, false)
	if err != nil {
		return nil, err
	}
	if session.ParamsCID != paramsReceipt.ParamsCID || session.StagedProof() != (model.ProofArtifact{
		ProofCID:           zkmlReceipt.ProofCID,
		SettingsCID:        zkmlReceipt.SettingsCID,
		VerificationKeyCID: zkmlReceipt.VerificationKeyCID,
	}) {
		m.failSession(ctx, session.ID, req.Identity)
		return nil, status.ErrToken.WrapMsg("receipt tokens do not match the staged blobs")
	}

	now := m.clock().UTC()
	commit := model.CommitDescriptor{
		CommitHash:         uuid.NewString(),
		PreviousCommitHash: session.ParentCommitHash,
		BranchID:           session.BranchID,
		Committer:          req.Identity,
		Message:            strings.TrimSpace(req.Message),
		ParamHash:          strings.TrimSpace(req.ParamHash),
		Architecture:       strings.TrimSpace(req.Architecture),
		Metrics:            req.Metrics,
		Verified:           true,
		ParamsCID:          session.ParamsCID,
		Proof:              session.StagedProof(),
		CreatedAt:          now,
	}
	if err := model.ValidateCommit(commit); err != nil {
		return nil, status.ErrValidation.Wrap(err)
	}

	repo, err := m.stores.Repos().Get(ctx, session.RepoID)
	if err != nil {
		if errors.Is(err, store.RepoNotFound) {
			return nil, status.ErrNotFound.WrapMsg("repo %s not found", session.RepoID)
		}
		return nil, status.ErrInternal.Wrap(err)
	}
	if repo.BaseArtifact == "" {
		return nil, status.ErrValidation.WrapMsg("repo %s has no base artifact uploaded", repo.ID)
	}

	var result FinalizeResult
	txErr := m.stores.Tx(ctx, func(tx store.Tx) error {
		branch, err := tx.Branches().Get(ctx, session.BranchID)
		if err != nil {
			return err
		}

		if err := tx.Proofs().Create(ctx, commit.Proof); err != nil {
			return err
		}

		placement, err := m.resolver.Place(ctx, tx, repo, branch, session.ParentCommitHash)
		if err != nil {
			return err
		}
		commit.BranchID = placement.BranchID

		if err := tx.Commits().Create(ctx, &commit); err != nil {
			return err
		}

		target := branch
		if placement.Forked != nil {
			target = placement.Forked
		}
		target.LatestParamsCID = commit.ParamsCID
		target.UpdatedAt = now
		if err := tx.Branches().Update(ctx, target); err != nil {
			return err
		}

		repoCopy := *repo
		if !repoCopy.IsContributor(req.Identity) {
			repoCopy.Contributors = append(repoCopy.Contributors, req.Identity)
		}
		repoCopy.UpdatedAt = now
		if err := tx.Repos().Update(ctx, &repoCopy); err != nil {
			return err
		}

		if err := tx.Sessions().UpdateStatus(ctx, session.ID, model.StatusParamsUploaded, model.StatusFinalized,
			func(s *model.SessionDescriptor) {
				s.Consumed = true
			}); err != nil {
			return err
		}

		result = FinalizeResult{Commit: commit, ForkedBranch: placement.Forked}
		return nil
	})
	if txErr != nil {
		return nil, m.mapFinalizeErr(ctx, session, req.Identity, txErr)
	}

	m.l.Info("commit finalized",
		zap.String("session", session.ID),
		zap.String("commit", commit.CommitHash),
		zap.String("branch", commit.BranchID),
		zap.Bool("forked", result.ForkedBranch != nil))

	return &result, nil
}

// usableSession loads a session and checks it may advance from the
// expected stage. blockOnMiss escalates a stale session to an initiation
// block instead of a mere session error.
func (m *Manager) usableSession(ctx context.Context, sessionID, identity string, expected model.SessionStatus, blockOnMiss bool) (*model.SessionDescriptor, error) {
	invalid := func() error {
		if blockOnMiss {
			if berr := m.gov.Block(ctx, identity); berr != nil {
				m.l.Warn("failed to block identity", zap.String("identity", identity), zap.Error(berr))
			}
		} else {
			m.failSession(ctx, sessionID, identity)
		}
		return status.ErrAuthorization.WrapMsg("invalid or expired session")
	}

	session, err := m.stores.Sessions().Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.SessionNotFound) {
			return nil, invalid()
		}
		return nil, status.ErrInternal.Wrap(err)
	}
	if session.Identity != identity || !session.Usable(expected, m.clock()) {
		return nil, invalid()
	}
	return session, nil
}

// failSession records a session error and blocks the identity, best effort
func (m *Manager) failSession(ctx context.Context, sessionID, identity string) {
	if err := m.gov.RecordSessionError(ctx, sessionID, identity); err != nil {
		m.l.Warn("failed to record session error",
			zap.String("session", sessionID), zap.Error(err))
	}
}

func (m *Manager) mapStatusUpdateErr(ctx context.Context, sessionID, identity string, err error) error {
	if errors.Is(err, store.StatusConflict) || errors.Is(err, store.TxConflict) {
		m.failSession(ctx, sessionID, identity)
		return status.ErrConflict.WrapMsg("session advanced concurrently")
	}
	if errors.Is(err, store.SessionNotFound) {
		return status.ErrAuthorization.WrapMsg("invalid or expired session")
	}
	return status.ErrInternal.Wrap(err)
}

// mapFinalizeErr translates transaction failures and reclaims the staged
// blobs when the attempt cannot be retried
func (m *Manager) mapFinalizeErr(ctx context.Context, session *model.SessionDescriptor, identity string, err error) error {
	switch {
	case errors.Is(err, status.ErrSerialConflict):
		m.reclaimStaged(ctx, session)
		m.failSession(ctx, session.ID, identity)
		return err
	case errors.Is(err, store.ProofExists):
		m.reclaimStaged(ctx, session)
		m.failSession(ctx, session.ID, identity)
		return status.ErrConflict.WrapMsg("proof artifact already recorded")
	case errors.Is(err, store.CommitHashExists), errors.Is(err, store.ParamHashExists):
		m.reclaimStaged(ctx, session)
		m.failSession(ctx, session.ID, identity)
		return status.ErrConflict.Wrap(err)
	case errors.Is(err, store.StatusConflict):
		return status.ErrConflict.WrapMsg("session advanced concurrently")
	case errors.Is(err, store.TxConflict):
		// the loser of a store race may retry with the same tokens
		return status.ErrConflict.WrapMsg("concurrent commit on this branch, retry")
	case errors.Is(err, status.ErrInternal), errors.Is(err, status.ErrNotFound):
		return err
	default:
		return status.ErrInternal.Wrap(err)
	}
}

// reclaimStaged removes the session's staged blobs, best effort. The
// sweeper catches whatever is left behind.
func (m *Manager) reclaimStaged(ctx context.Context, session *model.SessionDescriptor) {
	cids := []string{session.ProofCID, session.SettingsCID, session.VerificationKeyCID, session.ParamsCID}
	for _, cid := range cids {
		if cid == "" {
			continue
		}
		if err := m.blobs.Remove(ctx, cid); err != nil {
			m.l.Warn("failed to reclaim staged blob", zap.String("cid", cid), zap.Error(err))
		}
		if err := m.stores.BlobRefs().Delete(ctx, cid); err != nil && !errors.Is(err, store.BlobRefNotFound) {
			m.l.Warn("failed to drop blob reference", zap.String("cid", cid), zap.Error(err))
		}
	}
}
