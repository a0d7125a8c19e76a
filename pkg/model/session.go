package model

import "time"

// SessionStatus is the position of a commit creation session in the
// protocol state machine.
type SessionStatus string

// Session states, in strict forward order. StatusError is a side-terminal
// reachable from any non-finalized state.
const (
	StatusInitiated      SessionStatus = "INITIATED"
	StatusZKMLVerified   SessionStatus = "ZKML_VERIFIED"
	StatusZKMLUploaded   SessionStatus = "ZKML_UPLOADED"
	StatusParamsUploaded SessionStatus = "PARAMS_UPLOADED"
	StatusFinalized      SessionStatus = "FINALIZED"
	StatusError          SessionStatus = "ERROR"
)

var stageOrder = map[SessionStatus]int{
	StatusInitiated:      0,
	StatusZKMLVerified:   1,
	StatusZKMLUploaded:   2,
	StatusParamsUploaded: 3,
	StatusFinalized:      4,
}

// CanAdvanceTo tells whether a transition respects the forward-only stage ordering
func (s SessionStatus) CanAdvanceTo(next SessionStatus) bool {
	if next == StatusError {
		return s != StatusFinalized
	}
	cur, ok := stageOrder[s]
	if !ok {
		return false
	}
	nxt, ok := stageOrder[next]
	if !ok {
		return false
	}
	return nxt == cur+1
}

// SessionDescriptor tracks one in-flight commit creation attempt.
//
// Staged CIDs accumulate as the protocol advances; they are the
// compensation targets when the attempt is abandoned.
type SessionDescriptor struct {
	ID                 string        `json:"id" yaml:"id"`
	JTI                string        `json:"jti" yaml:"jti"`
	Identity           string        `json:"identity" yaml:"identity"`
	RepoID             string        `json:"repoId" yaml:"repoId"`
	BranchID           string        `json:"branchId" yaml:"branchId"`
	ParentCommitHash   string        `json:"parentCommitHash" yaml:"parentCommitHash"`
	Status             SessionStatus `json:"status" yaml:"status"`
	Consumed           bool          `json:"consumed" yaml:"consumed"`
	ExpiresAt          time.Time     `json:"expiresAt" yaml:"expiresAt"`
	ProofCID           string        `json:"proofCid,omitempty" yaml:"proofCid,omitempty"`
	SettingsCID        string        `json:"settingsCid,omitempty" yaml:"settingsCid,omitempty"`
	VerificationKeyCID string        `json:"verificationKeyCid,omitempty" yaml:"verificationKeyCid,omitempty"`
	ParamsCID          string        `json:"paramsCid,omitempty" yaml:"paramsCid,omitempty"`
	ErrorCount         int           `json:"errorCount,omitempty" yaml:"errorCount,omitempty"`
	LastErrorAt        time.Time     `json:"lastErrorAt,omitempty" yaml:"lastErrorAt,omitempty"`
	CreatedAt          time.Time     `json:"createdAt" yaml:"createdAt"`
	_                  struct{}
}

// Expired tells whether the session may no longer advance
func (s *SessionDescriptor) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}

// Usable tells whether the session may advance from the expected stage
func (s *SessionDescriptor) Usable(expected SessionStatus, now time.Time) bool {
	return !s.Consumed && s.Status == expected && !s.Expired(now)
}

// StagedProof returns the proof artifact staged so far, if any
func (s *SessionDescriptor) StagedProof() ProofArtifact {
	return ProofArtifact{
		ProofCID:           s.ProofCID,
		SettingsCID:        s.SettingsCID,
		VerificationKeyCID: s.VerificationKeyCID,
	}
}

// BlockDescriptor records a temporary initiation block on an identity
type BlockDescriptor struct {
	Identity     string    `json:"identity" yaml:"identity"`
	BlockedUntil time.Time `json:"blockedUntil" yaml:"blockedUntil"`
	_            struct{}
}

// Active tells whether the block still applies
func (b *BlockDescriptor) Active(now time.Time) bool {
	return b.BlockedUntil.After(now)
}

// Remaining returns the cooldown left on the block, zero if elapsed
func (b *BlockDescriptor) Remaining(now time.Time) time.Duration {
	if !b.Active(now) {
		return 0
	}
	return b.BlockedUntil.Sub(now)
}
