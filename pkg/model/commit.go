package model

import (
	"fmt"
	"time"
)

// GenesisCommitHash is the synthetic parent hash used for a branch's first commit
const GenesisCommitHash = "_GENESIS_COMMIT_"

// CommitMetrics are the training metrics recorded with a commit
type CommitMetrics struct {
	Accuracy float64 `json:"accuracy" yaml:"accuracy"`
	Loss     float64 `json:"loss" yaml:"loss"`
}

// ProofArtifact is the triple of content identifiers making up a
// zero-knowledge training proof. The combination is globally unique.
type ProofArtifact struct {
	ProofCID           string `json:"proofCid" yaml:"proofCid"`
	SettingsCID        string `json:"settingsCid" yaml:"settingsCid"`
	VerificationKeyCID string `json:"verificationKeyCid" yaml:"verificationKeyCid"`
	_                  struct{}
}

// TripleKey renders the triple as a single uniqueness key
func (p ProofArtifact) TripleKey() string {
	return p.ProofCID + "/" + p.SettingsCID + "/" + p.VerificationKeyCID
}

// IsZero tells whether no proof artifact was recorded
func (p ProofArtifact) IsZero() bool {
	return p.ProofCID == "" && p.SettingsCID == "" && p.VerificationKeyCID == ""
}

// CommitDescriptor is an immutable commit of model parameters.
//
// A commit is never mutated after creation, only superseded by a child.
type CommitDescriptor struct {
	CommitHash         string        `json:"commitHash" yaml:"commitHash"`
	PreviousCommitHash string        `json:"previousCommitHash" yaml:"previousCommitHash"`
	BranchID           string        `json:"branchId" yaml:"branchId"`
	Committer          string        `json:"committer" yaml:"committer"`
	Message            string        `json:"message" yaml:"message"`
	ParamHash          string        `json:"paramHash" yaml:"paramHash"`
	Architecture       string        `json:"architecture" yaml:"architecture"`
	Metrics            CommitMetrics `json:"metrics" yaml:"metrics"`
	Verified           bool          `json:"verified" yaml:"verified"`
	ParamsCID          string        `json:"paramsCid" yaml:"paramsCid"`
	Proof              ProofArtifact `json:"proof,omitempty" yaml:"proof,omitempty"`
	IsDeleted          bool          `json:"isDeleted,omitempty" yaml:"isDeleted,omitempty"`
	CreatedAt          time.Time     `json:"createdAt" yaml:"createdAt"`
	_                  struct{}
}

// ValidateCommit checks the descriptor fields required at finalize time
func ValidateCommit(commit CommitDescriptor) error {
	if commit.CommitHash == "" {
		return fmt.Errorf("empty field: commit hash is empty")
	}
	if commit.BranchID == "" {
		return fmt.Errorf("empty field: commit branch id is empty")
	}
	if commit.Message == "" {
		return fmt.Errorf("empty field: commit message is empty")
	}
	if commit.ParamHash == "" {
		return fmt.Errorf("empty field: commit param hash is empty")
	}
	if commit.Architecture == "" {
		return fmt.Errorf("empty field: commit architecture is empty")
	}
	return nil
}
