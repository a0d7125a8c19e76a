package model

import (
	"fmt"
	"time"
	"unicode"
)

// CommitPolicy decides how a repository reacts when two commits race to
// extend the same parent.
type CommitPolicy string

const (
	// CommitPolicySerial rejects the second writer with a conflict
	CommitPolicySerial CommitPolicy = "SERIAL"

	// CommitPolicyFork transparently creates a new branch for the second writer
	CommitPolicyFork CommitPolicy = "FORK"

	// CommitPolicyMerge is reserved for a future three-way merge.
	// It currently behaves like CommitPolicyFork.
	CommitPolicyMerge CommitPolicy = "MERGE"
)

// RepoDescriptor represents a repository of versioned model parameters
type RepoDescriptor struct {
	ID             string       `json:"id" yaml:"id"`
	Name           string       `json:"name" yaml:"name"`
	Description    string       `json:"description,omitempty" yaml:"description,omitempty"`
	Owner          string       `json:"owner" yaml:"owner"`
	WriteAccess    []string     `json:"writeAccess,omitempty" yaml:"writeAccess,omitempty"`
	AdminAccess    []string     `json:"adminAccess,omitempty" yaml:"adminAccess,omitempty"`
	Contributors   []string     `json:"contributors,omitempty" yaml:"contributors,omitempty"`
	CommitPolicy   CommitPolicy `json:"commitPolicy" yaml:"commitPolicy"`
	DefaultBranch  string       `json:"defaultBranch,omitempty" yaml:"defaultBranch,omitempty"`
	BaseArtifact   string       `json:"baseArtifact,omitempty" yaml:"baseArtifact,omitempty"` // CID of the base model artifact
	CreatedAt      time.Time    `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt      time.Time    `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
	_              struct{}
}

// HasWriteAccess tells whether an identity may create commits in this repository
func (r *RepoDescriptor) HasWriteAccess(identity string) bool {
	if r.Owner == identity {
		return true
	}
	for _, id := range r.WriteAccess {
		if id == identity {
			return true
		}
	}
	return false
}

// IsContributor tells whether an identity is already recorded as a contributor
func (r *RepoDescriptor) IsContributor(identity string) bool {
	for _, id := range r.Contributors {
		if id == identity {
			return true
		}
	}
	return false
}

// ValidateRepo checks the descriptor fields required at creation time
func ValidateRepo(repo RepoDescriptor) error {
	if repo.Name == "" {
		return fmt.Errorf("empty field: repo name is empty")
	}
	if repo.Owner == "" {
		return fmt.Errorf("empty field: repo owner is empty")
	}
	switch repo.CommitPolicy {
	case CommitPolicySerial, CommitPolicyFork, CommitPolicyMerge:
	default:
		return fmt.Errorf("invalid commit policy: %q", repo.CommitPolicy)
	}
	for i, c := range repo.Name {
		if !unicode.IsDigit(c) && !unicode.IsLetter(c) && !unicode.Is(unicode.Hyphen, c) {
			return fmt.Errorf("invalid name: repo name:%s contains unsupported character \"%s\"",
				repo.Name,
				string([]rune(repo.Name)[i]))
		}
	}
	return nil
}
