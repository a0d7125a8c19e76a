package model

import (
	"fmt"
	"time"
)

// BranchDescriptor represents a line of commits within a repository.
//
// LatestParamsCID points at the last accepted parameter blob so that
// clients can fast-forward clone without walking the commit chain.
type BranchDescriptor struct {
	ID              string    `json:"id" yaml:"id"`
	RepoID          string    `json:"repoId" yaml:"repoId"`
	Name            string    `json:"name" yaml:"name"`
	Description     string    `json:"description,omitempty" yaml:"description,omitempty"`
	LatestParamsCID string    `json:"latestParamsCid,omitempty" yaml:"latestParamsCid,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
	_               struct{}
}

// ValidateBranch checks the descriptor fields required at creation time
func ValidateBranch(branch BranchDescriptor) error {
	if branch.Name == "" {
		return fmt.Errorf("empty field: branch name is empty")
	}
	if branch.RepoID == "" {
		return fmt.Errorf("empty field: branch repo id is empty")
	}
	return nil
}
