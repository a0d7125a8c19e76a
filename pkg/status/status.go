// Package status declares the error taxonomy shared by the commit
// creation protocol and the layers serving it.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/session, pkg/store
// and pkg/web.
package status

import "github.com/oneconcern/paramon/pkg/errors"

var (
	// ErrValidation indicates a missing or malformed input field
	ErrValidation = errors.New("invalid request")

	// ErrAuthorization indicates the identity has no right to perform the operation
	ErrAuthorization = errors.New("unauthorized")

	// ErrNotFound indicates that a repo, branch or parent commit is absent
	ErrNotFound = errors.New("not found")

	// ErrToken indicates an expired token or one whose claims do not match the session context
	ErrToken = errors.New("invalid or expired token")

	// ErrConflict indicates a duplicate commit, parameter hash or proof artifact
	ErrConflict = errors.New("conflict")

	// ErrSerialConflict indicates the resolved parent already has a child and
	// the repository policy is SERIAL
	ErrSerialConflict = errors.New("parent commit already has a child under SERIAL policy")

	// ErrRateLimited indicates an active initiation block on the identity
	ErrRateLimited = errors.New("initiation blocked")

	// ErrInternal indicates a store or persistence failure
	ErrInternal = errors.New("internal error")

	// ErrCIDMismatch indicates uploaded content whose recomputed CID differs
	// from the allow-list carried by the zkml token
	ErrCIDMismatch = errors.New("security mismatch: uploaded content does not match the CIDs authorized in the token")
)
