package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatusOrdering(t *testing.T) {
	assert.True(t, StatusInitiated.CanAdvanceTo(StatusZKMLVerified))
	assert.True(t, StatusZKMLVerified.CanAdvanceTo(StatusZKMLUploaded))
	assert.True(t, StatusZKMLUploaded.CanAdvanceTo(StatusParamsUploaded))
	assert.True(t, StatusParamsUploaded.CanAdvanceTo(StatusFinalized))

	// no skips
	assert.False(t, StatusInitiated.CanAdvanceTo(StatusZKMLUploaded))
	assert.False(t, StatusInitiated.CanAdvanceTo(StatusFinalized))

	// no rewinds
	assert.False(t, StatusParamsUploaded.CanAdvanceTo(StatusZKMLVerified))
	assert.False(t, StatusFinalized.CanAdvanceTo(StatusInitiated))

	// error is reachable from anywhere but a finalized session
	assert.True(t, StatusInitiated.CanAdvanceTo(StatusError))
	assert.True(t, StatusParamsUploaded.CanAdvanceTo(StatusError))
	assert.False(t, StatusFinalized.CanAdvanceTo(StatusError))
}

func TestSessionUsable(t *testing.T) {
	now := time.Now()
	s := SessionDescriptor{
		Status:    StatusZKMLVerified,
		ExpiresAt: now.Add(time.Minute),
	}
	assert.True(t, s.Usable(StatusZKMLVerified, now))
	assert.False(t, s.Usable(StatusInitiated, now))

	s.Consumed = true
	assert.False(t, s.Usable(StatusZKMLVerified, now))

	s.Consumed = false
	s.ExpiresAt = now.Add(-time.Second)
	assert.False(t, s.Usable(StatusZKMLVerified, now))
}

func TestBlockRemaining(t *testing.T) {
	now := time.Now()
	b := BlockDescriptor{Identity: "wallet-1", BlockedUntil: now.Add(90 * time.Second)}
	assert.True(t, b.Active(now))
	assert.Equal(t, 90*time.Second, b.Remaining(now))

	b.BlockedUntil = now.Add(-time.Second)
	assert.False(t, b.Active(now))
	assert.Zero(t, b.Remaining(now))
}

func TestProofArtifactTripleKey(t *testing.T) {
	p := ProofArtifact{ProofCID: "a", SettingsCID: "b", VerificationKeyCID: "c"}
	assert.Equal(t, "a/b/c", p.TripleKey())
	assert.False(t, p.IsZero())
	assert.True(t, ProofArtifact{}.IsZero())
}
