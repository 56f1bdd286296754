package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxMetadataURILength is the metadata URI limit in bytes.
const MaxMetadataURILength = 200

// RewardClaim is an immutable record of one reward grant. Repeated claims of
// the same kind are allowed; gating them belongs to whoever grants rewards.
type RewardClaim struct {
	ID            uuid.UUID  `json:"id"`
	Player        Identity   `json:"player"`
	Kind          RewardKind `json:"reward_kind"`
	MetadataURI   string     `json:"metadata_uri"`
	ClaimedAt     time.Time  `json:"claimed_at"`
	RatingAtClaim uint32     `json:"rating_at_claim"`
}

// NewRewardClaim snapshots the profile rating into a new claim.
func NewRewardClaim(player Identity, profile *Profile, kind RewardKind, metadataURI string, now time.Time) (*RewardClaim, error) {
	if !profile.Authorize(player) {
		return nil, ErrUnauthorized
	}
	if !kind.Valid() {
		return nil, ErrInvalidReward
	}
	if len(metadataURI) > MaxMetadataURILength {
		return nil, ErrURITooLong
	}
	if !storableText(metadataURI) {
		return nil, ErrInvalidText
	}
	return &RewardClaim{
		ID:            uuid.New(),
		Player:        player,
		Kind:          kind,
		MetadataURI:   metadataURI,
		ClaimedAt:     now,
		RatingAtClaim: profile.Rating,
	}, nil
}
