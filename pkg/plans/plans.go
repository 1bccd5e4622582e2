package plans

import (
	"strings"
)

// Tier represents a subscription plan tier
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierTeam Tier = "team"
)

// Quota holds the per-project limits attached to a plan tier
type Quota struct {
	// MaxCollaborators counts non-owner grants on a single project
	MaxCollaborators int `json:"max_collaborators" yaml:"max_collaborators"`
}

// ParseTier normalizes a plan name. Unrecognized names map to TierFree.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPro:
		return TierPro
	case TierTeam:
		return TierTeam
	default:
		return TierFree
	}
}

// DefaultQuota returns the built-in quota for a tier
func DefaultQuota(tier Tier) Quota {
	switch tier {
	case TierFree:
		return Quota{MaxCollaborators: 0}
	case TierPro:
		return Quota{MaxCollaborators: 3}
	case TierTeam:
		return Quota{MaxCollaborators: 10}
	default:
		// Unknown plans get the free tier's limits
		return Quota{MaxCollaborators: 0}
	}
}

// MaxCollaborators returns the built-in collaborator limit for a tier
func MaxCollaborators(tier Tier) int {
	return DefaultQuota(tier).MaxCollaborators
}
