package models

import "fmt"

// Role is the logical function of a provider conversation within a case.
type Role string

// Tier orders the providers tried for a role.
type Tier string

const (
	RoleDialogue Role = "dialogue"
	RoleReviewer Role = "reviewer"

	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
)

// Validate checks that the role is one of the known values.
func (r Role) Validate() error {
	switch r {
	case RoleDialogue, RoleReviewer:
		return nil
	}
	return fmt.Errorf("unknown provider role %q", r)
}

// ChannelID builds the channel identifier used to key independent
// conversation histories, e.g. "dialogue.primary".
func ChannelID(role Role, tier Tier) string {
	return string(role) + "." + string(tier)
}

// CaseChannels returns the fixed set of channels bound to a case:
// dialogue and reviewer, each with primary and fallback tiers. Closing
// them together guarantees a clean history on case start and restart.
func CaseChannels() []string {
	return []string{
		ChannelID(RoleDialogue, TierPrimary),
		ChannelID(RoleDialogue, TierFallback),
		ChannelID(RoleReviewer, TierPrimary),
		ChannelID(RoleReviewer, TierFallback),
	}
}

// ReviewerChannels returns only the reviewer channels. These are closed
// after a completed review so the dialogue channels stay open and the
// user can keep chatting.
func ReviewerChannels() []string {
	return []string{
		ChannelID(RoleReviewer, TierPrimary),
		ChannelID(RoleReviewer, TierFallback),
	}
}
