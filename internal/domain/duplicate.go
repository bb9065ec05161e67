package domain

// DuplicateContact is one member of a duplicate group: the profile plus
// how confidently and why it matched the rest of the group.
type DuplicateContact struct {
	ProfileID       string               `json:"profile_id"`
	Profile         *RelationshipProfile `json:"profile"`
	MatchConfidence float64              `json:"match_confidence"`
	MatchReasons    []string             `json:"match_reasons"`
}

// DuplicateGroup is a set of profiles believed to represent the same
// real-world contact.
//
// Invariants: a group has at least two members, AvgConfidence is the mean
// of member confidences, and SuggestedPrimary is the member with the
// richest data (ties broken by total interactions, then key order).
type DuplicateGroup struct {
	GroupID          string             `json:"group_id"`
	Profiles         []DuplicateContact `json:"profiles"`
	AvgConfidence    float64            `json:"avg_confidence"`
	SuggestedPrimary string             `json:"suggested_primary,omitempty"`
}

// MemberKeys returns the contact keys of all group members.
func (g *DuplicateGroup) MemberKeys() []string {
	keys := make([]string, 0, len(g.Profiles))
	for _, p := range g.Profiles {
		keys = append(keys, p.ProfileID)
	}
	return keys
}

// Contains reports whether the given contact key is a member of the group.
func (g *DuplicateGroup) Contains(contactKey string) bool {
	for _, p := range g.Profiles {
		if p.ProfileID == contactKey {
			return true
		}
	}
	return false
}
