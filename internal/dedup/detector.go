package dedup

import (
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/qntmpulse/relationship-engine/internal/domain"
)

// ErrMergeConflict is returned when a merge names a primary that is not
// a member of the duplicate group. It is reported, never auto-corrected:
// the caller must re-select a primary.
var ErrMergeConflict = errors.New("merge conflict: primary is not a member of the duplicate group")

// Rule confidences. A pair's confidence is the maximum of its matched
// rules, not their sum: weak signals must not stack into a false positive.
const (
	emailMatchConfidence = 0.95
	phoneMatchConfidence = 0.9
	nameMatchConfidence  = 0.75
)

// Detector finds candidate duplicate groups among relationship profiles.
type Detector struct {
	nameThreshold float64
}

// NewDetector creates a detector. nameThreshold is the minimum token-set
// overlap ratio for a name-similarity match (typically 0.8).
func NewDetector(nameThreshold float64) *Detector {
	return &Detector{nameThreshold: nameThreshold}
}

// pairMatch is one matched candidate pair.
type pairMatch struct {
	a, b       string
	confidence float64
	reasons    []string
}

// Detect returns duplicate groups among the given profiles. suppressed
// holds the member-set keys of groups the user has dismissed (see
// SuppressionKey); those exact sets are never reported again.
//
// The pairwise comparison is bounded by blocking: only pairs sharing an
// email-domain bucket, a phone bucket, or a name-token bucket are
// compared, so the scan stays far below n² on real populations.
func (d *Detector) Detect(profiles []*domain.RelationshipProfile, suppressed map[string]bool) []domain.DuplicateGroup {
	byKey := make(map[string]*domain.RelationshipProfile, len(profiles))
	for _, p := range profiles {
		byKey[p.ContactKey] = p
	}

	pairs := d.matchPairs(profiles)

	uf := newUnionFind()
	pairInfo := make(map[string]pairMatch, len(pairs))
	for _, pm := range pairs {
		uf.union(pm.a, pm.b)
		pairInfo[pairKey(pm.a, pm.b)] = pm
	}

	var groups []domain.DuplicateGroup
	for _, members := range uf.groups() {
		sort.Strings(members)
		if suppressed[SuppressionKey(members)] {
			continue
		}

		group := domain.DuplicateGroup{GroupID: uuid.New().String()}
		total := 0.0
		for _, key := range members {
			conf, reasons := memberEvidence(key, members, pairInfo)
			group.Profiles = append(group.Profiles, domain.DuplicateContact{
				ProfileID:       key,
				Profile:         byKey[key],
				MatchConfidence: conf,
				MatchReasons:    reasons,
			})
			total += conf
		}
		group.AvgConfidence = total / float64(len(members))
		group.SuggestedPrimary = suggestPrimary(group.Profiles)
		groups = append(groups, group)
	}

	// Stable output order for callers and tests.
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Profiles[0].ProfileID < groups[j].Profiles[0].ProfileID
	})
	return groups
}

// SuppressionKey derives the sticky-dismissal key for an exact member
// set. The same contacts always produce the same key regardless of
// detection order.
func SuppressionKey(memberKeys []string) string {
	sorted := make([]string, len(memberKeys))
	copy(sorted, memberKeys)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

// matchPairs runs the pairwise rules inside each blocking bucket.
func (d *Detector) matchPairs(profiles []*domain.RelationshipProfile) []pairMatch {
	buckets := make(map[string][]*domain.RelationshipProfile)
	add := func(bucket string, p *domain.RelationshipProfile) {
		buckets[bucket] = append(buckets[bucket], p)
	}

	for _, p := range profiles {
		if _, dom := NormalizeEmail(p.ContactEmail); dom != "" {
			add("d:"+dom, p)
		}
		if phone := NormalizePhone(p.Phone); phone != "" {
			add("p:"+phone, p)
		}
		for tok := range NameTokens(p.ContactName) {
			if len(tok) >= 3 {
				add("n:"+tok, p)
			}
		}
	}

	seen := make(map[string]bool)
	var pairs []pairMatch
	for _, bucket := range buckets {
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				a, b := bucket[i], bucket[j]
				if a.ContactKey == b.ContactKey {
					continue
				}
				pk := pairKey(a.ContactKey, b.ContactKey)
				if seen[pk] {
					continue
				}
				seen[pk] = true
				if pm, ok := d.matchPair(a, b); ok {
					pairs = append(pairs, pm)
				}
			}
		}
	}
	return pairs
}

// matchPair applies each matching rule to one candidate pair.
func (d *Detector) matchPair(a, b *domain.RelationshipProfile) (pairMatch, bool) {
	pm := pairMatch{a: a.ContactKey, b: b.ContactKey}

	alocal, adom := NormalizeEmail(a.ContactEmail)
	blocal, bdom := NormalizeEmail(b.ContactEmail)
	if alocal != "" && alocal == blocal && adom == bdom {
		pm.reasons = append(pm.reasons, "email match: "+alocal+"@"+adom)
		pm.confidence = emailMatchConfidence
	}

	if ap, bp := NormalizePhone(a.Phone), NormalizePhone(b.Phone); ap != "" && ap == bp {
		pm.reasons = append(pm.reasons, "phone match: ···"+ap[len(ap)-4:])
		if phoneMatchConfidence > pm.confidence {
			pm.confidence = phoneMatchConfidence
		}
	}

	if overlap := NameOverlap(a.ContactName, b.ContactName); overlap >= d.nameThreshold {
		pm.reasons = append(pm.reasons, "name similarity")
		if nameMatchConfidence > pm.confidence {
			pm.confidence = nameMatchConfidence
		}
	}

	return pm, len(pm.reasons) > 0
}

// memberEvidence collects a member's best pair confidence and the union
// of its match reasons against the rest of the group.
func memberEvidence(key string, members []string, pairs map[string]pairMatch) (float64, []string) {
	best := 0.0
	seen := make(map[string]bool)
	var reasons []string
	for _, other := range members {
		if other == key {
			continue
		}
		pm, ok := pairs[pairKey(key, other)]
		if !ok {
			continue
		}
		if pm.confidence > best {
			best = pm.confidence
		}
		for _, r := range pm.reasons {
			if !seen[r] {
				seen[r] = true
				reasons = append(reasons, r)
			}
		}
	}
	return best, reasons
}

// suggestPrimary picks the member with the richest data, breaking ties
// by interaction count and then key order.
func suggestPrimary(members []domain.DuplicateContact) string {
	best := ""
	bestRichness, bestInteractions := -1, -1
	for _, m := range members {
		if m.Profile == nil {
			continue
		}
		r, n := m.Profile.DataRichness(), m.Profile.TotalInteractions
		switch {
		case r > bestRichness,
			r == bestRichness && n > bestInteractions,
			r == bestRichness && n == bestInteractions && (best == "" || m.ProfileID < best):
			best, bestRichness, bestInteractions = m.ProfileID, r, n
		}
	}
	return best
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}
