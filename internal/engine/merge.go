package engine

import (
	"fmt"

	"github.com/qntmpulse/relationship-engine/internal/dedup"
	"github.com/qntmpulse/relationship-engine/internal/domain"
	"github.com/qntmpulse/relationship-engine/internal/pkg/logger"
)

// ListDuplicateGroups detects candidate duplicate groups over the
// current profiles, excluding dismissed member sets.
func (e *Engine) ListDuplicateGroups() []domain.DuplicateGroup {
	return e.detector.Detect(e.store.ListProfiles(), e.store.Suppressions())
}

// MergeDuplicates consolidates duplicate profiles into the primary.
// The primary must belong to a currently detected duplicate group that
// contains every named duplicate; otherwise ErrMergeConflict is
// returned and nothing changes.
//
// The merge is atomic: aggregate consolidation, profile/lead rewrites,
// duplicate deletion and alert re-keying either all land or are rolled
// back together.
func (e *Engine) MergeDuplicates(primaryKey string, duplicateKeys []string) (*domain.RelationshipProfile, error) {
	if len(duplicateKeys) == 0 {
		return nil, fmt.Errorf("%w: no duplicates named", dedup.ErrMergeConflict)
	}
	for _, k := range duplicateKeys {
		if k == primaryKey {
			return nil, fmt.Errorf("%w: primary listed as its own duplicate", dedup.ErrMergeConflict)
		}
	}

	e.mergeMu.Lock()
	defer e.mergeMu.Unlock()

	group, ok := e.findGroup(primaryKey, duplicateKeys)
	if !ok {
		return nil, dedup.ErrMergeConflict
	}

	primary, ok := e.store.GetProfile(primaryKey)
	if !ok {
		return nil, ErrProfileNotFound
	}
	var duplicates []*domain.RelationshipProfile
	for _, k := range duplicateKeys {
		dup, ok := e.store.GetProfile(k)
		if !ok {
			return nil, fmt.Errorf("%w: duplicate %s", ErrProfileNotFound, k)
		}
		duplicates = append(duplicates, dup)
	}

	// Snapshot for compensating rollback.
	saved := e.snapshotForRollback(primaryKey, duplicateKeys)

	merged := dedup.MergeProfiles(primary, duplicates)
	e.store.UpsertProfile(merged)

	e.agg.Merge(primaryKey, duplicateKeys)

	for _, k := range duplicateKeys {
		e.store.DeleteProfile(k)
		if err := e.store.RekeyAlerts(k, primaryKey); err != nil {
			e.rollbackMerge(saved)
			return nil, fmt.Errorf("rekey alerts: %w", err)
		}
	}

	// Consolidate accumulated keyword signals under the primary.
	e.sigMu.Lock()
	for _, k := range duplicateKeys {
		if sigs := e.signals[k]; len(sigs) > 0 {
			e.signals[primaryKey] = append(e.signals[primaryKey], sigs...)
			delete(e.signals, k)
		}
	}
	e.sigMu.Unlock()

	// Recompute from the consolidated aggregate: scores are never
	// averaged across members.
	e.recompute(primaryKey, identity{})

	logger.Info("duplicates merged",
		"primary", primaryKey, "merged_count", len(duplicateKeys),
		"group_confidence", fmt.Sprintf("%.2f", group.AvgConfidence))

	result, _ := e.store.GetProfile(primaryKey)
	return result, nil
}

// DismissDuplicate suppresses a duplicate group's exact member set from
// all future detection. Sticky across restarts when persistence is
// configured.
func (e *Engine) DismissDuplicate(memberKeys []string) {
	e.store.SuppressDuplicate(dedup.SuppressionKey(memberKeys))
	logger.Info("duplicate group dismissed", "members", len(memberKeys))
}

// findGroup locates the detected group containing every duplicate key
// and verifies the primary is a member.
func (e *Engine) findGroup(primaryKey string, duplicateKeys []string) (domain.DuplicateGroup, bool) {
	for _, g := range e.detector.Detect(e.store.ListProfiles(), e.store.Suppressions()) {
		if !g.Contains(primaryKey) {
			continue
		}
		all := true
		for _, k := range duplicateKeys {
			if !g.Contains(k) {
				all = false
				break
			}
		}
		if all {
			return g, true
		}
	}
	return domain.DuplicateGroup{}, false
}

type mergeRollback struct {
	profiles []*domain.RelationshipProfile
	leads    []*domain.LeadScore
}

func (e *Engine) snapshotForRollback(primaryKey string, duplicateKeys []string) mergeRollback {
	var rb mergeRollback
	for _, k := range append([]string{primaryKey}, duplicateKeys...) {
		if p, ok := e.store.GetProfile(k); ok {
			rb.profiles = append(rb.profiles, p)
		}
		if l, ok := e.store.GetLead(k); ok {
			rb.leads = append(rb.leads, l)
		}
	}
	return rb
}

func (e *Engine) rollbackMerge(rb mergeRollback) {
	for _, p := range rb.profiles {
		e.store.UpsertProfile(p)
	}
	for _, l := range rb.leads {
		e.store.UpsertLead(l)
	}
	logger.Warn("merge rolled back")
}
