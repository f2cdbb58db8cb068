// Package family computes version-family views of a document set: ordering,
// the "current" and library-visible versions, and supersession targets. All
// functions are pure over the slice the store hands them.
package family

import (
	"sort"

	"charter/internal/document/models"
	id "charter/pkg/domain"
)

// Sort orders family members by (major, minor) descending, newest first.
// The input slice is sorted in place and returned for chaining.
func Sort(members []*models.Document) []*models.Document {
	sort.Slice(members, func(i, j int) bool {
		return members[i].Version.Compare(members[j].Version) > 0
	})
	return members
}

// currentStatuses are the states that make a version the family's "current"
// one for display purposes.
var currentStatuses = map[models.Status]bool{
	models.StatusEffective:                true,
	models.StatusApprovedPendingEffective: true,
	models.StatusScheduledForObsolescence: true,
	models.StatusSuperseded:               true,
}

// Current returns the highest-ordered member whose status marks it as the
// family's current version, or nil when the family has never gone effective.
func Current(members []*models.Document) *models.Document {
	for _, d := range Sort(members) {
		if currentStatuses[d.Status] {
			return d
		}
	}
	return nil
}

// LibraryVisible returns the highest-ordered member not in a retired state:
// the one row a "library" listing shows for this family.
func LibraryVisible(members []*models.Document) *models.Document {
	for _, d := range Sort(members) {
		if !d.Status.Retired() {
			return d
		}
	}
	return nil
}

// HighestObsolete returns the highest-ordered OBSOLETE member: the one row an
// "obsolete" listing shows for this family.
func HighestObsolete(members []*models.Document) *models.Document {
	for _, d := range Sort(members) {
		if d.Status == models.StatusObsolete {
			return d
		}
	}
	return nil
}

// PriorEffective finds the member an incoming version must supersede: the
// family's EFFECTIVE document other than the incoming one. Applied in the
// same write as the effective transition, never separately.
func PriorEffective(members []*models.Document, incoming id.DocumentID) *models.Document {
	for _, d := range members {
		if d.ID != incoming && d.Status == models.StatusEffective {
			return d
		}
	}
	return nil
}

// HasEffectiveSlot reports whether the family singleton invariant permits
// another member to move toward effectiveness: at most one member may be
// EFFECTIVE or APPROVED_PENDING_EFFECTIVE at a time. The incoming document is
// excluded from the check; the EFFECTIVE holder is not a violation because
// supersession retires it in the same write.
func HasEffectiveSlot(members []*models.Document, incoming id.DocumentID) bool {
	for _, d := range members {
		if d.ID == incoming {
			continue
		}
		if d.Status == models.StatusApprovedPendingEffective {
			return false
		}
	}
	return true
}

// NextVersion computes the spin-off version for a periodic-review outcome:
// one past the family's highest tuple so the new draft orders strictly above
// everything it supersedes, minor or major per the outcome.
func NextVersion(members []*models.Document, outcome models.ReviewOutcomeKind) id.Version {
	if len(members) == 0 {
		return id.FirstVersion
	}
	highest := Sort(members)[0].Version
	if outcome == models.OutcomeNeedsMajorUpdates {
		return highest.NextMajor()
	}
	return highest.NextMinor()
}
