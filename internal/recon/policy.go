package recon

import "github.com/your-org/marina/internal/models"

// Action is the outcome of a reconciliation decision for one boat pass.
type Action int

const (
	// ActionIgnore drops the pass from lifecycle tracking. The evidence
	// itself is already persisted by ingest.
	ActionIgnore Action = iota
	// ActionOpenNew starts a fresh vessel visit.
	ActionOpenNew
	// ActionAttachAsLast closes an existing open visit with this pass.
	ActionAttachAsLast
)

type Decision struct {
	Action Action
	// Candidate is the open state to close; set only for ActionAttachAsLast.
	Candidate *models.State
}

// Policy decides how a new detection maps onto State records. Candidates are
// the currently open states (no departure pass attached), newest first.
type Policy interface {
	Decide(pass *models.BoatPass, candidates []models.State) Decision
}

// AlwaysOpenPolicy is the minimal behaviour: every pass flagged as a visit
// start opens a new state, everything else is ignored.
type AlwaysOpenPolicy struct{}

func (AlwaysOpenPolicy) Decide(pass *models.BoatPass, _ []models.State) Decision {
	if pass.VisitStart {
		return Decision{Action: ActionOpenNew}
	}
	return Decision{Action: ActionIgnore}
}

// IdentifierMatchPolicy closes an open visit when the pass identifier
// fuzzy-matches the visit's identifier, treating unresolved markers on either
// side as wildcards. With no match it falls back to AlwaysOpenPolicy.
type IdentifierMatchPolicy struct{}

func (p IdentifierMatchPolicy) Decide(pass *models.BoatPass, candidates []models.State) Decision {
	if pass.DetectedIdentifier != "" {
		for i := range candidates {
			cand := &candidates[i]
			if cand.BestDetectedIdentifier == nil {
				continue
			}
			if identifiersMatch(pass.DetectedIdentifier, *cand.BestDetectedIdentifier) {
				return Decision{Action: ActionAttachAsLast, Candidate: cand}
			}
		}
	}
	return AlwaysOpenPolicy{}.Decide(pass, candidates)
}

// identifiersMatch compares two registration strings of equal length,
// position by position. An unresolved marker matches anything, but at least
// one position must match on resolved characters from both sides.
func identifiersMatch(a, b string) bool {
	if len(a) != len(b) || a == "" {
		return false
	}
	resolved := 0
	for i := 0; i < len(a); i++ {
		am := string(a[i]) == models.UnresolvedMarker
		bm := string(b[i]) == models.UnresolvedMarker
		if am || bm {
			continue
		}
		if a[i] != b[i] {
			return false
		}
		resolved++
	}
	return resolved > 0
}

// betterIdentifier picks the candidate with fewer unresolved markers,
// preferring the current value on ties.
func betterIdentifier(current, candidate string) string {
	if candidate == "" {
		return current
	}
	if current == "" {
		return candidate
	}
	if countUnresolved(candidate) < countUnresolved(current) {
		return candidate
	}
	return current
}

func countUnresolved(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if string(s[i]) == models.UnresolvedMarker {
			n++
		}
	}
	return n
}
