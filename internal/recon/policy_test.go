package recon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/marina/internal/models"
)

func openCandidate(id int64, identifier string) models.State {
	return models.State{ID: id, BestDetectedIdentifier: &identifier}
}

func TestAlwaysOpenPolicy(t *testing.T) {
	p := AlwaysOpenPolicy{}
	candidates := []models.State{openCandidate(1, "PZ1234")}

	d := p.Decide(pass(1, "PZ1234", true, time.Now()), candidates)
	assert.Equal(t, ActionOpenNew, d.Action)

	// Candidates never matter: a non-start pass is always ignored.
	d = p.Decide(pass(2, "PZ1234", false, time.Now()), candidates)
	assert.Equal(t, ActionIgnore, d.Action)
}

func TestIdentifierMatchPolicy_Decide(t *testing.T) {
	p := IdentifierMatchPolicy{}

	tests := []struct {
		name       string
		identifier string
		visitStart bool
		candidates []models.State
		want       Action
	}{
		{
			name:       "exact match closes the open visit",
			identifier: "PZ1234",
			candidates: []models.State{openCandidate(1, "PZ1234")},
			want:       ActionAttachAsLast,
		},
		{
			name:       "unresolved marker on the candidate side is a wildcard",
			identifier: "PZ1234",
			candidates: []models.State{openCandidate(1, "PZ12*4")},
			want:       ActionAttachAsLast,
		},
		{
			name:       "unresolved marker on the pass side is a wildcard",
			identifier: "PZ**34",
			candidates: []models.State{openCandidate(1, "PZ1234")},
			want:       ActionAttachAsLast,
		},
		{
			name:       "length mismatch never matches",
			identifier: "PZ1234",
			candidates: []models.State{openCandidate(1, "PZ123")},
			visitStart: true,
			want:       ActionOpenNew,
		},
		{
			name:       "resolved characters must agree",
			identifier: "PZ1234",
			candidates: []models.State{openCandidate(1, "PZ9934")},
			visitStart: true,
			want:       ActionOpenNew,
		},
		{
			name:       "all wildcards on one side is not a match",
			identifier: "******",
			candidates: []models.State{openCandidate(1, "PZ1234")},
			visitStart: true,
			want:       ActionOpenNew,
		},
		{
			name:       "empty pass identifier falls back to visit-start behaviour",
			identifier: "",
			candidates: []models.State{openCandidate(1, "PZ1234")},
			visitStart: true,
			want:       ActionOpenNew,
		},
		{
			name:       "no match and no visit start is ignored",
			identifier: "AB9999",
			candidates: []models.State{openCandidate(1, "PZ1234")},
			want:       ActionIgnore,
		},
		{
			name:       "candidate without identifier is skipped",
			identifier: "PZ1234",
			candidates: []models.State{{ID: 1}},
			visitStart: true,
			want:       ActionOpenNew,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Decide(pass(99, tt.identifier, tt.visitStart, time.Now()), tt.candidates)
			assert.Equal(t, tt.want, d.Action)
			if tt.want == ActionAttachAsLast {
				assert.NotNil(t, d.Candidate)
				assert.Equal(t, int64(1), d.Candidate.ID)
			}
		})
	}
}

func TestIdentifiersMatch(t *testing.T) {
	assert.True(t, identifiersMatch("PZ1234", "PZ1234"))
	assert.True(t, identifiersMatch("PZ1*34", "PZ12*4"))
	assert.False(t, identifiersMatch("", ""))
	assert.False(t, identifiersMatch("PZ1234", "pz1234"))
	// Wildcards in every compared position leave nothing resolved.
	assert.False(t, identifiersMatch("*2*", "1*3"))
}

func TestBetterIdentifier(t *testing.T) {
	assert.Equal(t, "PZ1234", betterIdentifier("PZ12*4", "PZ1234"))
	assert.Equal(t, "PZ12*4", betterIdentifier("PZ12*4", "PZ**34"))
	// Ties keep the current value.
	assert.Equal(t, "PZ12*4", betterIdentifier("PZ12*4", "PZ1*34"))
	assert.Equal(t, "PZ1234", betterIdentifier("", "PZ1234"))
	assert.Equal(t, "PZ1234", betterIdentifier("PZ1234", ""))
}
