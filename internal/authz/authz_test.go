package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/macrofleet/fieldops/internal/models"
)

func TestCanActOperator(t *testing.T) {
	op := &models.Actor{ID: "OP-1", Kind: models.ActorOperator}
	granted := &models.Equipment{ID: "EQ-1", OperatorIDs: []string{"OP-1", "OP-2"}}
	other := &models.Equipment{ID: "EQ-2", OperatorIDs: []string{"OP-2"}}

	assert.True(t, CanAct(op, granted, nil))
	assert.False(t, CanAct(op, other, nil))
}

func TestCanActSupervisor(t *testing.T) {
	sup := &models.Actor{ID: "SUP-1", Kind: models.ActorSupervisor, SiteIDs: []string{"SITE-A"}}
	eqA := &models.Equipment{ID: "EQ-1", SiteID: "SITE-A"}
	eqB := &models.Equipment{ID: "EQ-2", SiteID: "SITE-B"}

	assert.True(t, CanAct(sup, eqA, nil), "direct site assignment")
	assert.False(t, CanAct(sup, eqB, nil))
	assert.True(t, CanAct(sup, eqB, &models.Site{ID: "SITE-B", DesignatedSupervisorID: "SUP-1"}),
		"designated supervisor of the site")
	assert.False(t, CanAct(sup, eqB, &models.Site{ID: "SITE-B", DesignatedSupervisorID: "SUP-2"}))
}

func TestCanActTechnician(t *testing.T) {
	tech := &models.Actor{
		ID:        "TEC-1",
		Kind:      models.ActorTechnician,
		ClientIDs: []string{"CLI-X"},
		SiteIDs:   []string{"SITE-A"},
	}

	assert.True(t, CanAct(tech, &models.Equipment{ID: "EQ-1", ClientID: "CLI-X"}, nil), "client match")
	assert.True(t, CanAct(tech, &models.Equipment{ID: "EQ-2", SiteID: "SITE-A", ClientID: "CLI-Y"}, nil), "site match")
	assert.False(t, CanAct(tech, &models.Equipment{ID: "EQ-3", SiteID: "SITE-B", ClientID: "CLI-Y"}, nil))
}

func TestCanActEdgeCases(t *testing.T) {
	assert.False(t, CanAct(nil, &models.Equipment{ID: "EQ-1"}, nil))
	assert.False(t, CanAct(&models.Actor{ID: "A-1", Kind: models.ActorOperator}, nil, nil))
	assert.False(t, CanAct(&models.Actor{ID: "A-1", Kind: "ghost"}, &models.Equipment{ID: "EQ-1"}, nil))
}
