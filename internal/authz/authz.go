// Package authz decides whether an actor may act on a piece of equipment.
// The rule is a pure function of the current relationship sets: nothing is
// cached between calls, so grant changes take effect on the next check.
package authz

import (
	"slices"

	"github.com/macrofleet/fieldops/internal/models"
)

// CanAct reports whether the actor may run workflows against the equipment.
// site is the equipment's site and may be nil when the equipment has none.
//
// Operator: equipment must carry an explicit grant for the actor.
// Supervisor: equipment's site must be in the supervisor's site set, or the
// supervisor must be the site's designated supervisor.
// Technician: equipment's client or site must be in the technician's sets.
func CanAct(actor *models.Actor, eq *models.Equipment, site *models.Site) bool {
	if actor == nil || eq == nil {
		return false
	}
	switch actor.Kind {
	case models.ActorOperator:
		return slices.Contains(eq.OperatorIDs, actor.ID)
	case models.ActorSupervisor:
		if eq.SiteID != "" && slices.Contains(actor.SiteIDs, eq.SiteID) {
			return true
		}
		return site != nil && site.DesignatedSupervisorID == actor.ID
	case models.ActorTechnician:
		if eq.ClientID != "" && slices.Contains(actor.ClientIDs, eq.ClientID) {
			return true
		}
		return eq.SiteID != "" && slices.Contains(actor.SiteIDs, eq.SiteID)
	default:
		return false
	}
}
