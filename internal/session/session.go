package session

import (
	"time"

	"github.com/macrofleet/fieldops/internal/models"
)

// FlowKind identifies the single workflow a session may run.
type FlowKind string

const (
	FlowNone        FlowKind = ""
	FlowLinking     FlowKind = "linking"
	FlowChecklist   FlowKind = "checklist"
	FlowRefueling   FlowKind = "refueling"
	FlowMaintenance FlowKind = "maintenance"
)

// ChecklistState carries the per-question progress of a checklist run.
type ChecklistState struct {
	Questions []models.ChecklistQuestion
	Items     []models.InspectionItem
	// AwaitingNote is set after a does-not-conform answer on a flagged
	// question; the next message is captured as the item's note.
	AwaitingNote bool
}

// Session is the ephemeral per-chat-identity state. Everything here is
// private to one chat id; nothing is persisted until a workflow finalizes.
type Session struct {
	ChatID  string
	ActorID string

	Flow FlowKind
	Step int
	// Fields holds captured step values keyed by field name.
	Fields map[string]string
	// LinkActorID is the actor matched by code during linking, pending the
	// possession challenge.
	LinkActorID string
	// EquipmentID is the gate-checked target of the active workflow.
	EquipmentID string
	Checklist   *ChecklistState

	CreatedAt time.Time
	LastSeen  time.Time
}

// Reset discards the active workflow and its captured data. The resolved
// actor association survives: cancelling does not unlink.
func (s *Session) Reset() {
	s.Flow = FlowNone
	s.Step = 0
	s.Fields = make(map[string]string)
	s.LinkActorID = ""
	s.EquipmentID = ""
	s.Checklist = nil
}

// Active reports whether a workflow is in progress.
func (s *Session) Active() bool {
	return s.Flow != FlowNone
}
