package models

import "time"

// ChecklistAnswer is the fixed answer set for inspection questions.
type ChecklistAnswer string

const (
	AnswerConforms       ChecklistAnswer = "conforms"
	AnswerDoesNotConform ChecklistAnswer = "does_not_conform"
	AnswerNotApplicable  ChecklistAnswer = "not_applicable"
)

// ChecklistOutcome classifies a finalized inspection.
type ChecklistOutcome string

const (
	OutcomeApproved        ChecklistOutcome = "approved"
	OutcomeApprovedLimited ChecklistOutcome = "approved_with_restriction"
	OutcomeRejected        ChecklistOutcome = "rejected"
)

// InspectionItem is one answered question, with the mandatory note when a
// flagged question was answered does-not-conform.
type InspectionItem struct {
	QuestionID string          `json:"question_id"`
	Question   string          `json:"question"`
	Answer     ChecklistAnswer `json:"answer"`
	Note       string          `json:"note,omitempty"`
}

// InspectionRecord is the committed artifact of a checklist workflow.
// Append-only: never mutated after creation.
type InspectionRecord struct {
	ID          string           `json:"id"`
	ActorID     string           `json:"actor_id"`
	EquipmentID string           `json:"equipment_id"`
	Items       []InspectionItem `json:"items"`
	Outcome     ChecklistOutcome `json:"outcome"`
	Reading     *float64         `json:"reading,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// RefuelingRecord is the committed artifact of a refueling workflow.
type RefuelingRecord struct {
	ID          string    `json:"id"`
	ActorID     string    `json:"actor_id"`
	EquipmentID string    `json:"equipment_id"`
	Reading     float64   `json:"reading"`
	Volume      float64   `json:"volume"`
	TotalCost   float64   `json:"total_cost"`
	UnitPrice   float64   `json:"unit_price"`
	FuelType    string    `json:"fuel_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// MaintenanceKind distinguishes scheduled from breakdown work.
type MaintenanceKind string

const (
	MaintenancePreventive MaintenanceKind = "preventive"
	MaintenanceCorrective MaintenanceKind = "corrective"
)

// MaintenanceRecord is the committed artifact of a maintenance workflow.
type MaintenanceRecord struct {
	ID          string          `json:"id"`
	ActorID     string          `json:"actor_id"`
	EquipmentID string          `json:"equipment_id"`
	Kind        MaintenanceKind `json:"kind"`
	Reading     float64         `json:"reading"`
	Description string          `json:"description"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ClassifyInspection applies the outcome rule: approved with zero
// non-conforming items, approved-with-restriction while non-conforming items
// stay at or below 20% of answered items (not-applicable answers are not
// counted as answered), rejected beyond that. The threshold is evaluated with
// integer arithmetic, so 1 non-conforming of 5 answered lands exactly on the
// boundary and is still approved-with-restriction.
func ClassifyInspection(items []InspectionItem) ChecklistOutcome {
	var answered, nonConforming int
	for _, it := range items {
		if it.Answer == AnswerNotApplicable {
			continue
		}
		answered++
		if it.Answer == AnswerDoesNotConform {
			nonConforming++
		}
	}
	switch {
	case nonConforming == 0:
		return OutcomeApproved
	case nonConforming*5 <= answered:
		return OutcomeApprovedLimited
	default:
		return OutcomeRejected
	}
}
