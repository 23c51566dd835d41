package models

import "time"

// Equipment is a machine tracked by the registry. CurrentReading is the
// authoritative meter value; it only moves forward (see storage.ApplyReading).
type Equipment struct {
	ID       string `json:"id" yaml:"id"`
	Code     string `json:"code" yaml:"code"`
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
	SiteID   string `json:"site_id" yaml:"site_id"`
	ClientID string `json:"client_id" yaml:"client_id"`

	// OperatorIDs is the explicit grant set for operator-kind actors.
	OperatorIDs []string `json:"operator_ids,omitempty" yaml:"operator_ids"`

	CurrentReading   float64   `json:"current_reading" yaml:"current_reading"`
	ReadingUpdatedAt time.Time `json:"reading_updated_at,omitzero" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Site is a client location. DesignatedSupervisorID grants site access to a
// supervisor even when the site is absent from their assignment set.
type Site struct {
	ID                     string `json:"id" yaml:"id"`
	Name                   string `json:"name" yaml:"name"`
	ClientID               string `json:"client_id" yaml:"client_id"`
	DesignatedSupervisorID string `json:"designated_supervisor_id,omitempty" yaml:"designated_supervisor_id"`
}

// ChecklistQuestion is one inspection item of a category template.
type ChecklistQuestion struct {
	ID           string `json:"id" yaml:"id"`
	Text         string `json:"text" yaml:"text"`
	RequiresNote bool   `json:"requires_note,omitempty" yaml:"requires_note"`
}

// ChecklistTemplate is the ordered question list for an equipment category.
type ChecklistTemplate struct {
	Category  string              `json:"category" yaml:"category"`
	Questions []ChecklistQuestion `json:"questions" yaml:"questions"`
}
