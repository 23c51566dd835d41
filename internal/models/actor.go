package models

import "time"

// ActorKind is the closed set of field roles that can hold a chat identity.
type ActorKind string

const (
	ActorOperator   ActorKind = "operator"
	ActorSupervisor ActorKind = "supervisor"
	ActorTechnician ActorKind = "technician"
)

// Actor is a field-role identity (operator, supervisor or technician).
// Which relationship sets are populated depends on Kind: operators are
// granted equipment directly (on the Equipment record), supervisors hold
// site sets, technicians hold client and site sets.
type Actor struct {
	ID       string    `json:"id" yaml:"id"`
	Kind     ActorKind `json:"kind" yaml:"kind"`
	Name     string    `json:"name" yaml:"name"`
	Document string    `json:"document" yaml:"document"`

	ChatID     string `json:"chat_id,omitempty" yaml:"chat_id"`
	ChatHandle string `json:"chat_handle,omitempty" yaml:"chat_handle"`

	LinkCode       string    `json:"link_code,omitempty" yaml:"link_code"`
	LinkCodeExpiry time.Time `json:"link_code_expiry,omitzero" yaml:"link_code_expiry"`

	SiteIDs   []string `json:"site_ids,omitempty" yaml:"site_ids"`
	ClientIDs []string `json:"client_ids,omitempty" yaml:"client_ids"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// HasActiveLinkCode reports whether the actor holds an unexpired linking code.
func (a *Actor) HasActiveLinkCode(now time.Time) bool {
	return a.LinkCode != "" && now.Before(a.LinkCodeExpiry)
}
