package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/macrofleet/fieldops/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrChatIdentityTaken is returned when a chat id is already linked to
	// another actor. Chat identities are unique across all actor kinds.
	ErrChatIdentityTaken = errors.New("chat identity already linked")
)

// ReadingRegressionError reports a rejected meter update. Current carries the
// equipment's reading at the time of the rejection so the user can be shown
// the conflicting value.
type ReadingRegressionError struct {
	EquipmentID string
	Current     float64
	Submitted   float64
}

func (e *ReadingRegressionError) Error() string {
	return fmt.Sprintf("reading %.1f regresses below current %.1f for equipment %s",
		e.Submitted, e.Current, e.EquipmentID)
}

// ActorDirectory is the store of linkable field actors.
type ActorDirectory interface {
	SaveActor(ctx context.Context, a *models.Actor) error
	GetActor(ctx context.Context, id string) (*models.Actor, error)
	FindByChatID(ctx context.Context, chatID string) (*models.Actor, error)
	FindByLinkCode(ctx context.Context, code string) (*models.Actor, error)
	// SetChatIdentity links a chat id to the actor and invalidates any
	// outstanding linking code. Codes are single-use.
	SetChatIdentity(ctx context.Context, actorID, chatID, handle string) error
	ClearChatIdentity(ctx context.Context, actorID string) error
	GenerateLinkCode(ctx context.Context, actorID string, ttl time.Duration) (code string, expiry time.Time, err error)
}

// EquipmentRegistry is the store of equipment, sites and checklist templates.
type EquipmentRegistry interface {
	SaveEquipment(ctx context.Context, e *models.Equipment) error
	GetEquipment(ctx context.Context, id string) (*models.Equipment, error)
	FindEquipmentByCode(ctx context.Context, code string) (*models.Equipment, error)
	SaveSite(ctx context.Context, s *models.Site) error
	GetSite(ctx context.Context, id string) (*models.Site, error)
	SaveTemplate(ctx context.Context, t *models.ChecklistTemplate) error
	GetTemplate(ctx context.Context, category string) (*models.ChecklistTemplate, error)
}

// RecordStore persists finalized workflow records. Each commit applies the
// record's meter reading to the equipment in the same transaction: both
// succeed or neither does, and a reading below the equipment's current value
// fails with *ReadingRegressionError.
type RecordStore interface {
	CommitInspection(ctx context.Context, rec *models.InspectionRecord) error
	CommitRefueling(ctx context.Context, rec *models.RefuelingRecord) error
	CommitMaintenance(ctx context.Context, rec *models.MaintenanceRecord) error
	ListInspections(ctx context.Context, equipmentID string) ([]*models.InspectionRecord, error)
	ListRefuelings(ctx context.Context, equipmentID string) ([]*models.RefuelingRecord, error)
	ListMaintenance(ctx context.Context, equipmentID string) ([]*models.MaintenanceRecord, error)
}

// Store aggregates the three persistence contracts behind one handle
// (kept minimal, allows swapping implementations).
type Store interface {
	ActorDirectory
	EquipmentRegistry
	RecordStore
	Close() error
}
