package storage

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/macrofleet/fieldops/internal/models"
)

// BadgerStore implements Store with Badger DB. Values are JSON; secondary
// lookups (chat id, link code, equipment code) are index entries pointing at
// the primary key.
type BadgerStore struct {
	db *badger.DB
	// per-equipment commit locks; reading updates must not interleave
	eqMu sync.Map
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil                         // disable badger logs for test clarity
	opts = opts.WithValueLogFileSize(1 << 20) // smaller value log for local dev
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func actorKey(id string) []byte          { return []byte("actor:" + id) }
func chatIndexKey(chatID string) []byte  { return []byte("idx:chat:" + chatID) }
func codeIndexKey(code string) []byte    { return []byte("idx:code:" + code) }
func equipmentKey(id string) []byte      { return []byte("equipment:" + id) }
func eqCodeIndexKey(code string) []byte  { return []byte("idx:eqcode:" + code) }
func siteKey(id string) []byte           { return []byte("site:" + id) }
func templateKey(category string) []byte { return []byte("template:" + category) }

func recordKey(kind, equipmentID, id string) []byte {
	return []byte(kind + ":" + equipmentID + ":" + id)
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(v []byte) error {
		return json.Unmarshal(v, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// ---------- ActorDirectory ----------

func (s *BadgerStore) SaveActor(ctx context.Context, a *models.Actor) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if a.ChatID != "" {
			if err := txn.Set(chatIndexKey(a.ChatID), []byte(a.ID)); err != nil {
				return err
			}
		}
		if a.LinkCode != "" {
			if err := txn.Set(codeIndexKey(a.LinkCode), []byte(a.ID)); err != nil {
				return err
			}
		}
		return setJSON(txn, actorKey(a.ID), a)
	})
}

func (s *BadgerStore) GetActor(ctx context.Context, id string) (*models.Actor, error) {
	var out models.Actor
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, actorKey(id), &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func getActorByIndex(txn *badger.Txn, indexKey []byte) (*models.Actor, error) {
	item, err := txn.Get(indexKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var actorID string
	if err := item.Value(func(v []byte) error {
		actorID = string(v)
		return nil
	}); err != nil {
		return nil, err
	}
	var out models.Actor
	if err := getJSON(txn, actorKey(actorID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) FindByChatID(ctx context.Context, chatID string) (*models.Actor, error) {
	var out *models.Actor
	err := s.db.View(func(txn *badger.Txn) error {
		a, err := getActorByIndex(txn, chatIndexKey(chatID))
		if err != nil {
			return err
		}
		if a.ChatID != chatID {
			return ErrNotFound // stale index entry
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) FindByLinkCode(ctx context.Context, code string) (*models.Actor, error) {
	var out *models.Actor
	err := s.db.View(func(txn *badger.Txn) error {
		a, err := getActorByIndex(txn, codeIndexKey(code))
		if err != nil {
			return err
		}
		if a.LinkCode != code {
			return ErrNotFound
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) SetChatIdentity(ctx context.Context, actorID, chatID, handle string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if taken, err := getActorByIndex(txn, chatIndexKey(chatID)); err == nil {
			if taken.ID != actorID && taken.ChatID == chatID {
				return ErrChatIdentityTaken
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		var a models.Actor
		if err := getJSON(txn, actorKey(actorID), &a); err != nil {
			return err
		}
		if a.LinkCode != "" {
			if err := txn.Delete(codeIndexKey(a.LinkCode)); err != nil {
				return err
			}
		}
		a.ChatID = chatID
		a.ChatHandle = handle
		a.LinkCode = ""
		a.LinkCodeExpiry = time.Time{}
		a.UpdatedAt = time.Now().UTC()

		if err := txn.Set(chatIndexKey(chatID), []byte(a.ID)); err != nil {
			return err
		}
		return setJSON(txn, actorKey(a.ID), &a)
	})
}

func (s *BadgerStore) ClearChatIdentity(ctx context.Context, actorID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var a models.Actor
		if err := getJSON(txn, actorKey(actorID), &a); err != nil {
			return err
		}
		if a.ChatID != "" {
			if err := txn.Delete(chatIndexKey(a.ChatID)); err != nil {
				return err
			}
		}
		a.ChatID = ""
		a.ChatHandle = ""
		a.UpdatedAt = time.Now().UTC()
		return setJSON(txn, actorKey(a.ID), &a)
	})
}

func (s *BadgerStore) GenerateLinkCode(ctx context.Context, actorID string, ttl time.Duration) (string, time.Time, error) {
	var (
		code   string
		expiry time.Time
	)
	err := s.db.Update(func(txn *badger.Txn) error {
		var a models.Actor
		if err := getJSON(txn, actorKey(actorID), &a); err != nil {
			return err
		}
		// at most one active code per actor: replace any previous one
		if a.LinkCode != "" {
			if err := txn.Delete(codeIndexKey(a.LinkCode)); err != nil {
				return err
			}
		}

		for range 5 {
			c, err := randomLinkCode()
			if err != nil {
				return err
			}
			if _, err := txn.Get(codeIndexKey(c)); errors.Is(err, badger.ErrKeyNotFound) {
				code = c
				break
			} else if err != nil {
				return err
			}
		}
		if code == "" {
			return fmt.Errorf("could not allocate a unique link code")
		}

		expiry = time.Now().UTC().Add(ttl)
		a.LinkCode = code
		a.LinkCodeExpiry = expiry
		a.UpdatedAt = time.Now().UTC()
		if err := txn.Set(codeIndexKey(code), []byte(a.ID)); err != nil {
			return err
		}
		return setJSON(txn, actorKey(a.ID), &a)
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return code, expiry, nil
}

func randomLinkCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08d", n.Int64()), nil
}

// ---------- EquipmentRegistry ----------

func (s *BadgerStore) SaveEquipment(ctx context.Context, e *models.Equipment) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if e.Code != "" {
			if err := txn.Set(eqCodeIndexKey(e.Code), []byte(e.ID)); err != nil {
				return err
			}
		}
		return setJSON(txn, equipmentKey(e.ID), e)
	})
}

func (s *BadgerStore) GetEquipment(ctx context.Context, id string) (*models.Equipment, error) {
	var out models.Equipment
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, equipmentKey(id), &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) FindEquipmentByCode(ctx context.Context, code string) (*models.Equipment, error) {
	var out models.Equipment
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(eqCodeIndexKey(code))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		var id string
		if err := item.Value(func(v []byte) error {
			id = string(v)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, equipmentKey(id), &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) SaveSite(ctx context.Context, site *models.Site) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, siteKey(site.ID), site)
	})
}

func (s *BadgerStore) GetSite(ctx context.Context, id string) (*models.Site, error) {
	var out models.Site
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, siteKey(id), &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) SaveTemplate(ctx context.Context, t *models.ChecklistTemplate) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, templateKey(t.Category), t)
	})
}

func (s *BadgerStore) GetTemplate(ctx context.Context, category string) (*models.ChecklistTemplate, error) {
	var out models.ChecklistTemplate
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, templateKey(category), &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ---------- RecordStore ----------

// lockEquipment serializes reading commits per equipment id.
func (s *BadgerStore) lockEquipment(id string) func() {
	v, _ := s.eqMu.LoadOrStore(id, &sync.Mutex{})
	mtx := v.(*sync.Mutex)
	mtx.Lock()
	return mtx.Unlock
}

// applyReading enforces the monotonic meter invariant inside an open
// transaction. The caller must hold the equipment commit lock.
func applyReading(txn *badger.Txn, equipmentID string, reading float64) error {
	var eq models.Equipment
	if err := getJSON(txn, equipmentKey(equipmentID), &eq); err != nil {
		return err
	}
	if reading < eq.CurrentReading {
		return &ReadingRegressionError{
			EquipmentID: equipmentID,
			Current:     eq.CurrentReading,
			Submitted:   reading,
		}
	}
	eq.CurrentReading = reading
	eq.ReadingUpdatedAt = time.Now().UTC()
	eq.UpdatedAt = eq.ReadingUpdatedAt
	return setJSON(txn, equipmentKey(eq.ID), &eq)
}

func (s *BadgerStore) CommitInspection(ctx context.Context, rec *models.InspectionRecord) error {
	unlock := s.lockEquipment(rec.EquipmentID)
	defer unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		if rec.Reading != nil {
			if err := applyReading(txn, rec.EquipmentID, *rec.Reading); err != nil {
				return err
			}
		}
		return setJSON(txn, recordKey("inspection", rec.EquipmentID, rec.ID), rec)
	})
}

func (s *BadgerStore) CommitRefueling(ctx context.Context, rec *models.RefuelingRecord) error {
	unlock := s.lockEquipment(rec.EquipmentID)
	defer unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		if err := applyReading(txn, rec.EquipmentID, rec.Reading); err != nil {
			return err
		}
		return setJSON(txn, recordKey("refueling", rec.EquipmentID, rec.ID), rec)
	})
}

func (s *BadgerStore) CommitMaintenance(ctx context.Context, rec *models.MaintenanceRecord) error {
	unlock := s.lockEquipment(rec.EquipmentID)
	defer unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		if err := applyReading(txn, rec.EquipmentID, rec.Reading); err != nil {
			return err
		}
		return setJSON(txn, recordKey("maintenance", rec.EquipmentID, rec.ID), rec)
	})
}

func listRecords[T any](db *badger.DB, kind, equipmentID string) ([]*T, error) {
	var out []*T
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(kind + ":" + equipmentID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec T
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return err
			}
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) ListInspections(ctx context.Context, equipmentID string) ([]*models.InspectionRecord, error) {
	return listRecords[models.InspectionRecord](s.db, "inspection", equipmentID)
}

func (s *BadgerStore) ListRefuelings(ctx context.Context, equipmentID string) ([]*models.RefuelingRecord, error) {
	return listRecords[models.RefuelingRecord](s.db, "refueling", equipmentID)
}

func (s *BadgerStore) ListMaintenance(ctx context.Context, equipmentID string) ([]*models.MaintenanceRecord, error) {
	return listRecords[models.MaintenanceRecord](s.db, "maintenance", equipmentID)
}

var _ Store = (*BadgerStore)(nil)
