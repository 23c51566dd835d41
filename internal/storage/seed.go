package storage

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/macrofleet/fieldops/internal/models"
)

// SeedData is the YAML fixture layout for local development and tests.
type SeedData struct {
	Actors    []*models.Actor             `yaml:"actors"`
	Sites     []*models.Site              `yaml:"sites"`
	Equipment []*models.Equipment         `yaml:"equipment"`
	Templates []*models.ChecklistTemplate `yaml:"templates"`
}

// LoadSeed reads a fixture file and writes its contents into the store.
// Existing entries with the same ids are overwritten; intended for dev setups,
// not production data loading.
func LoadSeed(ctx context.Context, s Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var data SeedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	return ApplySeed(ctx, s, &data)
}

// ApplySeed writes an in-memory fixture into the store.
func ApplySeed(ctx context.Context, s Store, data *SeedData) error {
	for _, site := range data.Sites {
		if err := s.SaveSite(ctx, site); err != nil {
			return fmt.Errorf("seed site %s: %w", site.ID, err)
		}
	}
	for _, eq := range data.Equipment {
		if err := s.SaveEquipment(ctx, eq); err != nil {
			return fmt.Errorf("seed equipment %s: %w", eq.ID, err)
		}
	}
	for _, tpl := range data.Templates {
		if err := s.SaveTemplate(ctx, tpl); err != nil {
			return fmt.Errorf("seed template %s: %w", tpl.Category, err)
		}
	}
	for _, a := range data.Actors {
		if err := s.SaveActor(ctx, a); err != nil {
			return fmt.Errorf("seed actor %s: %w", a.ID, err)
		}
	}
	return nil
}
