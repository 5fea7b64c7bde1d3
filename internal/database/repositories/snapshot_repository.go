package repositories

import (
	"context"
	"fmt"

	"github.com/dmxx/dmxx-server/internal/database/models"
	"gorm.io/gorm"
)

// ConfigSnapshot is the full, read-mostly configuration the engine loads at
// startup and reloads on demand: universes, fixtures, patches, scenes (with
// their channel values), grids, groups (with members), mapping tables (with
// rules), and access profiles.
type ConfigSnapshot struct {
	Universes      []models.Universe
	Fixtures       []models.Fixture
	Patches        []models.Patch
	Scenes         []models.Scene
	SceneValues    map[string][]models.ChannelValueRow // keyed by scene ID
	Grids          []models.Grid
	Groups         []models.Group
	GroupMembers   map[string][]models.GroupMember // keyed by group ID
	MappingTables  []models.MappingTable
	MappingRules   map[string][]models.MappingRule // keyed by mapping table ID
	AccessProfiles []models.AccessProfile
}

// SnapshotRepository loads the full configuration snapshot from storage.
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Load reads every configuration table and assembles a ConfigSnapshot.
// It fails closed: any read error aborts the load and returns the error,
// leaving the caller's previous snapshot (if any) untouched.
func (r *SnapshotRepository) Load(ctx context.Context) (*ConfigSnapshot, error) {
	snap := &ConfigSnapshot{
		SceneValues:   make(map[string][]models.ChannelValueRow),
		GroupMembers:  make(map[string][]models.GroupMember),
		MappingRules:  make(map[string][]models.MappingRule),
	}

	if err := r.db.WithContext(ctx).Order("number ASC").Find(&snap.Universes).Error; err != nil {
		return nil, fmt.Errorf("load universes: %w", err)
	}
	if err := r.db.WithContext(ctx).Find(&snap.Fixtures).Error; err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}
	if err := r.db.WithContext(ctx).Find(&snap.Patches).Error; err != nil {
		return nil, fmt.Errorf("load patches: %w", err)
	}
	if err := r.db.WithContext(ctx).Find(&snap.Scenes).Error; err != nil {
		return nil, fmt.Errorf("load scenes: %w", err)
	}

	var values []models.ChannelValueRow
	if err := r.db.WithContext(ctx).Find(&values).Error; err != nil {
		return nil, fmt.Errorf("load scene channel values: %w", err)
	}
	for _, v := range values {
		snap.SceneValues[v.SceneID] = append(snap.SceneValues[v.SceneID], v)
	}

	if err := r.db.WithContext(ctx).Order("sort_order ASC").Find(&snap.Grids).Error; err != nil {
		return nil, fmt.Errorf("load grids: %w", err)
	}
	if err := r.db.WithContext(ctx).Find(&snap.Groups).Error; err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}

	var members []models.GroupMember
	if err := r.db.WithContext(ctx).Find(&members).Error; err != nil {
		return nil, fmt.Errorf("load group members: %w", err)
	}
	for _, m := range members {
		snap.GroupMembers[m.GroupID] = append(snap.GroupMembers[m.GroupID], m)
	}

	if err := r.db.WithContext(ctx).Find(&snap.MappingTables).Error; err != nil {
		return nil, fmt.Errorf("load mapping tables: %w", err)
	}

	var rules []models.MappingRule
	if err := r.db.WithContext(ctx).Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("load mapping rules: %w", err)
	}
	for _, rule := range rules {
		snap.MappingRules[rule.MappingTableID] = append(snap.MappingRules[rule.MappingTableID], rule)
	}

	if err := r.db.WithContext(ctx).Find(&snap.AccessProfiles).Error; err != nil {
		return nil, fmt.Errorf("load access profiles: %w", err)
	}

	return snap, nil
}
