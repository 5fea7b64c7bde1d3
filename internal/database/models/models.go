// Package models defines the persisted configuration snapshot the engine
// loads at startup and reloads on demand: fixtures, patches, scenes,
// groups, grids, mapping tables, access profiles, and settings.
package models

import "time"

// Universe is a configured DMX universe and its output transport.
type Universe struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	Number      int    `gorm:"uniqueIndex"`
	Protocol    string // "artnet" or "sacn"
	Destination string // broadcast/unicast address or multicast override
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName overrides the default pluralized table name.
func (Universe) TableName() string { return "universes" }

// Fixture is a fixture definition: a named device with an ordered channel
// layout.
type Fixture struct {
	ID          string `gorm:"primaryKey"`
	Name        string
	Manufacturer string
	ChannelCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName overrides the default pluralized table name.
func (Fixture) TableName() string { return "fixtures" }

// Patch assigns a fixture instance to a starting DMX address in a universe.
type Patch struct {
	ID         string `gorm:"primaryKey"`
	FixtureID  string `gorm:"index"`
	UniverseID string `gorm:"index"`
	Address    int    // 1-indexed starting channel
	Label      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName overrides the default pluralized table name.
func (Patch) TableName() string { return "patches" }

// Scene is a named, storable snapshot of channel values plus its default
// transition parameters.
type Scene struct {
	ID               string `gorm:"primaryKey"`
	Name             string
	TransitionType   string // "instant", "fade", "crossfade"
	TransitionMillis int
	EasingType       string
	Values           []ChannelValueRow `gorm:"-"` // loaded separately, not a gorm association
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName overrides the default pluralized table name.
func (Scene) TableName() string { return "scenes" }

// ChannelValueRow is one channel value captured within a scene.
type ChannelValueRow struct {
	ID         string `gorm:"primaryKey"`
	SceneID    string `gorm:"index"`
	UniverseID string
	Channel    int
	Value      byte
}

// TableName overrides the default pluralized table name.
func (ChannelValueRow) TableName() string { return "scene_channel_values" }

// Grid is a named container of Groups, used for operator-facing layout.
type Grid struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	ColorHint string
	SortOrder int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the default pluralized table name.
func (Grid) TableName() string { return "grids" }

// Group is a named collection of channels (direct, via nested groups, or
// virtual grandmaster targets) driven by a single master value.
type Group struct {
	ID        string `gorm:"primaryKey"`
	GridID    string `gorm:"index"`
	Name      string
	Mode      string // "master_scales", "master_sets", or "master_latches"
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the default pluralized table name.
func (Group) TableName() string { return "groups" }

// GroupMember is one channel, nested-group, or virtual-target member of a
// Group. TargetKind selects which of the remaining fields applies:
// "channel" (UniverseID+Channel), "nested_group" (MemberGroupID),
// "global_master", or "universe_master" (UniverseID).
type GroupMember struct {
	ID            string `gorm:"primaryKey"`
	GroupID       string `gorm:"index"`
	TargetKind    string
	UniverseID    string
	Channel       int
	MemberGroupID *string
}

// TableName overrides the default pluralized table name.
func (GroupMember) TableName() string { return "group_members" }

// MappingTable is the configuration record for the single channel mapping
// table the engine may run at a time. Enabled enforces the "at most one
// mapping table enabled" invariant at the application layer: only the one
// row with Enabled true, if any, is loaded into the engine.
type MappingTable struct {
	ID               string `gorm:"primaryKey"`
	Name             string
	Enabled          bool
	UnmappedBehavior string // "passthrough" or "ignore"
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName overrides the default pluralized table name.
func (MappingTable) TableName() string { return "mapping_tables" }

// MappingRule is one rule within a MappingTable: copy SrcUniverseID's
// SrcChannel to a destination, which is either a channel
// (DstUniverseID+DstChannel) or one of the grandmaster's virtual targets,
// selected by DstKind ("channel", "global_master", "universe_master").
type MappingRule struct {
	ID             string `gorm:"primaryKey"`
	MappingTableID string `gorm:"index"`
	SrcUniverseID  string
	SrcChannel     int
	DstKind        string
	DstUniverseID  string
	DstChannel     int
}

// TableName overrides the default pluralized table name.
func (MappingRule) TableName() string { return "mapping_rules" }

// AccessProfile is a named permission set assignable to client sessions.
type AccessProfile struct {
	ID              string `gorm:"primaryKey"`
	Name            string
	PasswordHash    string // sha256 hex, compared in constant time
	CanControl      bool
	CanRecallScene  bool
	CanEditPatch    bool
	CanPark         bool
	CanHighlight    bool
	CanBypass       bool
	CanAdminister   bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName overrides the default pluralized table name.
func (AccessProfile) TableName() string { return "access_profiles" }

// Setting is a single persisted key/value configuration entry.
type Setting struct {
	ID        string `gorm:"primaryKey"`
	Key       string `gorm:"uniqueIndex"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the default pluralized table name.
func (Setting) TableName() string { return "settings" }

// AuditLogEntry records a permission denial or successful login for the
// access-profile model, since the hub's authority depends on it.
type AuditLogEntry struct {
	ID         string `gorm:"primaryKey"`
	ProfileID  string `gorm:"index"`
	ClientID   string
	Action     string
	Allowed    bool
	Reason     string
	RemoteAddr string
	CreatedAt  time.Time
}

// TableName overrides the default pluralized table name.
func (AuditLogEntry) TableName() string { return "audit_log_entries" }
