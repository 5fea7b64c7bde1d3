package engine

// MappingDestKind identifies what a mapping rule's destination is: a
// concrete channel in some universe, or one of the two virtual scaler
// inputs the Grandmaster Scaler exposes.
type MappingDestKind int

const (
	DestChannel MappingDestKind = iota
	DestGlobalMaster
	DestUniverseMaster
)

// UnmappedBehavior controls what happens to a universe's channels that no
// rule names as a destination, while a mapping table is active.
type UnmappedBehavior int

const (
	// UnmappedPassthrough carries the universe's own raw input straight
	// through for any channel no rule writes.
	UnmappedPassthrough UnmappedBehavior = iota
	// UnmappedIgnore leaves any channel no rule writes at zero.
	UnmappedIgnore
)

// MappingDest names one rule's destination.
type MappingDest struct {
	Kind       MappingDestKind
	UniverseID string // target universe, for DestChannel and DestUniverseMaster
	Channel    int    // 1-indexed, DestChannel only
}

// MappingRule copies one source channel, read from any universe's raw
// input frame, to one destination. Rules run in order; a later rule
// overwrites an earlier one that targets the same destination.
type MappingRule struct {
	SrcUniverseID string
	SrcChannel    int // 1-indexed
	Dst           MappingDest
}

// MappingTable is the single mapping table the engine may have active at
// once. Enabled false (or a nil table) means the mapper is a no-op:
// untouched channels pass their universe's raw input straight through.
type MappingTable struct {
	Enabled          bool
	UnmappedBehavior UnmappedBehavior
	Rules            []MappingRule
}

// MapResult is the Channel Mapper's output for one tick: the mapped input
// frame for every universe, which channels within it were actually written
// by the mapping pass (for the state store's per-channel merge), and any
// writes to the grandmaster's virtual targets.
type MapResult struct {
	Frames          map[string][512]byte
	Touched         map[string][512]bool
	GlobalMaster    *byte
	UniverseMasters map[string]byte
}

// Apply is a pure function from every universe's raw input frame to the
// mapped result. universeIDs must list every configured universe, so a
// baseline frame exists even for universes no rule targets; active reports
// which universes currently have a live raw input frame to read from.
func (t *MappingTable) Apply(inputs map[string][512]byte, active map[string]bool, universeIDs []string) MapResult {
	result := MapResult{
		Frames:  make(map[string][512]byte, len(universeIDs)),
		Touched: make(map[string][512]bool, len(universeIDs)),
	}

	passthrough := t == nil || !t.Enabled || t.UnmappedBehavior == UnmappedPassthrough
	for _, id := range universeIDs {
		var frame [512]byte
		var touched [512]bool
		if passthrough && active[id] {
			frame = inputs[id]
			for i := range touched {
				touched[i] = true
			}
		}
		result.Frames[id] = frame
		result.Touched[id] = touched
	}

	if t == nil || !t.Enabled {
		return result
	}

	for _, rule := range t.Rules {
		if rule.SrcChannel < 1 || rule.SrcChannel > 512 || !active[rule.SrcUniverseID] {
			continue
		}
		value := inputs[rule.SrcUniverseID][rule.SrcChannel-1]

		switch rule.Dst.Kind {
		case DestGlobalMaster:
			v := value
			result.GlobalMaster = &v
		case DestUniverseMaster:
			if result.UniverseMasters == nil {
				result.UniverseMasters = make(map[string]byte)
			}
			result.UniverseMasters[rule.Dst.UniverseID] = value
		default: // DestChannel
			if rule.Dst.Channel < 1 || rule.Dst.Channel > 512 {
				continue
			}
			frame := result.Frames[rule.Dst.UniverseID]
			frame[rule.Dst.Channel-1] = value
			result.Frames[rule.Dst.UniverseID] = frame

			touched := result.Touched[rule.Dst.UniverseID]
			touched[rule.Dst.Channel-1] = true
			result.Touched[rule.Dst.UniverseID] = touched
		}
	}

	return result
}
