package engine

// Patch assigns a fixture's channel block to a starting DMX address within
// a universe, so callers can address a fixture+attribute pair instead of a
// raw universe+channel pair.
type Patch struct {
	FixtureID    string
	UniverseID   string
	Address      int // 1-indexed starting channel
	ChannelCount int
}

// PatchTable resolves fixture-relative channel writes to absolute
// universe/channel coordinates.
type PatchTable struct {
	patches map[string]*Patch // fixtureID -> patch
}

// NewPatchTable builds a lookup table from a flat patch list.
func NewPatchTable(patches []*Patch) *PatchTable {
	t := &PatchTable{patches: make(map[string]*Patch, len(patches))}
	for _, p := range patches {
		t.patches[p.FixtureID] = p
	}
	return t
}

// Resolve translates a (fixtureID, offset) pair — offset is 0-indexed
// within the fixture's channel block — into the absolute (universeID,
// channel) coordinate the state store expects. ok is false if the fixture
// is unpatched or the offset is out of range.
func (t *PatchTable) Resolve(fixtureID string, offset int) (universeID string, channel int, ok bool) {
	p, found := t.patches[fixtureID]
	if !found || offset < 0 || offset >= p.ChannelCount {
		return "", 0, false
	}
	return p.UniverseID, p.Address + offset, true
}
