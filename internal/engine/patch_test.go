package engine

import "testing"

func TestPatchTable_Resolve(t *testing.T) {
	patches := []*Patch{
		{FixtureID: "f1", UniverseID: "u1", Address: 10, ChannelCount: 4},
	}
	table := NewPatchTable(patches)

	universeID, channel, ok := table.Resolve("f1", 2)
	if !ok {
		t.Fatal("expected resolve to succeed")
	}
	if universeID != "u1" || channel != 12 {
		t.Fatalf("got (%s, %d), want (u1, 12)", universeID, channel)
	}
}

func TestPatchTable_Resolve_UnpatchedFixture(t *testing.T) {
	table := NewPatchTable(nil)
	_, _, ok := table.Resolve("missing", 0)
	if ok {
		t.Fatal("expected resolve to fail for an unpatched fixture")
	}
}

func TestPatchTable_Resolve_OffsetOutOfRange(t *testing.T) {
	patches := []*Patch{{FixtureID: "f1", UniverseID: "u1", Address: 1, ChannelCount: 2}}
	table := NewPatchTable(patches)

	if _, _, ok := table.Resolve("f1", 2); ok {
		t.Fatal("expected resolve to fail for an out-of-range offset")
	}
	if _, _, ok := table.Resolve("f1", -1); ok {
		t.Fatal("expected resolve to fail for a negative offset")
	}
}
