package engine

import "testing"

func TestMappingTable_Apply_NilPassesThroughActiveUniverses(t *testing.T) {
	var table *MappingTable
	in := map[string][512]byte{"u1": setByte([512]byte{}, 0, 77)}

	result := table.Apply(in, map[string]bool{"u1": true}, []string{"u1"})
	if result.Frames["u1"][0] != 77 {
		t.Fatalf("Frames[u1][0] = %d, want 77 (nil table passes raw input through)", result.Frames["u1"][0])
	}
	if !result.Touched["u1"][0] {
		t.Fatal("nil table should mark passthrough channels as touched")
	}
}

func TestMappingTable_Apply_DisabledPassesThroughActiveUniverses(t *testing.T) {
	table := &MappingTable{}
	in := map[string][512]byte{"u1": setByte([512]byte{}, 5, 9)}

	result := table.Apply(in, map[string]bool{"u1": true}, []string{"u1"})
	if result.Frames["u1"][5] != 9 {
		t.Fatalf("Frames[u1][5] = %d, want 9", result.Frames["u1"][5])
	}
}

func TestMappingTable_Apply_InactiveUniverseGetsZeroBaseline(t *testing.T) {
	table := &MappingTable{}
	result := table.Apply(map[string][512]byte{"u1": {}}, map[string]bool{"u1": false}, []string{"u1"})
	var zero [512]byte
	if result.Frames["u1"] != zero {
		t.Fatal("an inactive universe with no rules targeting it should stay at zero")
	}
}

func TestMappingTable_Apply_UnmappedIgnoreZerosUntouchedChannels(t *testing.T) {
	table := &MappingTable{
		Enabled:          true,
		UnmappedBehavior: UnmappedIgnore,
		Rules: []MappingRule{
			{SrcUniverseID: "u1", SrcChannel: 1, Dst: MappingDest{Kind: DestChannel, UniverseID: "u2", Channel: 5}},
		},
	}
	in := map[string][512]byte{
		"u1": setByte([512]byte{}, 0, 128),
		"u2": {},
	}

	result := table.Apply(in, map[string]bool{"u1": true, "u2": false}, []string{"u1", "u2"})
	if result.Frames["u2"][4] != 128 {
		t.Fatalf("Frames[u2][4] = %d, want 128", result.Frames["u2"][4])
	}
	if result.Frames["u1"][0] != 0 {
		t.Fatalf("Frames[u1][0] = %d, want 0 (untouched channel under ignore)", result.Frames["u1"][0])
	}
}

func TestMappingTable_Apply_UnmappedPassthroughKeepsUntouchedChannels(t *testing.T) {
	table := &MappingTable{
		Enabled:          true,
		UnmappedBehavior: UnmappedPassthrough,
		Rules: []MappingRule{
			{SrcUniverseID: "u1", SrcChannel: 1, Dst: MappingDest{Kind: DestChannel, UniverseID: "u1", Channel: 5}},
		},
	}
	frame := setByte([512]byte{}, 0, 128)
	frame = setByte(frame, 1, 9)
	in := map[string][512]byte{"u1": frame}

	result := table.Apply(in, map[string]bool{"u1": true}, []string{"u1"})
	if result.Frames["u1"][4] != 128 {
		t.Fatalf("Frames[u1][4] = %d, want 128", result.Frames["u1"][4])
	}
	if result.Frames["u1"][1] != 9 {
		t.Fatalf("Frames[u1][1] = %d, want 9 (untouched channel should pass through raw input)", result.Frames["u1"][1])
	}
}

func TestMappingTable_Apply_CrossUniverseRemap(t *testing.T) {
	table := &MappingTable{
		Enabled: true,
		Rules: []MappingRule{
			{SrcUniverseID: "u1", SrcChannel: 1, Dst: MappingDest{Kind: DestChannel, UniverseID: "u2", Channel: 1}},
		},
	}
	in := map[string][512]byte{
		"u1": setByte([512]byte{}, 0, 55),
		"u2": {},
	}

	result := table.Apply(in, map[string]bool{"u1": true, "u2": true}, []string{"u1", "u2"})
	if result.Frames["u2"][0] != 55 {
		t.Fatalf("Frames[u2][0] = %d, want 55 (cross-universe remap)", result.Frames["u2"][0])
	}
}

func TestMappingTable_Apply_LaterRuleWinsOnConflict(t *testing.T) {
	table := &MappingTable{
		Enabled: true,
		Rules: []MappingRule{
			{SrcUniverseID: "u1", SrcChannel: 1, Dst: MappingDest{Kind: DestChannel, UniverseID: "u1", Channel: 10}},
			{SrcUniverseID: "u1", SrcChannel: 2, Dst: MappingDest{Kind: DestChannel, UniverseID: "u1", Channel: 10}},
		},
	}
	frame := setByte([512]byte{}, 0, 11)
	frame = setByte(frame, 1, 22)
	in := map[string][512]byte{"u1": frame}

	result := table.Apply(in, map[string]bool{"u1": true}, []string{"u1"})
	if result.Frames["u1"][9] != 22 {
		t.Fatalf("Frames[u1][9] = %d, want 22 (later rule should win)", result.Frames["u1"][9])
	}
}

func TestMappingTable_Apply_GlobalMasterDest(t *testing.T) {
	table := &MappingTable{
		Enabled: true,
		Rules: []MappingRule{
			{SrcUniverseID: "u1", SrcChannel: 1, Dst: MappingDest{Kind: DestGlobalMaster}},
		},
	}
	in := map[string][512]byte{"u1": setByte([512]byte{}, 0, 200)}

	result := table.Apply(in, map[string]bool{"u1": true}, []string{"u1"})
	if result.GlobalMaster == nil || *result.GlobalMaster != 200 {
		t.Fatalf("GlobalMaster = %v, want 200", result.GlobalMaster)
	}
}

func TestMappingTable_Apply_UniverseMasterDest(t *testing.T) {
	table := &MappingTable{
		Enabled: true,
		Rules: []MappingRule{
			{SrcUniverseID: "u1", SrcChannel: 1, Dst: MappingDest{Kind: DestUniverseMaster, UniverseID: "u2"}},
		},
	}
	in := map[string][512]byte{"u1": setByte([512]byte{}, 0, 150)}

	result := table.Apply(in, map[string]bool{"u1": true}, []string{"u1", "u2"})
	if got := result.UniverseMasters["u2"]; got != 150 {
		t.Fatalf("UniverseMasters[u2] = %d, want 150", got)
	}
}

func TestMappingTable_Apply_InactiveSourceRuleSkipped(t *testing.T) {
	table := &MappingTable{
		Enabled: true,
		Rules: []MappingRule{
			{SrcUniverseID: "u1", SrcChannel: 1, Dst: MappingDest{Kind: DestChannel, UniverseID: "u2", Channel: 1}},
		},
	}
	in := map[string][512]byte{
		"u1": setByte([512]byte{}, 0, 77),
		"u2": {},
	}

	result := table.Apply(in, map[string]bool{"u1": false, "u2": true}, []string{"u1", "u2"})
	if result.Frames["u2"][0] != 0 {
		t.Fatalf("Frames[u2][0] = %d, want 0 (rule sourced from an inactive universe must not fire)", result.Frames["u2"][0])
	}
}

func TestMappingTable_Apply_OutOfRangeRuleIgnored(t *testing.T) {
	table := &MappingTable{
		Enabled: true,
		Rules: []MappingRule{
			{SrcUniverseID: "u1", SrcChannel: 0, Dst: MappingDest{Kind: DestChannel, UniverseID: "u1", Channel: 600}},
		},
	}
	result := table.Apply(map[string][512]byte{"u1": {}}, map[string]bool{"u1": true}, []string{"u1"})
	var zero [512]byte
	if result.Frames["u1"] != zero {
		t.Fatal("out-of-range rules should be ignored entirely")
	}
}

func setByte(frame [512]byte, idx int, v byte) [512]byte {
	frame[idx] = v
	return frame
}
