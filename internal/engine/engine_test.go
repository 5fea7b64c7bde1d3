package engine

import "testing"

func TestEngine_Tick_SetChannelThenSnapshot(t *testing.T) {
	e := New(discardLogger(), []string{"u1"})
	e.Enqueue(Command{Kind: "set_channel", UniverseID: "u1", Channel: 1, Value: 200})
	e.Tick()

	snap, ok := e.Snapshot("u1")
	if !ok {
		t.Fatal("expected a snapshot for u1")
	}
	if snap.Output[0] != 200 {
		t.Fatalf("Output[0] = %d, want 200", snap.Output[0])
	}
	if !snap.Dirty {
		t.Fatal("expected the first tick after a write to report dirty")
	}
}

func TestEngine_Tick_MappingRemapsAcrossUniverses(t *testing.T) {
	e := New(discardLogger(), []string{"u1", "u2"})
	e.SetMappingTable(&MappingTable{
		Enabled:          true,
		UnmappedBehavior: UnmappedIgnore,
		Rules: []MappingRule{
			{SrcUniverseID: "u1", SrcChannel: 1, Dst: MappingDest{Kind: DestChannel, UniverseID: "u2", Channel: 5}},
		},
	})

	var frame [512]byte
	frame[0] = 128
	e.Enqueue(Command{Kind: "set_input_frame", UniverseID: "u1", InputFrame: frame})
	e.Tick()

	snap, _ := e.Snapshot("u2")
	if snap.Output[4] != 128 {
		t.Fatalf("u2 Output[4] = %d, want 128", snap.Output[4])
	}

	u1snap, _ := e.Snapshot("u1")
	if u1snap.Output[0] != 0 {
		t.Fatalf("u1 Output[0] = %d, want 0 (unmapped_behavior=ignore zeros untouched channels)", u1snap.Output[0])
	}
}

func TestEngine_Tick_PerChannelMergeOfOperatorAndMappedInput(t *testing.T) {
	e := New(discardLogger(), []string{"u1"})
	e.SetMappingTable(&MappingTable{Enabled: true, UnmappedBehavior: UnmappedPassthrough})

	e.Enqueue(Command{Kind: "set_channel", UniverseID: "u1", Channel: 2, Value: 60})

	var frame [512]byte
	frame[0] = 128
	e.Enqueue(Command{Kind: "set_input_frame", UniverseID: "u1", InputFrame: frame})
	e.Tick()

	snap, _ := e.Snapshot("u1")
	if snap.Output[0] != 128 {
		t.Fatalf("Output[0] = %d, want 128 (input channel)", snap.Output[0])
	}
	if snap.Output[1] != 0 {
		t.Fatalf("Output[1] = %d, want 0 (input frame's own channel 2 passes through too, overriding the operator layer)", snap.Output[1])
	}
}

func TestEngine_Tick_MappingRuleDrivesGlobalGrandmaster(t *testing.T) {
	e := New(discardLogger(), []string{"u1"})
	e.SetMappingTable(&MappingTable{
		Enabled:          true,
		UnmappedBehavior: UnmappedIgnore,
		Rules: []MappingRule{
			{SrcUniverseID: "u1", SrcChannel: 1, Dst: MappingDest{Kind: DestGlobalMaster}},
		},
	})

	var frame [512]byte
	frame[0] = 128
	e.Enqueue(Command{Kind: "set_input_frame", UniverseID: "u1", InputFrame: frame})
	e.Enqueue(Command{Kind: "set_channel", UniverseID: "u1", Channel: 10, Value: 200})
	e.Tick()

	snap, _ := e.Snapshot("u1")
	want := scale8(200, 128)
	if snap.Output[9] != want {
		t.Fatalf("Output[9] = %d, want %d (mapped input should drive the global master)", snap.Output[9], want)
	}
}

func TestEngine_Tick_GroupScaleAppliesBeforeGrandmaster(t *testing.T) {
	ge, err := NewGroupEngine([]*Group{
		{ID: "g1", Mode: "master_scales", Enabled: true, Members: []GroupMember{{Kind: MemberChannel, UniverseID: "u1", Channel: 1}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := New(discardLogger(), []string{"u1"})
	e.SetGroupEngine(ge)
	e.Enqueue(Command{Kind: "set_channel", UniverseID: "u1", Channel: 1, Value: 200})
	e.Enqueue(Command{Kind: "set_group_master", GroupID: "g1", Master: 64})
	e.Tick()

	snap, _ := e.Snapshot("u1")
	want := scale8(200, 64)
	if snap.Output[0] != want {
		t.Fatalf("Output[0] = %d, want %d", snap.Output[0], want)
	}
}

func TestEngine_Tick_UniverseGrandmasterCommand(t *testing.T) {
	e := New(discardLogger(), []string{"u1"})
	e.Enqueue(Command{Kind: "set_channel", UniverseID: "u1", Channel: 1, Value: 200})
	e.Enqueue(Command{Kind: "universe_grandmaster", UniverseID: "u1", GrandmasterValue: 128})
	e.Tick()

	snap, _ := e.Snapshot("u1")
	want := scale8(200, 128)
	if snap.Output[0] != want {
		t.Fatalf("Output[0] = %d, want %d", snap.Output[0], want)
	}
}

func TestEngine_Tick_ParkedChannelBypassesGrandmaster(t *testing.T) {
	e := New(discardLogger(), []string{"u1"})
	e.Enqueue(Command{Kind: "grandmaster", GrandmasterValue: 0})
	e.Enqueue(Command{Kind: "park", UniverseID: "u1", Channel: 1, Value: 200})
	e.Tick()

	snap, _ := e.Snapshot("u1")
	if snap.Output[0] != 200 {
		t.Fatalf("Output[0] = %d, want 200 (parked channel bypasses a zeroed grandmaster)", snap.Output[0])
	}
}

func TestEngine_Tick_UnknownUniverseCommandDropped(t *testing.T) {
	e := New(discardLogger(), []string{"u1"})
	e.Enqueue(Command{Kind: "set_channel", UniverseID: "does-not-exist", Channel: 1, Value: 1})
	// Should not panic.
	e.Tick()
}

func TestEngine_InputSnapshot_ReflectsActiveRawInput(t *testing.T) {
	e := New(discardLogger(), []string{"u1"})
	var frame [512]byte
	frame[0] = 42
	e.Enqueue(Command{Kind: "set_input_frame", UniverseID: "u1", InputFrame: frame})
	e.Tick()

	got, ok := e.InputSnapshot("u1")
	if !ok {
		t.Fatal("expected an active input snapshot for u1")
	}
	if got[0] != 42 {
		t.Fatalf("InputSnapshot[0] = %d, want 42", got[0])
	}

	e.Enqueue(Command{Kind: "clear_input", UniverseID: "u1"})
	e.Tick()
	if _, ok := e.InputSnapshot("u1"); ok {
		t.Fatal("expected no input snapshot after ClearInput")
	}
}

func TestEngine_UniverseIDs(t *testing.T) {
	e := New(discardLogger(), []string{"u1", "u2"})
	ids := e.UniverseIDs()
	if len(ids) != 2 {
		t.Fatalf("len(ids) = %d, want 2", len(ids))
	}
}
