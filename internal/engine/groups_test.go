package engine

import "testing"

func TestNewGroupEngine_DetectsCycle(t *testing.T) {
	groups := []*Group{
		{ID: "a", Mode: "master_scales", Members: []GroupMember{{Kind: MemberNestedGroup, NestedGroup: "b"}}},
		{ID: "b", Mode: "master_scales", Members: []GroupMember{{Kind: MemberNestedGroup, NestedGroup: "a"}}},
	}
	_, err := NewGroupEngine(groups)
	if err == nil {
		t.Fatal("expected a cycle error, got nil")
	}
}

func TestNewGroupEngine_AcceptsDAG(t *testing.T) {
	groups := []*Group{
		{ID: "parent", Mode: "master_scales", Members: []GroupMember{{Kind: MemberNestedGroup, NestedGroup: "child"}}},
		{ID: "child", Mode: "master_scales", Members: []GroupMember{{Kind: MemberChannel, UniverseID: "u1", Channel: 1}}},
	}
	ge, err := NewGroupEngine(groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ge.order) != 2 {
		t.Fatalf("order length = %d, want 2", len(ge.order))
	}
	if ge.order[0] != "child" {
		t.Fatalf("order[0] = %q, want child (children resolve before parents)", ge.order[0])
	}
}

func TestGroupEngine_Resolve_MasterScalesMode(t *testing.T) {
	groups := []*Group{
		{ID: "g1", Mode: "master_scales", Enabled: true, Members: []GroupMember{{Kind: MemberChannel, UniverseID: "u1", Channel: 1}}},
	}
	ge, err := NewGroupEngine(groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ge.SetMaster("g1", 64)

	frame := [512]byte{}
	frame[0] = 200
	frames := map[string]*[512]byte{"u1": &frame}
	ge.Resolve(frames)

	want := scale8(200, 64)
	if frame[0] != want {
		t.Fatalf("frame[0] = %d, want %d", frame[0], want)
	}
}

func TestGroupEngine_Resolve_MasterSetsMode_OverwritesOperatorLayer(t *testing.T) {
	groups := []*Group{
		{ID: "g1", Mode: "master_sets", Enabled: true, Members: []GroupMember{{Kind: MemberChannel, UniverseID: "u1", Channel: 1}}},
	}
	ge, err := NewGroupEngine(groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ge.SetMaster("g1", 99)

	frame := [512]byte{}
	frame[0] = 10 // whatever the operator layer had
	frames := map[string]*[512]byte{"u1": &frame}
	ge.Resolve(frames)

	if frame[0] != 99 {
		t.Fatalf("frame[0] = %d, want 99 (master_sets overwrites the member's value outright)", frame[0])
	}
}

func TestGroupEngine_Resolve_MasterLatchesMode_FollowsWhileChangingThenFreezes(t *testing.T) {
	groups := []*Group{
		{ID: "g1", Mode: "master_latches", Enabled: true, Members: []GroupMember{{Kind: MemberChannel, UniverseID: "u1", Channel: 1}}},
	}
	ge, err := NewGroupEngine(groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame := [512]byte{}
	frame[0] = 10 // operator layer value
	frames := map[string]*[512]byte{"u1": &frame}

	ge.SetMaster("g1", 100)
	ge.Resolve(frames)
	if frame[0] != 100 {
		t.Fatalf("frame[0] = %d, want 100 while the master is actively moving to a new value", frame[0])
	}

	// Master holds steady: the member should stop following and revert to
	// showing whatever the operator/input layer now has underneath it.
	frame[0] = 55
	ge.Resolve(frames)
	if frame[0] != 55 {
		t.Fatalf("frame[0] = %d, want 55 (latch released back to operator-layer control once master stopped)", frame[0])
	}

	// Master moves again: the member follows it once more.
	ge.SetMaster("g1", 200)
	ge.Resolve(frames)
	if frame[0] != 200 {
		t.Fatalf("frame[0] = %d, want 200 while the master is moving again", frame[0])
	}
}

func TestGroupEngine_Resolve_VirtualGlobalMasterMember(t *testing.T) {
	groups := []*Group{
		{ID: "g1", Mode: "master_scales", Enabled: true, Members: []GroupMember{{Kind: MemberGlobalMaster}}},
	}
	ge, err := NewGroupEngine(groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ge.SetMaster("g1", 77)

	result := ge.Resolve(map[string]*[512]byte{})
	if result.GlobalMaster == nil || *result.GlobalMaster != 77 {
		t.Fatalf("GlobalMaster = %v, want 77", result.GlobalMaster)
	}
}

func TestGroupEngine_Resolve_VirtualUniverseMasterMember(t *testing.T) {
	groups := []*Group{
		{ID: "g1", Mode: "master_scales", Enabled: true, Members: []GroupMember{{Kind: MemberUniverseMaster, UniverseID: "u1"}}},
	}
	ge, err := NewGroupEngine(groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ge.SetMaster("g1", 88)

	result := ge.Resolve(map[string]*[512]byte{})
	if got := result.UniverseMasters["u1"]; got != 88 {
		t.Fatalf("UniverseMasters[u1] = %d, want 88", got)
	}
}

func TestGroupEngine_Resolve_DisabledGroupSkipped(t *testing.T) {
	groups := []*Group{
		{ID: "g1", Mode: "master_sets", Enabled: false, Members: []GroupMember{{Kind: MemberChannel, UniverseID: "u1", Channel: 1}}},
	}
	ge, err := NewGroupEngine(groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ge.SetMaster("g1", 250)

	frame := [512]byte{}
	frame[0] = 10
	frames := map[string]*[512]byte{"u1": &frame}
	ge.Resolve(frames)

	if frame[0] != 10 {
		t.Fatalf("frame[0] = %d, want 10 (a disabled group must not touch any frame)", frame[0])
	}
}

func TestGroupEngine_Resolve_UnknownUniverseSkipped(t *testing.T) {
	groups := []*Group{
		{ID: "g1", Mode: "master_scales", Enabled: true, Members: []GroupMember{{Kind: MemberChannel, UniverseID: "missing", Channel: 1}}},
	}
	ge, err := NewGroupEngine(groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ge.SetMaster("g1", 10)
	// Should not panic when the member's universe isn't in frames.
	ge.Resolve(map[string]*[512]byte{})
}
