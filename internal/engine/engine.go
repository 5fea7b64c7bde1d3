package engine

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Snapshot is one universe's fully-processed output frame plus its dirty
// flag, as read by the output scheduler after a tick.
type Snapshot struct {
	Output [512]byte
	Dirty  bool
}

// Engine is the single task that owns every universe's mutable state. All
// writes arrive as Commands on a buffered channel and are applied only at
// tick boundaries; nothing outside the engine goroutine ever touches
// universe arrays directly, so the pipeline needs no locking.
type Engine struct {
	log *logrus.Logger

	states    map[string]*UniverseState
	mapper    *MappingTable
	modifiers map[string]*Modifiers
	patches   *PatchTable
	groups    *GroupEngine
	gm        *Grandmaster

	commands    chan Command
	queueMisses int

	mu             sync.RWMutex // protects the published snapshot and input snapshot maps only
	snapshots      map[string]Snapshot
	inputSnapshots map[string][512]byte
}

// New constructs an Engine for a fixed set of universe IDs. Universes must
// be known up front; adding one means constructing a new Engine.
func New(log *logrus.Logger, universeIDs []string) *Engine {
	e := &Engine{
		log:            log,
		states:         make(map[string]*UniverseState),
		modifiers:      make(map[string]*Modifiers),
		patches:        NewPatchTable(nil),
		gm:             NewGrandmaster(),
		commands:       make(chan Command, 1024),
		snapshots:      make(map[string]Snapshot),
		inputSnapshots: make(map[string][512]byte),
	}
	for _, id := range universeIDs {
		e.states[id] = NewUniverseState()
		e.modifiers[id] = NewModifiers()
	}
	ge, err := NewGroupEngine(nil)
	if err != nil {
		// nil group list can never cycle; this branch exists only to
		// surface a programmer error were NewGroupEngine's contract to change.
		log.WithError(err).Error("engine: unexpected error building empty group engine")
	}
	e.groups = ge
	return e
}

// SetMappingTable installs the single globally-active channel mapping
// table, replacing any previous one. At most one table is ever active; a
// nil or disabled table makes the mapper a pure passthrough.
func (e *Engine) SetMappingTable(table *MappingTable) {
	e.mapper = table
}

// SetPatchTable installs the fixture patch table.
func (e *Engine) SetPatchTable(table *PatchTable) {
	e.patches = table
}

// SetGroupEngine installs a validated group engine, replacing any previous
// one. Callers must have already confirmed acyclicity via NewGroupEngine.
func (e *Engine) SetGroupEngine(ge *GroupEngine) {
	e.groups = ge
}

// Commands returns the channel commands are accepted on (used by Enqueue).
func (e *Engine) Commands() chan<- Command { return e.commands }

// QueueMisses returns the running count of dropped/retried-and-dropped
// commands since startup.
func (e *Engine) QueueMisses() int { return e.queueMisses }

// Tick drains every pending command, then runs the deterministic pipeline
// (mapper -> merge -> groups -> modifiers -> grandmaster) for every
// universe, and publishes the result for the output scheduler to read.
func (e *Engine) Tick() {
	e.drainCommands()

	universeIDs := e.UniverseIDs()

	rawInputs := make(map[string][512]byte, len(e.states))
	rawActive := make(map[string]bool, len(e.states))
	for id, st := range e.states {
		rawInputs[id] = st.RawInput
		rawActive[id] = st.RawInputActive && !st.InputBypass
	}

	mapped := e.mapper.Apply(rawInputs, rawActive, universeIDs)
	if v := mapped.GlobalMaster; v != nil {
		e.gm.Value = *v
	}
	for id, v := range mapped.UniverseMasters {
		e.gm.SetUniverseMaster(id, v)
	}

	frames := make(map[string]*[512]byte, len(e.states))
	for id, st := range e.states {
		st.SetMappedInput(mapped.Frames[id], mapped.Touched[id])
		merged := st.Merge()
		frames[id] = &merged
	}

	var groupResult GroupResult
	if e.groups != nil {
		groupResult = e.groups.Resolve(frames)
	}
	if v := groupResult.GlobalMaster; v != nil {
		e.gm.Value = *v
	}
	for id, v := range groupResult.UniverseMasters {
		e.gm.SetUniverseMaster(id, v)
	}

	e.mu.Lock()
	for id, st := range e.states {
		out := *frames[id]
		mod := e.modifiers[id]
		if mod != nil {
			out = mod.Apply(out)
		}

		parked := map[int]bool(nil)
		if mod != nil && len(mod.Parks) > 0 {
			parked = make(map[int]bool, len(mod.Parks))
			for ch := range mod.Parks {
				parked[ch] = true
			}
		}
		out = e.gm.Apply(id, out, parked)

		dirty := out != st.Output || st.Dirty
		st.Output = out
		st.Dirty = false

		e.snapshots[id] = Snapshot{Output: out, Dirty: dirty}
		if st.RawInputActive {
			e.inputSnapshots[id] = st.RawInput
		} else {
			delete(e.inputSnapshots, id)
		}
	}
	e.mu.Unlock()
}

// Snapshot returns the last published frame for a universe.
func (e *Engine) Snapshot(universeID string) (Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.snapshots[universeID]
	return s, ok
}

// InputSnapshot returns the last raw input frame received for a universe,
// if one is currently active.
func (e *Engine) InputSnapshot(universeID string) ([512]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.inputSnapshots[universeID]
	return f, ok
}

// UniverseIDs returns every configured universe ID, in no particular order.
func (e *Engine) UniverseIDs() []string {
	ids := make([]string, 0, len(e.states))
	for id := range e.states {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) drainCommands() {
	for {
		select {
		case cmd := <-e.commands:
			e.apply(cmd)
		default:
			return
		}
	}
}

func (e *Engine) apply(cmd Command) {
	st, ok := e.states[cmd.UniverseID]
	if !ok && cmd.Kind != "set_group_master" && cmd.Kind != "blackout" && cmd.Kind != "grandmaster" {
		e.log.WithField("universe", cmd.UniverseID).Warn("engine: command for unknown universe dropped")
		return
	}

	switch cmd.Kind {
	case "set_channel":
		st.SetOperatorChannel(cmd.Channel, cmd.Value, cmd.Source)
	case "set_channels":
		for ch, v := range cmd.Values {
			st.SetOperatorChannel(ch, v, cmd.Source)
		}
	case "set_input_frame":
		st.SetRawInput(cmd.InputFrame)
	case "clear_input":
		st.ClearInput()
	case "bypass_input":
		st.InputBypass = cmd.InputBypass
		st.Dirty = true
	case "set_group_master":
		if e.groups != nil {
			e.groups.SetMaster(cmd.GroupID, cmd.Master)
		}
	case "park":
		if mod := e.modifiers[cmd.UniverseID]; mod != nil {
			mod.Parks[cmd.Channel] = cmd.Value
		}
	case "unpark":
		if mod := e.modifiers[cmd.UniverseID]; mod != nil {
			delete(mod.Parks, cmd.Channel)
		}
	case "highlight":
		if mod := e.modifiers[cmd.UniverseID]; mod != nil {
			mod.HighlightActive = cmd.HighlightActive
			mod.HighlightDim = cmd.HighlightDim
			for _, ch := range cmd.HighlightAdd {
				mod.HighlightSet[ch] = true
			}
			for _, ch := range cmd.HighlightRemove {
				delete(mod.HighlightSet, ch)
			}
		}
	case "blackout":
		for _, mod := range e.modifiers {
			mod.Blackout = cmd.BlackoutActive
		}
	case "grandmaster":
		e.gm.Value = cmd.GrandmasterValue
	case "universe_grandmaster":
		e.gm.SetUniverseMaster(cmd.UniverseID, cmd.GrandmasterValue)
	default:
		e.log.WithField("kind", cmd.Kind).Warn("engine: unknown command kind dropped")
	}
}
