package engine

// Command is a request to mutate engine state, applied only at the next
// tick boundary. The zero value of each optional field means "not set".
type Command struct {
	Kind string // "set_channel", "set_channels", "set_input_frame", "clear_input", "set_group_master", "park", "unpark", "highlight", "blackout", "grandmaster", "universe_grandmaster", "bypass_input"

	UniverseID string
	Channel    int
	Value      byte
	Values     map[int]byte // channel -> value, for batched writes
	Source     SourceTag

	InputFrame [512]byte

	GroupID string
	Master  byte

	HighlightActive bool
	HighlightDim    byte
	HighlightAdd    []int
	HighlightRemove []int

	BlackoutActive bool

	GrandmasterValue byte

	InputBypass bool
}

// Enqueue submits a command for processing at the next tick. It never
// blocks: set_channel/set_channels retry once non-blockingly before being
// counted as a miss; every other command class is dropped immediately on a
// full queue and counted, per the scheduler's overrun accounting.
func (e *Engine) Enqueue(cmd Command) {
	select {
	case e.commands <- cmd:
		return
	default:
	}

	switch cmd.Kind {
	case "set_channel", "set_channels":
		select {
		case e.commands <- cmd:
		default:
			e.queueMisses++
		}
	default:
		e.queueMisses++
	}
}
