// Package engine implements the universe state store and deterministic
// processing pipeline: input merge, channel mapping, patch/fader layer,
// groups, highlight/park/blackout modifiers, and grandmaster scaling.
package engine

// SourceTag identifies what last wrote a channel's merged value, so the hub
// can attribute echoed state-change events.
type SourceTag struct {
	Kind     string // "operator", "input", "scene", "default"
	ClientID string // set when Kind == "operator"
}

// UniverseState holds one universe's layers: the operator layer (last
// explicit write from a client or scene), the raw external input frame as
// received off the wire, the mapped input frame the Channel Mapper produced
// from it this tick (and which of its channels the mapper actually wrote),
// and the last emitted output (post-pipeline, what was actually sent on the
// wire).
type UniverseState struct {
	Operator [512]byte
	Source   [512]SourceTag

	RawInput       [512]byte // last frame received from external input, pre-mapping
	RawInputActive bool      // true while an external input frame is currently present

	Input        [512]byte // this tick's mapped input, valid only where InputTouched is set
	InputTouched [512]bool

	Output [512]byte
	Dirty  bool // set whenever Operator or RawInput changes since the last tick

	InputBypass bool // operator-forced bypass of external input, regardless of RawInputActive
}

// NewUniverseState returns a zeroed universe state.
func NewUniverseState() *UniverseState {
	return &UniverseState{}
}

// Merge computes the post-mapping merged frame for this universe:
// per-channel, the mapped input value wins over the operator layer for any
// channel the mapper actually wrote this tick, unless input is bypassed.
func (s *UniverseState) Merge() [512]byte {
	if s.InputBypass {
		return s.Operator
	}
	merged := s.Operator
	for i := 0; i < 512; i++ {
		if s.InputTouched[i] {
			merged[i] = s.Input[i]
		}
	}
	return merged
}

// SetOperatorChannel writes one 1-indexed channel in the operator layer and
// tags its source.
func (s *UniverseState) SetOperatorChannel(channel int, value byte, tag SourceTag) {
	if channel < 1 || channel > 512 {
		return
	}
	idx := channel - 1
	if s.Operator[idx] == value {
		return
	}
	s.Operator[idx] = value
	s.Source[idx] = tag
	s.Dirty = true
}

// SetRawInput replaces the raw external input frame and marks it active.
// The Channel Mapper reads this frame once per tick; it is not itself
// visible to Merge until mapped via SetMappedInput.
func (s *UniverseState) SetRawInput(frame [512]byte) {
	s.RawInput = frame
	s.RawInputActive = true
	s.Dirty = true
}

// SetMappedInput installs this tick's Channel Mapper output for the
// universe: the mapped values, and which channels the mapper actually
// wrote. Channels outside touched keep showing the operator layer.
func (s *UniverseState) SetMappedInput(values [512]byte, touched [512]bool) {
	s.Input = values
	s.InputTouched = touched
}

// ClearInput marks the raw input layer inactive, falling back to the
// operator layer on the next mapping pass.
func (s *UniverseState) ClearInput() {
	if !s.RawInputActive {
		return
	}
	s.RawInputActive = false
	s.Dirty = true
}
