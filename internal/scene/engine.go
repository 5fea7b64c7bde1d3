package scene

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dmxx/dmxx-server/internal/engine"
)

// TransitionType is how a scene recall moves channels from their current
// value to the scene's target value.
type TransitionType string

const (
	TransitionInstant   TransitionType = "instant"
	TransitionFade      TransitionType = "fade"
	TransitionCrossfade TransitionType = "crossfade"
)

// ChannelValue is one channel's target within a scene.
type ChannelValue struct {
	UniverseID string
	Channel    int
	Value      byte
}

// Scene is a named, storable target frame plus its default transition.
type Scene struct {
	ID             string
	Name           string
	Transition     TransitionType
	DurationMillis int
	Easing         EasingType
	Values         []ChannelValue
}

// channelFade tracks one channel's interpolation within a running
// transition.
type channelFade struct {
	start float64
	end   float64
}

// transition is a single recall's running state for one universe. A
// universe has at most one running transition at a time; a new recall
// cancels and replaces whatever was running there, continuing the visual
// motion from the channels' current values rather than snapping back.
type transition struct {
	sceneID   string
	universe  string
	fades     map[int]*channelFade // channel -> fade
	startedAt time.Time
	duration  time.Duration
	easing    EasingType
}

// Engine runs the scene transition state machine: one ticker task
// interpolating every running transition, at least SceneUpdateRateHz times
// per second.
type Engine struct {
	log    *logrus.Logger
	core   *engine.Engine
	rateHz int

	mu           sync.Mutex
	transitions  map[string]*transition // universeID -> running transition
	stopCh       chan struct{}
	runningCh    chan struct{}
}

// New builds a scene Engine driving commands into the given core engine.
func New(log *logrus.Logger, core *engine.Engine, rateHz int) *Engine {
	if rateHz < 40 {
		rateHz = 40
	}
	return &Engine{
		log:         log,
		core:        core,
		rateHz:      rateHz,
		transitions: make(map[string]*transition),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the interpolation ticker in its own goroutine.
func (e *Engine) Start() {
	e.runningCh = make(chan struct{})
	go e.run()
}

// Stop ends the interpolation ticker and waits for it to exit.
func (e *Engine) Stop() {
	close(e.stopCh)
	if e.runningCh != nil {
		<-e.runningCh
	}
}

func (e *Engine) run() {
	defer close(e.runningCh)
	interval := time.Second / time.Duration(e.rateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case now := <-ticker.C:
			e.tick(now)
		}
	}
}

// Recall starts a scene recall, resolving its transition type and duration
// (an override takes precedence over the scene's own default), and cancels
// any transition already running on a universe the scene touches.
func (e *Engine) Recall(s *Scene, overrideType TransitionType, overrideDuration time.Duration) {
	transitionType := s.Transition
	if overrideType != "" {
		transitionType = overrideType
	}
	duration := time.Duration(s.DurationMillis) * time.Millisecond
	if overrideDuration > 0 {
		duration = overrideDuration
	}

	byUniverse := make(map[string][]ChannelValue)
	for _, v := range s.Values {
		byUniverse[v.UniverseID] = append(byUniverse[v.UniverseID], v)
	}

	src := engine.SourceTag{Kind: "scene"}

	for universeID, values := range byUniverse {
		if transitionType == TransitionInstant || duration <= 0 {
			vals := make(map[int]byte, len(values))
			for _, v := range values {
				vals[v.Channel] = v.Value
			}
			e.core.Enqueue(engine.Command{Kind: "set_channels", UniverseID: universeID, Values: vals, Source: src})
			e.mu.Lock()
			delete(e.transitions, universeID)
			e.mu.Unlock()
			continue
		}

		fades := make(map[int]*channelFade, len(values))
		snap, _ := e.core.Snapshot(universeID)
		for _, v := range values {
			start := 0.0
			if v.Channel >= 1 && v.Channel <= 512 {
				start = float64(snap.Output[v.Channel-1])
			}
			fades[v.Channel] = &channelFade{start: start, end: float64(v.Value)}
		}

		t := &transition{
			sceneID:   s.ID,
			universe:  universeID,
			fades:     fades,
			startedAt: time.Now(),
			duration:  duration,
			easing:    s.Easing,
		}

		e.mu.Lock()
		e.transitions[universeID] = t // replaces and so cancels any prior transition on this universe
		e.mu.Unlock()
	}
}

// Cancel stops any running transition on a universe without changing the
// channel values it last produced.
func (e *Engine) Cancel(universeID string) {
	e.mu.Lock()
	delete(e.transitions, universeID)
	e.mu.Unlock()
}

// Running reports whether a universe currently has a transition in flight.
func (e *Engine) Running(universeID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.transitions[universeID]
	return ok
}

func (e *Engine) tick(now time.Time) {
	e.mu.Lock()
	due := make([]*transition, 0, len(e.transitions))
	for id, t := range e.transitions {
		due = append(due, t)
		_ = id
	}
	e.mu.Unlock()

	src := engine.SourceTag{Kind: "scene"}
	for _, t := range due {
		elapsed := now.Sub(t.startedAt)
		progress := 1.0
		if t.duration > 0 {
			progress = float64(elapsed) / float64(t.duration)
		}
		finished := progress >= 1.0
		if finished {
			progress = 1.0
		}

		vals := make(map[int]byte, len(t.fades))
		for ch, f := range t.fades {
			v := Interpolate(f.start, f.end, progress, t.easing)
			vals[ch] = clampByte(v)
		}
		e.core.Enqueue(engine.Command{Kind: "set_channels", UniverseID: t.universe, Values: vals, Source: src})

		if finished {
			e.mu.Lock()
			if cur, ok := e.transitions[t.universe]; ok && cur == t {
				delete(e.transitions, t.universe)
			}
			e.mu.Unlock()
		}
	}
}
