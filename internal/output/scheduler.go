// Package output implements the fixed-cadence output scheduler: it samples
// the engine's published snapshots on every tick and serializes them to
// Art-Net and/or sACN.
package output

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dmxx/dmxx-server/internal/engine"
	"github.com/dmxx/dmxx-server/internal/metrics"
	"github.com/dmxx/dmxx-server/pkg/artnet"
	"github.com/dmxx/dmxx-server/pkg/sacn"
)

// UniverseTarget is one universe's output configuration: which protocol to
// serialize it as, the wire universe number, and where to send it.
type UniverseTarget struct {
	UniverseID    string
	Protocol      string // "artnet" or "sacn"
	ArtNetNumber  int    // 1-based Art-Net universe number
	SACNNumber    uint16
	Destination   string // unicast address, or "" for broadcast/multicast
}

// Scheduler owns the single output task. It ticks at RateHz (never below
// FloorHz), reads each target universe's last-published engine snapshot,
// and writes a wire frame only when the output differs from the last frame
// sent or the snapshot is marked dirty. BatchThreshold is stored but not
// consulted when deciding what to send.
type Scheduler struct {
	log   *logrus.Logger
	core  *engine.Engine

	RateHz         int
	FloorHz        int
	BatchThreshold int

	targets []UniverseTarget

	artConn  *net.UDPConn
	artAddr  *net.UDPAddr
	sacnTx   *sacn.Transmitter
	sequence map[string]byte
	lastSent map[string][512]byte

	onFrame func(universeID string, frame [512]byte)

	stopCh    chan struct{}
	runningCh chan struct{}
}

// SetFrameObserver installs a callback invoked once per tick for every
// universe whose frame was sent this tick, after the frame has been
// dispatched. The hub uses this to decide between emitting individual
// channel_change events and a consolidated values snapshot.
func (s *Scheduler) SetFrameObserver(fn func(universeID string, frame [512]byte)) {
	s.onFrame = fn
}

// New builds a Scheduler. broadcastAddr is the Art-Net destination used
// when a target has no explicit Destination ("" means the standard
// Art-Net limited broadcast on the configured port).
func New(log *logrus.Logger, core *engine.Engine, rateHz, floorHz, batchThreshold int, broadcastAddr string, artnetPort int, sacnTx *sacn.Transmitter) (*Scheduler, error) {
	if floorHz <= 0 {
		floorHz = 20
	}
	if rateHz <= 0 {
		rateHz = 44
	}
	if rateHz < floorHz {
		rateHz = floorHz
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("output: failed to open art-net socket: %w", err)
	}

	if broadcastAddr == "" {
		broadcastAddr = "255.255.255.255"
	}
	artAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", broadcastAddr, artnetPort))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("output: bad art-net broadcast address %q: %w", broadcastAddr, err)
	}

	return &Scheduler{
		log:            log,
		core:           core,
		RateHz:         rateHz,
		FloorHz:        floorHz,
		BatchThreshold: batchThreshold,
		artConn:        conn,
		artAddr:        artAddr,
		sacnTx:         sacnTx,
		sequence:       make(map[string]byte),
		lastSent:       make(map[string][512]byte),
		stopCh:         make(chan struct{}),
	}, nil
}

// SetTargets installs the full set of universes the scheduler should emit,
// replacing any previous configuration.
func (s *Scheduler) SetTargets(targets []UniverseTarget) {
	s.targets = targets
}

// Start begins the fixed-cadence tick loop in its own goroutine.
func (s *Scheduler) Start() {
	s.runningCh = make(chan struct{})
	go s.run()
}

// Stop ends the tick loop, waits for it to exit, and releases the sockets.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	if s.runningCh != nil {
		<-s.runningCh
	}
	_ = s.artConn.Close()
	if s.sacnTx != nil {
		_ = s.sacnTx.Close()
	}
}

func (s *Scheduler) run() {
	defer close(s.runningCh)
	interval := time.Second / time.Duration(s.RateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case tickTime := <-ticker.C:
			start := time.Now()
			s.core.Tick()
			s.emit()
			overrun := time.Since(start) - interval
			if overrun > 0 {
				s.log.WithFields(logrus.Fields{
					"overrun_ms": overrun.Milliseconds(),
					"tick_time":  tickTime,
				}).Warn("output: tick overran its budget")
				metrics.TickOverruns.Inc()
			}
			metrics.TicksTotal.Inc()
		}
	}
}

func (s *Scheduler) emit() {
	for _, t := range s.targets {
		snap, ok := s.core.Snapshot(t.UniverseID)
		if !ok {
			continue
		}

		changed := countChanged(s.lastSent[t.UniverseID], snap.Output)
		if changed == 0 && !snap.Dirty {
			continue
		}
		s.lastSent[t.UniverseID] = snap.Output

		switch t.Protocol {
		case "sacn":
			s.sendSACN(t, snap.Output)
		default:
			s.sendArtNet(t, snap.Output)
		}
		metrics.FramesSent.WithLabelValues(t.UniverseID).Inc()

		if s.onFrame != nil {
			s.onFrame(t.UniverseID, snap.Output)
		}
	}
}

func (s *Scheduler) sendArtNet(t UniverseTarget, frame [512]byte) {
	seq := s.sequence[t.UniverseID]
	packet := artnet.BuildDMXPacket(t.ArtNetNumber, frame[:], seq)
	s.sequence[t.UniverseID] = seq + 1

	dest := s.artAddr
	if t.Destination != "" {
		if addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", t.Destination, artnet.DefaultPort)); err == nil {
			dest = addr
		}
	}
	if _, err := s.artConn.WriteToUDP(packet, dest); err != nil {
		s.log.WithError(err).WithField("universe", t.UniverseID).Error("output: art-net send failed")
		metrics.SendErrors.Inc()
	}
}

func (s *Scheduler) sendSACN(t UniverseTarget, frame [512]byte) {
	if s.sacnTx == nil {
		return
	}
	if err := s.sacnTx.Send(t.SACNNumber, frame[:]); err != nil {
		s.log.WithError(err).WithField("universe", t.UniverseID).Error("output: sacn send failed")
		metrics.SendErrors.Inc()
	}
}

// countChanged returns how many channels differ between two frames; emit
// uses it to skip universes whose output is unchanged since the last send.
func countChanged(a, b [512]byte) int {
	n := 0
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}
