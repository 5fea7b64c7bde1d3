// Package ingest wires the Art-Net and sACN receivers into the engine: one
// goroutine per receiver, translating wire universe numbers to universe
// IDs and feeding parsed frames in as input commands.
package ingest

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dmxx/dmxx-server/internal/engine"
	"github.com/dmxx/dmxx-server/internal/metrics"
	"github.com/dmxx/dmxx-server/pkg/artnet"
	"github.com/dmxx/dmxx-server/pkg/sacn"
)

// Manager owns the running receivers and the last-frame-received bookkeeping
// surfaced on /health.
type Manager struct {
	log  *logrus.Logger
	core *engine.Engine

	artNumToID  map[int]string
	sacnNumToID map[uint16]string

	artRecv  *artnet.Receiver
	sacnRecv *sacn.Receiver

	mu       sync.RWMutex
	lastSeen map[string]time.Time

	stopCh chan struct{}
}

// New builds a Manager. numToID maps each universe's wire number (shared by
// both protocols in this deployment) to its universe ID.
func New(log *logrus.Logger, core *engine.Engine, numToID map[int]string) *Manager {
	sacnMap := make(map[uint16]string, len(numToID))
	for n, id := range numToID {
		sacnMap[uint16(n)] = id
	}
	return &Manager{
		log:         log,
		core:        core,
		artNumToID:  numToID,
		sacnNumToID: sacnMap,
		lastSeen:    make(map[string]time.Time),
		stopCh:      make(chan struct{}),
	}
}

// StartArtNet binds an Art-Net receiver on the given port and begins
// forwarding parsed frames into the engine.
func (m *Manager) StartArtNet(port int) error {
	r, err := artnet.NewReceiver(port)
	if err != nil {
		return err
	}
	m.artRecv = r
	r.Start()
	go m.pumpArtNet(r)
	return nil
}

// StartSACN joins the multicast groups for every known universe and begins
// forwarding parsed packets into the engine.
func (m *Manager) StartSACN(universes []uint16) error {
	r, err := sacn.NewReceiver(universes)
	if err != nil {
		return err
	}
	m.sacnRecv = r
	r.Start()
	go m.pumpSACN(r)
	return nil
}

// Stop closes any running receivers.
func (m *Manager) Stop() {
	close(m.stopCh)
	if m.artRecv != nil {
		_ = m.artRecv.Stop()
	}
	if m.sacnRecv != nil {
		_ = m.sacnRecv.Stop()
	}
}

// LastSeen returns the time the given universe ID last received an input
// frame, and whether it has ever received one.
func (m *Manager) LastSeen(universeID string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.lastSeen[universeID]
	return t, ok
}

func (m *Manager) touch(universeID string) {
	m.mu.Lock()
	m.lastSeen[universeID] = time.Now()
	m.mu.Unlock()
}

func (m *Manager) pumpArtNet(r *artnet.Receiver) {
	for {
		select {
		case <-m.stopCh:
			return
		case frame, ok := <-r.Frames():
			if !ok {
				return
			}
			id, known := m.artNumToID[int(frame.Universe)+1]
			if !known {
				continue
			}
			metrics.ReceiverPacketsTotal.WithLabelValues("artnet").Inc()
			m.touch(id)
			m.core.Enqueue(engine.Command{Kind: "set_input_frame", UniverseID: id, InputFrame: frame.Data})
		case err, ok := <-r.Errors():
			if !ok {
				return
			}
			metrics.ReceiverErrorsTotal.WithLabelValues("artnet").Inc()
			m.log.WithError(err).Warn("ingest: art-net receive error")
		}
	}
}

func (m *Manager) pumpSACN(r *sacn.Receiver) {
	for {
		select {
		case <-m.stopCh:
			return
		case pkt, ok := <-r.Packets():
			if !ok {
				return
			}
			id, known := m.sacnNumToID[pkt.Universe]
			if !known {
				continue
			}
			metrics.ReceiverPacketsTotal.WithLabelValues("sacn").Inc()
			m.touch(id)
			var frame [512]byte
			copy(frame[:], pkt.Data[1:])
			m.core.Enqueue(engine.Command{Kind: "set_input_frame", UniverseID: id, InputFrame: frame})
		case err, ok := <-r.Errors():
			if !ok {
				return
			}
			metrics.ReceiverErrorsTotal.WithLabelValues("sacn").Inc()
			m.log.WithError(err).Warn("ingest: sacn receive error")
		}
	}
}
