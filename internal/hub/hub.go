// Package hub implements the message hub: the full-duplex JSON client
// protocol over WebSocket, its per-client bounded outbound queues, and the
// broadcast/echo fan-out of engine state changes.
package hub

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/lucsky/cuid"
	"github.com/sirupsen/logrus"

	"github.com/dmxx/dmxx-server/internal/auth"
	"github.com/dmxx/dmxx-server/internal/engine"
	"github.com/dmxx/dmxx-server/internal/metrics"
	"github.com/dmxx/dmxx-server/internal/scene"
)

// Hub owns every connected Client and dispatches their commands into the
// engine and scene engine.
type Hub struct {
	log            *logrus.Logger
	core           *engine.Engine
	scenes         *scene.Engine
	gate           *auth.Gate
	queueSz        int
	batchThreshold int
	upgrader       websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client

	scenesByID    map[string]*scene.Scene
	groupsByID    map[string]bool
	lastBroadcast map[string][512]byte
}

// New builds a Hub. batchThreshold is the per-universe changed-channel count
// at or above which a tick's changes are broadcast as one values snapshot instead
// of individual channel_change events.
func New(log *logrus.Logger, core *engine.Engine, scenes *scene.Engine, gate *auth.Gate, queueSize int, batchThreshold int) *Hub {
	return &Hub{
		log:            log,
		core:           core,
		scenes:         scenes,
		gate:           gate,
		queueSz:        queueSize,
		batchThreshold: batchThreshold,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:       make(map[string]*Client),
		scenesByID:    make(map[string]*scene.Scene),
		groupsByID:    make(map[string]bool),
		lastBroadcast: make(map[string][512]byte),
	}
}

// PublishFrame is called once per output tick for every universe whose
// frame was sent. It diffs against the last frame broadcast to
// clients and emits either individual channel_change events or one values
// snapshot, per batchThreshold.
func (h *Hub) PublishFrame(universeID string, frame [512]byte) {
	h.mu.Lock()
	prev := h.lastBroadcast[universeID]
	h.lastBroadcast[universeID] = frame
	h.mu.Unlock()

	changed := make(map[int]byte)
	for i := 0; i < 512; i++ {
		if prev[i] != frame[i] {
			changed[i+1] = frame[i]
		}
	}
	if len(changed) == 0 {
		return
	}

	if len(changed) < h.batchThreshold {
		for ch, v := range changed {
			val := int(v)
			h.Broadcast(Envelope{Type: TypeChannelEvent, UniverseID: universeID, Channel: ch, Value: &val, Source: "engine"})
		}
		return
	}

	values := make(map[string]int, 512)
	for i, v := range frame {
		values[fmt.Sprintf("%d", i+1)] = int(v)
	}
	h.Broadcast(Envelope{Type: TypeValuesEvent, UniverseID: universeID, Channels: values, Source: "engine"})
}

// SetScenes installs the scene catalog clients may recall by ID.
func (h *Hub) SetScenes(scenes []*scene.Scene) {
	m := make(map[string]*scene.Scene, len(scenes))
	for _, s := range scenes {
		m[s.ID] = s
	}
	h.mu.Lock()
	h.scenesByID = m
	h.mu.Unlock()
}

// ServeHTTP upgrades the connection, assigns an ephemeral client ID, and
// spawns its read/write loop pair.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.gate.IPAllowed(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("hub: websocket upgrade failed")
		return
	}

	id := cuid.New()
	client := newClient(id, conn, h.log, h, h.queueSz)

	h.mu.Lock()
	h.clients[id] = client
	h.mu.Unlock()
	metrics.HubClientsConnected.Inc()

	client.Send(Envelope{Type: TypeConnected, ClientID: id})

	go client.writeLoop()
	client.readLoop()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		metrics.HubClientsConnected.Dec()
	}
	h.mu.Unlock()
}

// disconnectOverflowed forcibly closes a client whose outbound queue
// overflowed, counted separately from an ordinary disconnect. Closing the
// connection ends the client's read loop, which then unregisters it and
// stops its write loop; nothing here takes the hub lock, so it is safe to
// call from Broadcast.
func (h *Hub) disconnectOverflowed(c *Client) {
	metrics.HubClientDisconnects.Inc()
	_ = c.conn.Close()
}

// Broadcast fans an engine state-change event out to every connected
// client, attributing it to its source: the originating client receives an
// echo with their own ID as source, everyone else gets the same event.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.Send(env)
	}
}

func (h *Hub) handleInbound(c *Client, env Envelope) {
	if env.Type != TypeLogin && env.Type != TypePing && c.claims == nil {
		c.Send(Envelope{Type: TypeAuthError, Error: "login required"})
		return
	}

	switch env.Type {
	case TypeLogin:
		h.handleLogin(c, env)
	case TypePing:
		c.Send(Envelope{Type: TypePong})
	case TypeSetChannel:
		h.handleSetChannel(c, env)
	case TypeSetChannels:
		h.handleSetChannels(c, env)
	case TypeSetGroupValue:
		h.handleSetGroupValue(c, env)
	case TypeRecallScene:
		h.handleRecallScene(c, env)
	case TypeParkChannel:
		h.handlePark(c, env, true)
	case TypeUnparkChannel:
		h.handlePark(c, env, false)
	case TypeSetHighlight:
		h.handleHighlight(c, env)
	case TypeSetInputBypass:
		h.handleBypass(c, env)
	case TypeSetGlobalGrandmaster:
		h.handleSetGlobalGrandmaster(c, env)
	case TypeSetUniverseGrandmaster:
		h.handleSetUniverseGrandmaster(c, env)
	case TypeSetActiveScene:
		h.handleRecallScene(c, env)
	case TypeGetValues:
		h.handleGetValues(c, env)
	case TypeGetInputValues:
		h.handleGetInputValues(c, env)
	case TypeGetAllUniverses:
		h.handleGetAllUniverses(c, env)
	case TypeGetAllInputValues:
		h.handleGetAllInputValues(c, env)
	default:
		c.Send(Envelope{Type: TypeError, Error: fmt.Sprintf("unknown message type %q", env.Type)})
	}
}

func (h *Hub) handleLogin(c *Client, env Envelope) {
	token, err := h.gate.Login(context.Background(), env.ProfileName, env.Password, c.ID, c.remoteAddr)
	if err != nil {
		c.Send(Envelope{Type: TypeAuthError, Error: err.Error()})
		return
	}
	claims, err := h.gate.Authenticate(token, c.ID)
	if err != nil {
		c.Send(Envelope{Type: TypeAuthError, Error: err.Error()})
		return
	}
	c.claims = claims
	c.Send(Envelope{Type: TypeConnected, ClientID: c.ID, Token: token})
}

func (h *Hub) authorize(c *Client, action auth.Action) bool {
	if !h.gate.Check(context.Background(), c.claims, action, c.remoteAddr) {
		c.Send(Envelope{Type: TypeError, Error: fmt.Sprintf("not permitted: %s", action)})
		return false
	}
	return true
}

func (h *Hub) handleSetChannel(c *Client, env Envelope) {
	if !h.authorize(c, auth.ActionControl) {
		return
	}
	if env.Value == nil {
		c.Send(Envelope{Type: TypeError, Error: "value is required"})
		return
	}
	h.core.Enqueue(engine.Command{
		Kind: "set_channel", UniverseID: env.UniverseID, Channel: env.Channel, Value: byte(*env.Value),
		Source: engine.SourceTag{Kind: "operator", ClientID: c.ID},
	})
	h.echoChannel(c, env)
}

func (h *Hub) handleSetChannels(c *Client, env Envelope) {
	if !h.authorize(c, auth.ActionControl) {
		return
	}
	values := make(map[int]byte, len(env.Channels))
	for k, v := range env.Channels {
		var ch int
		if _, err := fmt.Sscanf(k, "%d", &ch); err != nil {
			continue
		}
		values[ch] = byte(v)
	}
	h.core.Enqueue(engine.Command{
		Kind: "set_channels", UniverseID: env.UniverseID, Values: values,
		Source: engine.SourceTag{Kind: "operator", ClientID: c.ID},
	})
	h.Broadcast(Envelope{Type: TypeValuesEvent, UniverseID: env.UniverseID, Channels: env.Channels, Source: "user:" + c.ID})
}

func (h *Hub) handleSetGroupValue(c *Client, env Envelope) {
	if !h.authorize(c, auth.ActionControl) {
		return
	}
	if env.Value == nil {
		c.Send(Envelope{Type: TypeError, Error: "value is required"})
		return
	}
	h.core.Enqueue(engine.Command{Kind: "set_group_master", GroupID: env.GroupID, Master: byte(*env.Value)})
	h.Broadcast(Envelope{Type: TypeValuesEvent, GroupID: env.GroupID, Source: "user:" + c.ID})
}

func (h *Hub) handleRecallScene(c *Client, env Envelope) {
	if !h.authorize(c, auth.ActionRecallScene) {
		return
	}
	h.mu.RLock()
	s, ok := h.scenesByID[env.SceneID]
	h.mu.RUnlock()
	if !ok {
		c.Send(Envelope{Type: TypeError, Error: "unknown scene"})
		return
	}
	h.scenes.Recall(s, "", 0)
	h.Broadcast(Envelope{Type: TypeValuesEvent, SceneID: env.SceneID, Source: "user:" + c.ID})
}

func (h *Hub) handlePark(c *Client, env Envelope, park bool) {
	if !h.authorize(c, auth.ActionPark) {
		return
	}
	kind := "unpark"
	value := byte(0)
	if park {
		kind = "park"
		if env.Value != nil {
			value = byte(*env.Value)
		}
	}
	h.core.Enqueue(engine.Command{Kind: kind, UniverseID: env.UniverseID, Channel: env.Channel, Value: value})
	h.echoChannel(c, env)
}

func (h *Hub) handleHighlight(c *Client, env Envelope) {
	if !h.authorize(c, auth.ActionHighlight) {
		return
	}
	active := false
	if env.Active != nil {
		active = *env.Active
	}
	dim := byte(0)
	if env.DimLevel != nil {
		dim = byte(*env.DimLevel)
	}
	h.core.Enqueue(engine.Command{
		Kind: "highlight", UniverseID: env.UniverseID, HighlightActive: active,
		HighlightDim: dim, HighlightAdd: env.HighlightSet,
	})
	h.Broadcast(Envelope{Type: TypeValuesEvent, UniverseID: env.UniverseID, Source: "user:" + c.ID})
}

func (h *Hub) handleBypass(c *Client, env Envelope) {
	if !h.authorize(c, auth.ActionBypass) {
		return
	}
	bypass := false
	if env.Active != nil {
		bypass = *env.Active
	}
	h.core.Enqueue(engine.Command{Kind: "bypass_input", UniverseID: env.UniverseID, InputBypass: bypass})
	h.Broadcast(Envelope{Type: TypeValuesEvent, UniverseID: env.UniverseID, Source: "user:" + c.ID})
}

func (h *Hub) echoChannel(c *Client, env Envelope) {
	h.Broadcast(Envelope{
		Type: TypeChannelEvent, UniverseID: env.UniverseID, Channel: env.Channel,
		Value: env.Value, Source: "user:" + c.ID,
	})
}

func (h *Hub) handleSetGlobalGrandmaster(c *Client, env Envelope) {
	if !h.authorize(c, auth.ActionControl) {
		return
	}
	if env.Value == nil {
		c.Send(Envelope{Type: TypeError, Error: "value is required"})
		return
	}
	h.core.Enqueue(engine.Command{Kind: "grandmaster", GrandmasterValue: byte(*env.Value)})
	h.Broadcast(Envelope{Type: TypeGrandmasterEvent, Value: env.Value, Source: "user:" + c.ID})
}

func (h *Hub) handleSetUniverseGrandmaster(c *Client, env Envelope) {
	if !h.authorize(c, auth.ActionControl) {
		return
	}
	if env.Value == nil {
		c.Send(Envelope{Type: TypeError, Error: "value is required"})
		return
	}
	h.core.Enqueue(engine.Command{
		Kind: "universe_grandmaster", UniverseID: env.UniverseID, GrandmasterValue: byte(*env.Value),
	})
	h.Broadcast(Envelope{Type: TypeGrandmasterEvent, UniverseID: env.UniverseID, Value: env.Value, Source: "user:" + c.ID})
}

func (h *Hub) handleGetValues(c *Client, env Envelope) {
	snap, ok := h.core.Snapshot(env.UniverseID)
	if !ok {
		c.Send(Envelope{Type: TypeError, Error: "unknown universe"})
		return
	}
	c.Send(Envelope{Type: TypeValuesEvent, UniverseID: env.UniverseID, Channels: channelsMap(snap.Output)})
}

func (h *Hub) handleGetInputValues(c *Client, env Envelope) {
	frame, ok := h.core.InputSnapshot(env.UniverseID)
	if !ok {
		c.Send(Envelope{Type: TypeInputValuesEvent, UniverseID: env.UniverseID, Channels: map[string]int{}})
		return
	}
	c.Send(Envelope{Type: TypeInputValuesEvent, UniverseID: env.UniverseID, Channels: channelsMap(frame)})
}

func (h *Hub) handleGetAllUniverses(c *Client, env Envelope) {
	data := make(map[string]map[string]int, len(h.core.UniverseIDs()))
	for _, id := range h.core.UniverseIDs() {
		if snap, ok := h.core.Snapshot(id); ok {
			data[id] = channelsMap(snap.Output)
		}
	}
	c.Send(Envelope{Type: TypeAllValuesEvent, Data: data})
}

func (h *Hub) handleGetAllInputValues(c *Client, env Envelope) {
	data := make(map[string]map[string]int, len(h.core.UniverseIDs()))
	for _, id := range h.core.UniverseIDs() {
		if frame, ok := h.core.InputSnapshot(id); ok {
			data[id] = channelsMap(frame)
		}
	}
	c.Send(Envelope{Type: TypeInputValuesEvent, Data: data})
}

// channelsMap renders a raw 512-channel frame as a sparse 1-indexed
// channel->value map suitable for an Envelope's Channels field.
func channelsMap(frame [512]byte) map[string]int {
	values := make(map[string]int, 512)
	for i, v := range frame {
		values[fmt.Sprintf("%d", i+1)] = int(v)
	}
	return values
}
