package hub

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dmxx/dmxx-server/internal/auth"
)

// Client is one connected WebSocket session: a read loop parsing inbound
// envelopes, and a write loop serializing everything this client is sent
// through a single bounded outbound queue.
type Client struct {
	ID         string
	conn       *websocket.Conn
	log        *logrus.Logger
	hub        *Hub
	remoteAddr string

	claims *auth.Claims // nil until login succeeds

	outbound chan Envelope
	done     chan struct{}
}

func newClient(id string, conn *websocket.Conn, log *logrus.Logger, h *Hub, queueSize int) *Client {
	return &Client{
		ID:         id,
		conn:       conn,
		log:        log,
		hub:        h,
		remoteAddr: conn.RemoteAddr().String(),
		outbound:   make(chan Envelope, queueSize),
		done:       make(chan struct{}),
	}
}

// Send enqueues an envelope for this client. If the client's outbound
// queue is already full it is disconnected rather than allowed to fall
// behind indefinitely; ordering for every envelope that was accepted is
// preserved by the single write-loop goroutine.
func (c *Client) Send(env Envelope) {
	select {
	case c.outbound <- env:
	default:
		c.log.WithField("client_id", c.ID).Warn("hub: client outbound queue full, disconnecting")
		c.hub.disconnectOverflowed(c)
	}
}

func (c *Client) readLoop() {
	defer c.hub.unregister(c)
	defer close(c.done)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.Send(Envelope{Type: TypeError, Error: "malformed message"})
			continue
		}
		c.hub.handleInbound(c, env)
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.Close()
			return
		case env, ok := <-c.outbound:
			if !ok {
				_ = c.conn.Close()
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(env); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
