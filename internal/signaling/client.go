package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medconnect/signaling-relay/internal/metrics"
	"github.com/medconnect/signaling-relay/internal/ratelimit"
)

const wsWriteWait = 1 * time.Second

// client is one live WebSocket connection. The hub assigns its id; the read
// pump is the only reader of the socket and the write pump the only writer.
type client struct {
	hub  *Hub
	conn *websocket.Conn

	// Assigned by the hub during registration; read only from hub events
	// raised by this connection's read pump, which the hub serializes.
	id ConnID

	// subject is the authenticated caller identity (JWT sub), if any. Audit
	// logging only; never stamped into relayed envelopes.
	subject string

	send    chan []byte
	limiter *ratelimit.TokenBucket

	idleTimeout  time.Duration
	pingInterval time.Duration
	maxFrameSize int64

	log *slog.Logger
	m   *metrics.Metrics
}

// readPump pumps frames from the socket into the hub. It runs in its own
// goroutine; exiting it (for any reason) triggers the single authoritative
// disconnect cleanup path.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))

		if c.limiter != nil && !c.limiter.Allow(1) {
			c.m.Inc(metrics.DropRateLimited)
			writeClose(c.conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			c.m.Inc(metrics.EventsDroppedMalformed)
			continue
		}

		ev, err := parseClientEvent(data)
		if err != nil {
			// Malformed frames are dropped, never surfaced to the client.
			c.m.Inc(metrics.EventsDroppedMalformed)
			c.log.Debug("dropping malformed event", "err", err)
			continue
		}
		if ev.Event == eventAuth {
			// Tolerate late auth frames (e.g. query-string fallback clients
			// that also send the handshake message).
			continue
		}

		select {
		case c.hub.inbound <- inboundEvent{c: c, ev: ev}:
		case <-c.hub.quit:
			return
		}
	}
}

// writePump drains the outbound queue to the socket and keeps the
// connection alive with periodic pings. The hub closing the send channel
// ends the pump.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
