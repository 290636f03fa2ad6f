package signaling

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/medconnect/signaling-relay/internal/metrics"
)

// Hub owns the Connection Registry and the Room Directory. A single
// goroutine (Run) consumes every connect/join/joined/message/disconnect
// event and runs it to completion, so handlers are atomic with respect to
// the shared state without locks. Membership changes update the registry and
// the directory together within one event (double-entry bookkeeping).
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	register   chan *client
	unregister chan *client
	inbound    chan inboundEvent
	quit       chan struct{}

	// Owned exclusively by the Run goroutine.
	registry *Registry
	rooms    *RoomDirectory
	conns    map[ConnID]*client
}

type inboundEvent struct {
	c  *client
	ev clientEvent
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Hub{
		log:     logger,
		metrics: m,
		now:     time.Now,

		register:   make(chan *client),
		unregister: make(chan *client),
		inbound:    make(chan inboundEvent),
		quit:       make(chan struct{}),

		registry: NewRegistry(),
		rooms:    NewRoomDirectory(),
		conns:    make(map[ConnID]*client),
	}
}

// Run processes hub events until Close is called. It must run in exactly one
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case in := <-h.inbound:
			h.handleEvent(in.c, in.ev)
		case <-h.quit:
			for _, c := range h.conns {
				close(c.send)
			}
			h.conns = make(map[ConnID]*client)
			return
		}
	}
}

// Close stops the Run loop and closes every connection's outbound queue.
func (h *Hub) Close() {
	close(h.quit)
}

func (h *Hub) handleRegister(c *client) {
	id, err := h.registry.Register()
	if err != nil {
		// Only possible when the platform entropy source fails; drop the
		// connection rather than admit it without an identifier.
		h.log.Error("failed to allocate connection id", "err", err)
		close(c.send)
		return
	}
	c.id = id
	h.conns[id] = c
	h.metrics.Inc(metrics.ConnectionsOpened)
	h.log.Debug("connection registered", "conn_id", id, "subject", c.subject)

	h.deliver(c, connectedEvent{Event: eventConnected, ID: string(id)})
}

func (h *Hub) handleUnregister(c *client) {
	if c.id == "" || !h.registry.Known(c.id) {
		// Registration failed or cleanup already ran.
		return
	}
	rooms := h.registry.Unregister(c.id)
	for _, room := range rooms {
		h.rooms.Leave(room, c.id)
	}
	delete(h.conns, c.id)
	close(c.send)
	h.metrics.Inc(metrics.ConnectionsClosed)
	h.log.Debug("connection unregistered", "conn_id", c.id, "rooms_left", len(rooms))
}

func (h *Hub) handleEvent(c *client, ev clientEvent) {
	if !h.registry.Known(c.id) {
		return
	}
	switch ev.Event {
	case eventJoin:
		h.handleJoin(c, ev.Room)
	case eventJoined:
		h.handleJoined(ev.Room)
	case eventMessage:
		h.handleSignal(ev.Room, *ev.Data)
	}
}

func (h *Hub) handleJoin(c *client, room string) {
	h.rooms.Join(room, c.id)
	h.registry.AddRoom(c.id, room)
	h.metrics.Inc(metrics.RoomJoins)
	h.log.Debug("joined room", "conn_id", c.id, "room", room, "occupancy", h.rooms.Occupancy(room))
}

// handleJoined recomputes occupancy from the authoritative member set and
// announces it to every current member. The count is a snapshot at this
// event; concurrent joins become visible on the next announcement.
func (h *Hub) handleJoined(room string) {
	count := h.rooms.Occupancy(room)
	ann := occupancyEvent{Event: eventUserJoinedRoom, Count: count}
	for _, id := range h.rooms.Members(room) {
		if c, ok := h.conns[id]; ok {
			h.deliver(c, ann)
		}
	}
	h.metrics.Inc(metrics.PresenceBroadcasts)
}

// handleSignal forwards a signal envelope to every current member of the
// room, including the sender. When For is set the envelope is still
// broadcast; it merely carries the annotation and recipients compare it
// against their own id. Delivery is best-effort, at-most-once: nothing is
// buffered for members that are gone or slow.
func (h *Hub) handleSignal(room string, env Envelope) {
	if env.Type != EnvelopeTypeSignal {
		h.metrics.Inc(metrics.EnvelopesIgnored)
		return
	}

	out := privateMessageEvent{
		Event: eventPrivateMessage,
		Data: deliveredEnvelope{
			Message: env.Message,
			Author:  "",
			Time:    h.now().UnixMilli(),
			Type:    EnvelopeTypeSignal,
			Room:    room,
			For:     env.For,
		},
	}

	members := h.rooms.Members(room)
	if len(members) == 0 {
		return
	}
	for _, id := range members {
		if c, ok := h.conns[id]; ok {
			h.deliver(c, out)
		}
	}
	h.metrics.Inc(metrics.EnvelopesRelayed)
}

// deliver serializes the event and hands it to the connection's write pump
// without blocking. A full queue counts as a drop: the relay offers no
// backlog or retry.
func (h *Hub) deliver(c *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("failed to encode outbound event", "err", err)
		return
	}
	select {
	case c.send <- data:
	default:
		h.metrics.Inc(metrics.DeliveriesDropped)
		h.log.Debug("outbound queue full, dropping delivery", "conn_id", c.id)
	}
}
