package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Event names on the client->server side of the protocol. The names follow
// the existing browser clients; the relay does not invent its own vocabulary.
type eventName string

const (
	eventAuth    eventName = "auth"
	eventJoin    eventName = "join"
	eventJoined  eventName = "joined"
	eventMessage eventName = "message"
)

// Server->client event names.
const (
	eventConnected      = "connected"
	eventUserJoinedRoom = "userJoinedRoom"
	eventPrivateMessage = "private-message"
)

// EnvelopeTypeSignal is the only envelope type the relay forwards. Any other
// type is dropped without a reply.
const EnvelopeTypeSignal = "signal"

// Envelope is the client-supplied signaling payload carried by a `message`
// event. Message is opaque to the relay (offer/answer/candidate, never
// interpreted). For optionally names a single target connection; the relay
// still broadcasts to the whole room and recipients self-filter.
type Envelope struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
	For     string          `json:"for,omitempty"`
}

// clientEvent is one inbound frame. Exactly one event per frame; unknown
// fields and trailing data are rejected so malformed frames never reach the
// hub half-parsed.
type clientEvent struct {
	Event eventName `json:"event"`
	Room  string    `json:"room,omitempty"`
	Data  *Envelope `json:"data,omitempty"`

	APIKey string `json:"apiKey,omitempty"`
	Token  string `json:"token,omitempty"`
}

func parseClientEvent(data []byte) (clientEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var ev clientEvent
	if err := dec.Decode(&ev); err != nil {
		return clientEvent{}, err
	}
	if err := ev.validate(); err != nil {
		return clientEvent{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return clientEvent{}, fmt.Errorf("unexpected trailing data")
	}
	return ev, nil
}

func (ev clientEvent) validate() error {
	switch ev.Event {
	case eventAuth:
		if ev.APIKey == "" && ev.Token == "" {
			return fmt.Errorf("auth event missing apiKey/token")
		}
		if ev.Room != "" || ev.Data != nil {
			return fmt.Errorf("auth event has unexpected fields")
		}
	case eventJoin, eventJoined:
		if ev.Room == "" {
			return fmt.Errorf("%s event missing room", ev.Event)
		}
		if ev.Data != nil || ev.APIKey != "" || ev.Token != "" {
			return fmt.Errorf("%s event has unexpected fields", ev.Event)
		}
	case eventMessage:
		if ev.Room == "" {
			return fmt.Errorf("message event missing room")
		}
		if ev.Data == nil {
			return fmt.Errorf("message event missing data")
		}
		if ev.Data.Type == "" {
			return fmt.Errorf("message event missing data.type")
		}
		if ev.APIKey != "" || ev.Token != "" {
			return fmt.Errorf("message event has unexpected fields")
		}
	default:
		return fmt.Errorf("unsupported event %q", ev.Event)
	}
	return nil
}

// connectedEvent tells a client its connection id right after registration.
// Clients need the id to self-filter directed envelopes.
type connectedEvent struct {
	Event string `json:"event"`
	ID    string `json:"id"`
}

// occupancyEvent is the presence announcement broadcast on `joined`.
type occupancyEvent struct {
	Event string `json:"event"`
	Count int    `json:"count"`
}

// deliveredEnvelope is the outbound side of the relay. Author is present in
// the wire format but intentionally never populated: identity is not asserted
// by this layer. Time is a server-synthesized unix-milliseconds timestamp.
type deliveredEnvelope struct {
	Message json.RawMessage `json:"message,omitempty"`
	Author  string          `json:"author"`
	Time    int64           `json:"time"`
	Type    string          `json:"type"`
	Room    string          `json:"room"`
	For     string          `json:"for,omitempty"`
}

type privateMessageEvent struct {
	Event string            `json:"event"`
	Data  deliveredEnvelope `json:"data"`
}
