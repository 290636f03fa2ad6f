// Package signaling implements the visit call-setup relay: room
// rendezvous keyed by caller-supplied tokens, presence announcements, and
// best-effort broadcast of opaque signaling envelopes between the members
// of a room.
//
// The package holds no durable state. A restart drops all active rooms and
// in-flight envelopes; clients are expected to reconnect and retry call
// setup.
package signaling
