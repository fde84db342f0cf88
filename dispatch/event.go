// Package dispatch bridges the asynchronous network/core producer to the
// single-threaded consumer that owns all roster and session state.
//
// Producers push events onto a thread-safe FIFO queue; a tick loop drains
// them in small bounded batches and hands each one to the consumer in
// production order. The consumer side never blocks on the queue.
package dispatch

import "lanchat/models"

// EventType tags the closed set of event variants.
type EventType string

const (
	// EventPeerOnline announces a newly discovered peer.
	EventPeerOnline EventType = "peer_online"
	// EventPeerUpdated announces changed attributes for a known peer.
	EventPeerUpdated EventType = "peer_updated"
	// EventPeerOffline announces a peer's disappearance.
	EventPeerOffline EventType = "peer_offline"
	// EventMessageReceived carries inbound chat text from a peer.
	EventMessageReceived EventType = "message_received"
	// EventFileOffered carries an inbound file-share notice from a peer.
	EventFileOffered EventType = "file_offered"
)

// Event is one tagged occurrence from the network layer. Each variant uses
// the minimal fields it needs; events are immutable once constructed and
// consumed exactly once.
type Event struct {
	Type EventType

	// Peer carries attributes for EventPeerOnline and EventPeerUpdated.
	Peer models.Peer

	// Identity is the peer IP for EventPeerOffline.
	Identity string

	// Sender and Text carry EventMessageReceived payloads; Sender and
	// Filename carry EventFileOffered payloads.
	Sender   string
	Text     string
	Filename string
}

// PeerOnline builds a peer-online event.
func PeerOnline(peer models.Peer) Event {
	return Event{Type: EventPeerOnline, Peer: peer}
}

// PeerUpdated builds a peer-updated event.
func PeerUpdated(peer models.Peer) Event {
	return Event{Type: EventPeerUpdated, Peer: peer}
}

// PeerOffline builds a peer-offline event.
func PeerOffline(ip string) Event {
	return Event{Type: EventPeerOffline, Identity: ip}
}

// MessageReceived builds an inbound-message event.
func MessageReceived(sender, text string) Event {
	return Event{Type: EventMessageReceived, Sender: sender, Text: text}
}

// FileOffered builds an inbound file-offer event.
func FileOffered(sender, filename string) Event {
	return Event{Type: EventFileOffered, Sender: sender, Filename: filename}
}
