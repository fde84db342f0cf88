// Package transport sends and receives chat datagrams on the LAN.
//
// The wire unit is a single UDP datagram carrying one JSON frame tagged by
// type. Delivery is fire-and-forget: no acknowledgements, retries or
// ordering guarantees. Reliability concerns live outside this layer, and
// the group sub-protocol rides inside the text content untouched.
package transport

import (
	"encoding/json"
	"errors"
)

const (
	// TypeTextMessage carries plain chat text (including group envelopes).
	TypeTextMessage = "text_message"
	// TypeFileOffer announces a shared file by name.
	TypeFileOffer = "file_offer"

	// MaxDatagramSize bounds accepted frame payloads.
	MaxDatagramSize = 64 * 1024
)

// ErrInvalidFrameType indicates the frame type is missing or unknown.
var ErrInvalidFrameType = errors.New("transport: invalid frame type")

// Envelope identifies the frame type.
type Envelope struct {
	Type string `json:"type"`
}

// TextMessage is an inbound or outbound chat text frame.
type TextMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// FileOffer announces that the sender shared a file.
type FileOffer struct {
	Type      string `json:"type"`
	Filename  string `json:"filename"`
	Timestamp int64  `json:"timestamp"`
}

// DecodeFrameType extracts and validates the type tag of a raw frame.
func DecodeFrameType(payload []byte) (string, error) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", ErrInvalidFrameType
	}
	switch envelope.Type {
	case TypeTextMessage, TypeFileOffer:
		return envelope.Type, nil
	default:
		return "", ErrInvalidFrameType
	}
}
