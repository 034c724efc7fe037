package push

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// engineProtocol is the Engine.IO revision spoken by Socket.IO v3+ servers.
const engineProtocol = "4"

// Engine.IO packet types.
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineNoop    byte = '6'
)

// Socket.IO packet types carried inside engine message packets.
const (
	socketConnect      byte = '0'
	socketDisconnect   byte = '1'
	socketEvent        byte = '2'
	socketAck          byte = '3'
	socketConnectError byte = '4'
)

const defaultNamespace = "/"

// errNotEventPacket marks well-formed frames that carry no event.
var errNotEventPacket = errors.New("socket.io frame is not an event")

// openPacket is the Engine.IO handshake sent by the server right after upgrade.
type openPacket struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int64  `json:"maxPayload"`
}

// heartbeatTimeout is how long the server may stay silent before the session is dead.
func (p openPacket) heartbeatTimeout() time.Duration {
	return time.Duration(p.PingInterval+p.PingTimeout) * time.Millisecond
}

// socketPacket is one decoded Socket.IO packet.
type socketPacket struct {
	Type      byte
	Namespace string
	AckID     string
	Data      json.RawMessage
}

// parseSocketPacket decodes the body of an engine message packet.
// Params: frame bytes after the engine type byte, e.g. `2["hazard_alert",{...}]`.
// Returns: packet or error for binary and unknown packet types.
func parseSocketPacket(body []byte) (socketPacket, error) {
	if len(body) == 0 {
		return socketPacket{}, errors.New("empty socket.io packet")
	}
	packet := socketPacket{Type: body[0], Namespace: defaultNamespace}
	switch packet.Type {
	case socketConnect, socketDisconnect, socketEvent, socketAck, socketConnectError:
	default:
		return socketPacket{}, fmt.Errorf("unsupported socket.io packet type %q", packet.Type)
	}

	rest := body[1:]
	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end < 0 {
			packet.Namespace = string(rest)
			rest = nil
		} else {
			packet.Namespace = string(rest[:end])
			rest = rest[end+1:]
		}
	}
	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	packet.AckID = string(rest[:digits])
	if digits < len(rest) {
		packet.Data = json.RawMessage(rest[digits:])
	}
	return packet, nil
}

// decodeEventPacket splits event arguments into name and first payload.
func decodeEventPacket(packet socketPacket) (Envelope, error) {
	if packet.Type != socketEvent {
		return Envelope{}, errNotEventPacket
	}
	var args []json.RawMessage
	if err := json.Unmarshal(packet.Data, &args); err != nil {
		return Envelope{}, fmt.Errorf("decode socket.io event arguments: %w", err)
	}
	if len(args) == 0 {
		return Envelope{}, errors.New("socket.io event without name")
	}
	var envelope Envelope
	if err := json.Unmarshal(args[0], &envelope.Event); err != nil {
		return Envelope{}, fmt.Errorf("decode socket.io event name: %w", err)
	}
	if len(args) > 1 {
		envelope.Data = args[1]
	}
	return envelope, nil
}

// connectErrorMessage extracts the reason of a CONNECT_ERROR packet.
func connectErrorMessage(data json.RawMessage) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	if len(data) == 0 {
		return "no reason given"
	}
	return string(data)
}

// socketURL builds the Engine.IO WebSocket endpoint for a backend base URL.
// Params: base URL (http, https, ws or wss) and Socket.IO path.
// Returns: ws:// or wss:// URL with EIO and transport query.
func socketURL(base, path string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse push url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("push url scheme %q is not supported", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("push url %q has no host", base)
	}
	if path == "" {
		path = "/socket.io/"
	}
	parsed.Path = path
	query := parsed.Query()
	query.Set("EIO", engineProtocol)
	query.Set("transport", "websocket")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
