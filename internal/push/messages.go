package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound event names emitted by the backend.
const (
	EventHazardAlert   = "hazard_alert"
	EventHazardCleared = "hazard_cleared"
	EventActivityAlert = "activity_alert"
	EventSystemMessage = "system_message"
)

// Outbound event names emitted by the dashboard.
const (
	EventUserResetAlert = "user_reset_alert"
	EventAddNewPerson   = "add_new_person"
)

// ErrUnknownEvent is returned by Dispatch for event names it does not route.
var ErrUnknownEvent = errors.New("unknown push event")

// Envelope is one decoded Socket.IO event.
// Params: event name and first event argument.
// Returns: routing unit for Dispatch.
type Envelope struct {
	Event string
	Data  json.RawMessage
}

// HazardAlert reports a hazard raised by backend vision.
type HazardAlert struct {
	Sensor      string `json:"sensor"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// HazardCleared reports a hazard no longer detected.
type HazardCleared struct {
	Sensor string `json:"sensor"`
}

// ActivityAlert reports one face-recognition detection.
type ActivityAlert struct {
	Title       string `json:"title"`
	Status      string `json:"status"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	ImageHint   string `json:"imageHint"`
}

// SystemMessage is a free-form backend notice.
type SystemMessage struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
}

// UserResetAlert asks backend to reset hazard detection for one room.
type UserResetAlert struct {
	Room string `json:"room"`
}

// AddNewPerson asks backend to enroll a face under a name.
type AddNewPerson struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Sink receives decoded inbound push events.
// Params: typed event payloads and connection transitions.
// Returns: none; the sink owns state mutation.
type Sink interface {
	HandleHazardAlert(msg HazardAlert)
	HandleHazardCleared(msg HazardCleared)
	HandleActivityAlert(msg ActivityAlert)
	HandleSystemMessage(msg SystemMessage)
	HandlePushConnection(connected bool, reason string)
}

// EncodeEvent frames one outbound Socket.IO event on the default namespace.
// Params: event name and payload value.
// Returns: engine message frame such as `42["user_reset_alert",{"room":"kitchen"}]`.
func EncodeEvent(event string, payload any) ([]byte, error) {
	args, err := json.Marshal([]any{event, payload})
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	frame := make([]byte, 0, len(args)+2)
	frame = append(frame, engineMessage, socketEvent)
	return append(frame, args...), nil
}

// Dispatch decodes one inbound engine message frame and routes its event to sink.
// Params: sink and raw frame bytes such as `42["hazard_alert",{...}]`.
// Returns: event name and decode error or ErrUnknownEvent; sink is untouched on error.
func Dispatch(sink Sink, frame []byte) (string, error) {
	if len(frame) == 0 || frame[0] != engineMessage {
		return "", fmt.Errorf("decode push frame: expected engine message packet, got %q", truncateFrame(frame))
	}
	packet, err := parseSocketPacket(frame[1:])
	if err != nil {
		return "", fmt.Errorf("decode push frame: %w", err)
	}
	return dispatchPacket(sink, packet)
}

// dispatchPacket routes one decoded event packet.
func dispatchPacket(sink Sink, packet socketPacket) (string, error) {
	envelope, err := decodeEventPacket(packet)
	if err != nil {
		return "", err
	}
	event := strings.TrimSpace(envelope.Event)
	switch event {
	case EventHazardAlert:
		var msg HazardAlert
		if err := decodeData(envelope, &msg); err != nil {
			return event, err
		}
		sink.HandleHazardAlert(msg)
	case EventHazardCleared:
		var msg HazardCleared
		if err := decodeData(envelope, &msg); err != nil {
			return event, err
		}
		sink.HandleHazardCleared(msg)
	case EventActivityAlert:
		var msg ActivityAlert
		if err := decodeData(envelope, &msg); err != nil {
			return event, err
		}
		sink.HandleActivityAlert(msg)
	case EventSystemMessage:
		var msg SystemMessage
		if err := decodeData(envelope, &msg); err != nil {
			return event, err
		}
		sink.HandleSystemMessage(msg)
	default:
		return event, fmt.Errorf("%w %q", ErrUnknownEvent, event)
	}
	return event, nil
}

func decodeData(envelope Envelope, dst any) error {
	if len(envelope.Data) == 0 {
		return fmt.Errorf("decode %s payload: empty data", envelope.Event)
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.Event, err)
	}
	return nil
}

func truncateFrame(frame []byte) string {
	const limit = 64
	if len(frame) > limit {
		return string(frame[:limit]) + "..."
	}
	return string(frame)
}
