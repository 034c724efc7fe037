package domain

import (
	"strings"
	"time"
)

// NotificationType classifies one notification record.
// Params: fixed record category constants.
// Returns: category used for filtering and presentation.
type NotificationType string

const (
	// NotificationActivity is a face-recognition activity from the backend.
	NotificationActivity NotificationType = "activity"
	// NotificationDoor is a door transition or doorbell press.
	NotificationDoor NotificationType = "door"
	// NotificationAlarm is an alarm activation or deactivation.
	NotificationAlarm NotificationType = "alarm"
	// NotificationKitchenFire is a fire hazard raised by the backend.
	NotificationKitchenFire NotificationType = "kitchen_fire"
	// NotificationKitchenSmoke is a smoke hazard raised by the backend.
	NotificationKitchenSmoke NotificationType = "kitchen_smoke"
	// NotificationKitchenGas is a gas level transition from telemetry.
	NotificationKitchenGas NotificationType = "kitchen_gas"
	// NotificationSystem is a connection, command or operator record.
	NotificationSystem NotificationType = "system"
)

// IsValid reports whether type is one of the known categories.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationActivity, NotificationDoor, NotificationAlarm,
		NotificationKitchenFire, NotificationKitchenSmoke, NotificationKitchenGas,
		NotificationSystem:
		return true
	default:
		return false
	}
}

// RecordStatus is the optional status label attached to a record.
type RecordStatus string

const (
	StatusKnown   RecordStatus = "Known"
	StatusUnknown RecordStatus = "Unknown"
	StatusDanger  RecordStatus = "Danger"
	StatusWarning RecordStatus = "Warning"
	StatusSafe    RecordStatus = "Safe"
	StatusNormal  RecordStatus = "Normal"
	StatusOpen    RecordStatus = "Open"
	StatusClosed  RecordStatus = "Closed"
)

// ParsePersonStatus maps backend recognition label to Known or Unknown.
// Params: raw label from activity payload.
// Returns: Known for a case-insensitive "known", Unknown otherwise.
func ParsePersonStatus(raw string) RecordStatus {
	if strings.EqualFold(strings.TrimSpace(raw), string(StatusKnown)) {
		return StatusKnown
	}
	return StatusUnknown
}

// ImageAttachment references an image carried by an activity record.
// Params: reference (inline data URI or URL) and semantic hint.
// Returns: opaque image handle, never decoded by the service.
type ImageAttachment struct {
	Ref  string `json:"ref"`
	Hint string `json:"hint,omitempty"`
}

// Inline reports whether reference embeds the image bytes.
func (a ImageAttachment) Inline() bool {
	return strings.HasPrefix(a.Ref, "data:")
}

// NotificationRecord is one immutable entry of the event log.
// Params: identity, category, text, creation time and optional status/image.
// Returns: record served to presentation and journal sinks.
type NotificationRecord struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Timestamp   time.Time        `json:"timestamp"`
	Status      RecordStatus     `json:"status,omitempty"`
	Image       *ImageAttachment `json:"image,omitempty"`
}

// HasImage reports whether record carries a non-empty image reference.
func (r NotificationRecord) HasImage() bool {
	return r.Image != nil && strings.TrimSpace(r.Image.Ref) != ""
}

// RecordDraft holds caller-provided record fields before the log assigns identity.
// Params: category, text and optional status/image.
// Returns: input for eventlog append.
type RecordDraft struct {
	Type        NotificationType
	Title       string
	Description string
	Status      RecordStatus
	Image       *ImageAttachment
}
