package domain

import "strings"

// DoorReading is the raw door contact value reported by telemetry.
type DoorReading string

const (
	// DoorUnknown is the sentinel held until the first valid reading arrives.
	DoorUnknown DoorReading = "---"
	DoorOpen    DoorReading = "OPEN"
	DoorClosed  DoorReading = "CLOSED"
)

// ParseDoorReading maps telemetry payload to door reading.
// Params: raw payload text.
// Returns: OPEN/CLOSED (case-insensitive, trimmed) or DoorUnknown for anything else.
func ParseDoorReading(payload string) DoorReading {
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case string(DoorOpen):
		return DoorOpen
	case string(DoorClosed):
		return DoorClosed
	default:
		return DoorUnknown
	}
}

// Known reports whether reading is a real contact state.
func (d DoorReading) Known() bool {
	return d == DoorOpen || d == DoorClosed
}

// Mode is the operator-selected arming mode.
type Mode string

const (
	// ModePassive never auto-activates the alarm.
	ModePassive Mode = "passive"
	// ModeStandBy auto-activates the alarm when the door opens.
	ModeStandBy Mode = "standby"
)

// ParseMode normalizes operator mode input.
// Params: mode text such as "passive", "standby" or "Stand by".
// Returns: mode and true when input is recognized.
func ParseMode(raw string) (Mode, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(normalized)
	switch normalized {
	case string(ModePassive):
		return ModePassive, true
	case string(ModeStandBy):
		return ModeStandBy, true
	default:
		return "", false
	}
}

// Hazard identifies one backend-reported kitchen hazard.
type Hazard string

const (
	HazardFire  Hazard = "fire"
	HazardSmoke Hazard = "smoke"
)

// HazardFromSensor derives hazard kind from backend sensor name.
// Params: sensor name such as "Fire Sensor" or "Smoke Sensor".
// Returns: hazard and true when the name contains Fire or Smoke.
func HazardFromSensor(sensor string) (Hazard, bool) {
	lower := strings.ToLower(sensor)
	switch {
	case strings.Contains(lower, "fire"):
		return HazardFire, true
	case strings.Contains(lower, "smoke"):
		return HazardSmoke, true
	default:
		return "", false
	}
}

// RawSensorState is the last value received from every channel plus operator flags.
// Params: telemetry readings, backend hazard flags, acknowledgements and mode.
// Returns: single source for derived statuses.
type RawSensorState struct {
	Door          DoorReading `json:"door"`
	LPGPPM        float64     `json:"lpg_ppm"`
	SmokePPM      float64     `json:"smoke_ppm"`
	ButtonPressed bool        `json:"button_pressed"`

	FireRaised        bool `json:"fire_raised"`
	SmokeRaised       bool `json:"smoke_raised"`
	FireAcknowledged  bool `json:"fire_acknowledged"`
	SmokeAcknowledged bool `json:"smoke_acknowledged"`

	AlarmActive bool `json:"alarm_active"`
	Mode        Mode `json:"mode"`

	PushConnected      bool `json:"push_connected"`
	TelemetryConnected bool `json:"telemetry_connected"`
}

// InitialRawState returns session start state.
// Params: configured initial mode.
// Returns: unknown door, zero gas, hazards cleared and acknowledged, alarm off.
func InitialRawState(mode Mode) RawSensorState {
	if mode == "" {
		mode = ModePassive
	}
	return RawSensorState{
		Door:              DoorUnknown,
		FireAcknowledged:  true,
		SmokeAcknowledged: true,
		Mode:              mode,
	}
}
