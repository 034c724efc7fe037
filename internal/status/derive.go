// Package status derives display statuses from raw sensor state.
// Every function is pure: the same raw input always yields the same output.
package status

import (
	"math"

	"homeguard/internal/domain"
)

// GasLevel is the classified concentration of one gas sensor.
type GasLevel string

const (
	GasSafe    GasLevel = "Safe"
	GasWarning GasLevel = "Warning"
	GasDanger  GasLevel = "Danger"
)

// Hazard is the derived fire/smoke status.
type Hazard string

const (
	HazardNormal Hazard = "Normal"
	HazardDanger Hazard = "Danger"
)

// Door is the derived door status.
type Door string

const (
	DoorOpen    Door = "Open"
	DoorClosed  Door = "Closed"
	DoorUnknown Door = "Unknown"
)

// GasThresholds are strict upper bounds in ppm for one sensor.
// Params: warning and danger bounds, warning < danger.
// Returns: classification boundaries (value equal to a bound stays below it).
type GasThresholds struct {
	WarningPPM float64 `json:"warning_ppm"`
	DangerPPM  float64 `json:"danger_ppm"`
}

// Thresholds groups per-sensor gas thresholds.
type Thresholds struct {
	LPG   GasThresholds `json:"lpg"`
	Smoke GasThresholds `json:"smoke"`
}

// DefaultThresholds returns the stock MQ-6/MQ-2 thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LPG:   GasThresholds{WarningPPM: 300, DangerPPM: 700},
		Smoke: GasThresholds{WarningPPM: 200, DangerPPM: 500},
	}
}

// ClassifyGas maps ppm reading to gas level.
// Params: concentration and thresholds.
// Returns: Danger above DangerPPM, Warning above WarningPPM, Safe otherwise.
func ClassifyGas(ppm float64, thresholds GasThresholds) GasLevel {
	if math.IsNaN(ppm) {
		return GasSafe
	}
	switch {
	case ppm > thresholds.DangerPPM:
		return GasDanger
	case ppm > thresholds.WarningPPM:
		return GasWarning
	default:
		return GasSafe
	}
}

// HazardOf derives hazard status from backend flag and operator acknowledgement.
// Params: raised flag and acknowledged flag.
// Returns: Normal only when backend is clear and operator acknowledged.
func HazardOf(raised, acknowledged bool) Hazard {
	if !raised && acknowledged {
		return HazardNormal
	}
	return HazardDanger
}

// DoorOf maps raw reading to derived door status.
func DoorOf(reading domain.DoorReading) Door {
	switch reading {
	case domain.DoorOpen:
		return DoorOpen
	case domain.DoorClosed:
		return DoorClosed
	default:
		return DoorUnknown
	}
}

// DoorTransition describes what a new door reading means relative to the previous one.
// Params: previous and next readings.
// Returns: apply=false for non-OPEN/CLOSED input; logged=true when a known value changed.
func DoorTransition(prev, next domain.DoorReading) (apply, logged bool) {
	if !next.Known() {
		return false, false
	}
	return true, prev.Known() && prev != next
}

// ShouldAutoArm reports whether a door reading must activate the alarm.
// Params: raw state before the reading and the new reading.
// Returns: true on a transition into OPEN while in stand-by with alarm off.
func ShouldAutoArm(before domain.RawSensorState, next domain.DoorReading) bool {
	return next == domain.DoorOpen &&
		before.Door != domain.DoorOpen &&
		before.Mode == domain.ModeStandBy &&
		!before.AlarmActive
}

// Snapshot is the derived view of raw state served to presentation.
// Params: derived statuses plus raw numeric readings and flags.
// Returns: immutable value recomputed on every change.
type Snapshot struct {
	Door          Door        `json:"door"`
	DoorRaw       string      `json:"door_raw"`
	Fire          Hazard      `json:"fire"`
	Smoke         Hazard      `json:"smoke"`
	LPG           GasLevel    `json:"lpg"`
	SmokeGas      GasLevel    `json:"smoke_gas"`
	LPGPPM        float64     `json:"lpg_ppm"`
	SmokePPM      float64     `json:"smoke_ppm"`
	ButtonPressed bool        `json:"button_pressed"`
	AlarmActive   bool        `json:"alarm_active"`
	Mode          domain.Mode `json:"mode"`

	FireRaised        bool `json:"fire_raised"`
	SmokeRaised       bool `json:"smoke_raised"`
	FireAcknowledged  bool `json:"fire_acknowledged"`
	SmokeAcknowledged bool `json:"smoke_acknowledged"`

	PushConnected      bool `json:"push_connected"`
	TelemetryConnected bool `json:"telemetry_connected"`
}

// Derive computes full snapshot from raw state.
// Params: raw state and gas thresholds.
// Returns: derived snapshot.
func Derive(raw domain.RawSensorState, thresholds Thresholds) Snapshot {
	door := raw.Door
	if door == "" {
		door = domain.DoorUnknown
	}
	return Snapshot{
		Door:               DoorOf(door),
		DoorRaw:            string(door),
		Fire:               HazardOf(raw.FireRaised, raw.FireAcknowledged),
		Smoke:              HazardOf(raw.SmokeRaised, raw.SmokeAcknowledged),
		LPG:                ClassifyGas(raw.LPGPPM, thresholds.LPG),
		SmokeGas:           ClassifyGas(raw.SmokePPM, thresholds.Smoke),
		LPGPPM:             raw.LPGPPM,
		SmokePPM:           raw.SmokePPM,
		ButtonPressed:      raw.ButtonPressed,
		AlarmActive:        raw.AlarmActive,
		Mode:               raw.Mode,
		FireRaised:         raw.FireRaised,
		SmokeRaised:        raw.SmokeRaised,
		FireAcknowledged:   raw.FireAcknowledged,
		SmokeAcknowledged:  raw.SmokeAcknowledged,
		PushConnected:      raw.PushConnected,
		TelemetryConnected: raw.TelemetryConnected,
	}
}
