package status

import (
	"math"
	"testing"

	"homeguard/internal/domain"
)

func TestClassifyGasBoundaries(t *testing.T) {
	t.Parallel()

	lpg := DefaultThresholds().LPG
	cases := []struct {
		ppm  float64
		want GasLevel
	}{
		{ppm: 0, want: GasSafe},
		{ppm: 300, want: GasSafe},
		{ppm: 300.01, want: GasWarning},
		{ppm: 700, want: GasWarning},
		{ppm: 701, want: GasDanger},
		{ppm: math.NaN(), want: GasSafe},
	}
	for _, tc := range cases {
		if got := ClassifyGas(tc.ppm, lpg); got != tc.want {
			t.Fatalf("ClassifyGas(%v)=%q, want %q", tc.ppm, got, tc.want)
		}
	}

	smoke := DefaultThresholds().Smoke
	if ClassifyGas(200, smoke) != GasSafe || ClassifyGas(201, smoke) != GasWarning || ClassifyGas(501, smoke) != GasDanger {
		t.Fatalf("unexpected smoke classification")
	}
}

func TestHazardOfRequiresClearAndAcknowledged(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raised, acked bool
		want          Hazard
	}{
		{raised: false, acked: true, want: HazardNormal},
		{raised: true, acked: true, want: HazardDanger},
		{raised: false, acked: false, want: HazardDanger},
		{raised: true, acked: false, want: HazardDanger},
	}
	for _, tc := range cases {
		if got := HazardOf(tc.raised, tc.acked); got != tc.want {
			t.Fatalf("HazardOf(%v,%v)=%q, want %q", tc.raised, tc.acked, got, tc.want)
		}
	}
}

func TestDoorTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		prev, next    domain.DoorReading
		apply, logged bool
	}{
		{prev: domain.DoorUnknown, next: domain.DoorOpen, apply: true, logged: false},
		{prev: domain.DoorClosed, next: domain.DoorOpen, apply: true, logged: true},
		{prev: domain.DoorOpen, next: domain.DoorOpen, apply: true, logged: false},
		{prev: domain.DoorOpen, next: domain.DoorUnknown, apply: false, logged: false},
		{prev: domain.DoorOpen, next: domain.DoorReading("AJAR"), apply: false, logged: false},
	}
	for _, tc := range cases {
		apply, logged := DoorTransition(tc.prev, tc.next)
		if apply != tc.apply || logged != tc.logged {
			t.Fatalf("DoorTransition(%q,%q)=(%v,%v), want (%v,%v)", tc.prev, tc.next, apply, logged, tc.apply, tc.logged)
		}
	}
}

func TestShouldAutoArm(t *testing.T) {
	t.Parallel()

	standby := domain.InitialRawState(domain.ModeStandBy)
	standby.Door = domain.DoorClosed
	if !ShouldAutoArm(standby, domain.DoorOpen) {
		t.Fatalf("expected auto-arm on closed->open in standby")
	}

	fromUnknown := domain.InitialRawState(domain.ModeStandBy)
	if !ShouldAutoArm(fromUnknown, domain.DoorOpen) {
		t.Fatalf("expected auto-arm when first reading is open in standby")
	}

	alreadyOpen := standby
	alreadyOpen.Door = domain.DoorOpen
	if ShouldAutoArm(alreadyOpen, domain.DoorOpen) {
		t.Fatalf("repeated open must not re-arm")
	}

	armed := standby
	armed.AlarmActive = true
	if ShouldAutoArm(armed, domain.DoorOpen) {
		t.Fatalf("active alarm must not re-arm")
	}

	passive := standby
	passive.Mode = domain.ModePassive
	if ShouldAutoArm(passive, domain.DoorOpen) {
		t.Fatalf("passive mode must not arm")
	}

	if ShouldAutoArm(standby, domain.DoorClosed) {
		t.Fatalf("closing must not arm")
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	t.Parallel()

	raw := domain.InitialRawState(domain.ModePassive)
	raw.Door = domain.DoorOpen
	raw.LPGPPM = 800
	raw.SmokePPM = 250
	raw.FireRaised = true
	raw.FireAcknowledged = false

	first := Derive(raw, DefaultThresholds())
	second := Derive(raw, DefaultThresholds())
	if first != second {
		t.Fatalf("derive is not deterministic: %+v vs %+v", first, second)
	}
	if first.Door != DoorOpen || first.LPG != GasDanger || first.SmokeGas != GasWarning {
		t.Fatalf("unexpected derived statuses: %+v", first)
	}
	if first.Fire != HazardDanger || first.Smoke != HazardNormal {
		t.Fatalf("unexpected hazards: %+v", first)
	}

	empty := Derive(domain.RawSensorState{}, DefaultThresholds())
	if empty.Door != DoorUnknown || empty.DoorRaw != string(domain.DoorUnknown) {
		t.Fatalf("zero raw door must read as unknown: %+v", empty)
	}
}
