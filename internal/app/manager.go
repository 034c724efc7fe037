package app

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"homeguard/internal/clock"
	"homeguard/internal/config"
	"homeguard/internal/domain"
	"homeguard/internal/eventlog"
	"homeguard/internal/push"
	"homeguard/internal/status"
)

// Change describes one applied mutation.
// Params: derived state after mutation and records touched by it.
// Returns: payload delivered to listeners in mutation order.
type Change struct {
	State     status.Snapshot             `json:"state"`
	Appended  []domain.NotificationRecord `json:"appended,omitempty"`
	Announced []domain.NotificationRecord `json:"announced,omitempty"`
	Replaced  []domain.NotificationRecord `json:"replaced,omitempty"`
}

// Listener observes applied changes. It must not call Manager mutators.
type Listener func(Change)

// PushEmitter sends outbound events on the backend push channel.
type PushEmitter interface {
	Emit(event string, payload any) error
}

// Manager reconciles channel input and operator commands into one state.
// Params: thresholds, event log, clock, logger and optional push emitter.
// Returns: push/telemetry sink, command surface and change feed.
type Manager struct {
	// emitMu serialises mutate+notify so listeners see changes in order.
	emitMu sync.Mutex
	mu     sync.RWMutex

	raw         domain.RawSensorState
	thresholds  status.Thresholds
	log         *eventlog.Store
	clock       clock.Clock
	logger      *slog.Logger
	push        PushEmitter
	buttonReset time.Duration
	buttonTimer clock.Timer
	buttonGen   uint64
	closed      bool

	listeners    map[int]Listener
	nextListener int
}

// NewManager creates reconciler with initial state from config.
// Params: config snapshot, logger, event log and clock.
// Returns: initialized manager.
func NewManager(cfg config.Config, logger *slog.Logger, log *eventlog.Store, clk clock.Clock) *Manager {
	mode, ok := domain.ParseMode(cfg.Service.InitialMode)
	if !ok {
		mode = domain.ModePassive
	}
	return &Manager{
		raw:         domain.InitialRawState(mode),
		thresholds:  ThresholdsFromConfig(cfg.Thresholds),
		log:         log,
		clock:       clk,
		logger:      logger.With("component", "reconciler"),
		buttonReset: time.Duration(cfg.Telemetry.ButtonResetMS) * time.Millisecond,
		listeners:   make(map[int]Listener),
	}
}

// ThresholdsFromConfig converts TOML thresholds into derivation thresholds.
func ThresholdsFromConfig(cfg config.ThresholdsConfig) status.Thresholds {
	return status.Thresholds{
		LPG:   status.GasThresholds{WarningPPM: cfg.LPG.WarningPPM, DangerPPM: cfg.LPG.DangerPPM},
		Smoke: status.GasThresholds{WarningPPM: cfg.Smoke.WarningPPM, DangerPPM: cfg.Smoke.DangerPPM},
	}
}

// SetPushEmitter swaps outbound push channel.
// Params: emitter (nil disables outbound commands).
// Returns: none.
func (m *Manager) SetPushEmitter(emitter PushEmitter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.push = emitter
}

// Subscribe registers listener for future changes.
// Params: listener callback.
// Returns: unsubscribe function.
func (m *Manager) Subscribe(listener Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Snapshot returns derived state.
func (m *Manager) Snapshot() status.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return status.Derive(m.raw, m.thresholds)
}

// Raw returns raw sensor state.
func (m *Manager) Raw() domain.RawSensorState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.raw
}

// Notifications returns log records most-recent-first.
// Params: type filter; empty returns every record.
// Returns: independent record copies.
func (m *Manager) Notifications(kind domain.NotificationType) []domain.NotificationRecord {
	if kind == "" {
		return m.log.Snapshot()
	}
	return m.log.OfType(kind)
}

// Record returns one log record by id.
func (m *Manager) Record(id string) (domain.NotificationRecord, bool) {
	return m.log.Get(id)
}

// Close cancels pending timers; later timer callbacks are no-ops.
// Params: none.
// Returns: nil.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.buttonTimer != nil {
		m.buttonTimer.Stop()
		m.buttonTimer = nil
	}
	return nil
}

// mutation collects records touched while the state lock is held.
type mutation struct {
	log    *eventlog.Store
	change Change
}

func (tx *mutation) append(draft domain.RecordDraft, announce bool) domain.NotificationRecord {
	record := tx.log.Append(draft)
	tx.change.Appended = append(tx.change.Appended, record)
	if announce {
		tx.change.Announced = append(tx.change.Announced, record)
	}
	return record
}

func (tx *mutation) replace(id string, patch func(domain.NotificationRecord) domain.NotificationRecord) (domain.NotificationRecord, bool) {
	record, ok := tx.log.Replace(id, patch)
	if ok {
		tx.change.Replaced = append(tx.change.Replaced, record)
	}
	return record, ok
}

// mutate applies fn atomically and notifies listeners when anything changed.
// Params: fn receiving raw state pointer and record collector.
// Returns: applied change (zero when nothing changed).
func (m *Manager) mutate(fn func(raw *domain.RawSensorState, tx *mutation)) Change {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	before := m.raw
	tx := &mutation{log: m.log}
	fn(&m.raw, tx)
	after := m.raw
	listeners := m.listenersLocked()
	m.mu.Unlock()

	change := tx.change
	if before == after && len(change.Appended) == 0 && len(change.Replaced) == 0 {
		return Change{}
	}
	change.State = status.Derive(after, m.thresholds)
	for _, listener := range listeners {
		listener(change)
	}
	return change
}

func (m *Manager) listenersLocked() []Listener {
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.listeners[id])
	}
	return out
}

// HandleHazardAlert raises backend hazard and clears its acknowledgement.
// Params: hazard payload from push channel.
// Returns: none; appends an announced record.
func (m *Manager) HandleHazardAlert(msg push.HazardAlert) {
	sensor := strings.TrimSpace(msg.Sensor)
	if sensor == "" {
		sensor = "Kitchen Sensor"
	}
	description := strings.TrimSpace(msg.Description)
	if description == "" {
		description = fmt.Sprintf("%s reported a hazard.", sensor)
	}
	hazard, known := domain.HazardFromSensor(sensor)

	m.mutate(func(raw *domain.RawSensorState, tx *mutation) {
		kind := domain.NotificationSystem
		switch hazard {
		case domain.HazardFire:
			raw.FireRaised = true
			raw.FireAcknowledged = false
			kind = domain.NotificationKitchenFire
		case domain.HazardSmoke:
			raw.SmokeRaised = true
			raw.SmokeAcknowledged = false
			kind = domain.NotificationKitchenSmoke
		}
		tx.append(domain.RecordDraft{
			Type:        kind,
			Title:       fmt.Sprintf("%s Alert!", sensor),
			Description: description,
			Status:      domain.StatusDanger,
		}, true)
	})
	if !known {
		m.logger.Warn("hazard alert from unrecognised sensor", "sensor", sensor)
		return
	}
	m.logger.Warn("hazard raised", "hazard", string(hazard), "sensor", sensor)
}

// HandleHazardCleared clears backend hazard flag; acknowledgement is untouched.
// Params: cleared payload from push channel.
// Returns: none.
func (m *Manager) HandleHazardCleared(msg push.HazardCleared) {
	hazard, ok := domain.HazardFromSensor(msg.Sensor)
	if !ok {
		m.logger.Debug("hazard clear from unrecognised sensor ignored", "sensor", msg.Sensor)
		return
	}
	m.mutate(func(raw *domain.RawSensorState, _ *mutation) {
		switch hazard {
		case domain.HazardFire:
			raw.FireRaised = false
		case domain.HazardSmoke:
			raw.SmokeRaised = false
		}
	})
	m.logger.Info("hazard cleared by backend", "hazard", string(hazard))
}

// HandleActivityAlert appends a silent activity record.
// Params: recognition payload from push channel.
// Returns: none.
func (m *Manager) HandleActivityAlert(msg push.ActivityAlert) {
	title := strings.TrimSpace(msg.Title)
	if title == "" {
		title = "Person Detected"
	}
	var image *domain.ImageAttachment
	if ref := strings.TrimSpace(msg.ImageURL); ref != "" {
		hint := strings.TrimSpace(msg.ImageHint)
		if hint == "" {
			hint = "face"
		}
		image = &domain.ImageAttachment{Ref: ref, Hint: hint}
	}
	m.mutate(func(_ *domain.RawSensorState, tx *mutation) {
		tx.append(domain.RecordDraft{
			Type:        domain.NotificationActivity,
			Title:       title,
			Description: msg.Description,
			Status:      domain.ParsePersonStatus(msg.Status),
			Image:       image,
		}, false)
	})
}

// HandleSystemMessage appends a silent system record.
// Params: free-form backend message.
// Returns: none.
func (m *Manager) HandleSystemMessage(msg push.SystemMessage) {
	title := strings.TrimSpace(msg.Title)
	if title == "" {
		title = "Backend Message"
	}
	m.mutate(func(_ *domain.RawSensorState, tx *mutation) {
		tx.append(domain.RecordDraft{
			Type:        domain.NotificationSystem,
			Title:       title,
			Description: msg.Description,
			Status:      parseRecordStatus(msg.Status),
		}, false)
	})
}

// HandlePushConnection records backend session transitions.
// Params: connected flag and disconnect reason.
// Returns: none; repeated reports of the same state are ignored.
func (m *Manager) HandlePushConnection(connected bool, reason string) {
	m.mutate(func(raw *domain.RawSensorState, tx *mutation) {
		if raw.PushConnected == connected {
			return
		}
		raw.PushConnected = connected
		if connected {
			tx.append(domain.RecordDraft{
				Type:        domain.NotificationSystem,
				Title:       "System Connected",
				Description: "Connected to the monitoring backend.",
				Status:      domain.StatusNormal,
			}, false)
			return
		}
		tx.append(domain.RecordDraft{
			Type:        domain.NotificationSystem,
			Title:       "Backend Disconnected",
			Description: withReason("Connection to the monitoring backend was lost", reason),
			Status:      domain.StatusWarning,
		}, false)
	})
}

// HandleTelemetryConnection records broker session transitions.
// Params: connected flag and disconnect reason.
// Returns: none; repeated reports of the same state are ignored.
func (m *Manager) HandleTelemetryConnection(connected bool, reason string) {
	m.mutate(func(raw *domain.RawSensorState, tx *mutation) {
		if raw.TelemetryConnected == connected {
			return
		}
		raw.TelemetryConnected = connected
		if connected {
			tx.append(domain.RecordDraft{
				Type:        domain.NotificationSystem,
				Title:       "Sensor Network Connected",
				Description: "Receiving live readings from home sensors.",
				Status:      domain.StatusNormal,
			}, false)
			return
		}
		tx.append(domain.RecordDraft{
			Type:        domain.NotificationSystem,
			Title:       "Sensor Network Disconnected",
			Description: withReason("Live sensor readings are unavailable", reason),
			Status:      domain.StatusWarning,
		}, false)
	})
}

// HandleDoor applies door reading, logs transitions and runs the stand-by rule.
// Params: parsed door reading.
// Returns: none; non OPEN/CLOSED readings leave state untouched.
func (m *Manager) HandleDoor(reading domain.DoorReading) {
	change := m.mutate(func(raw *domain.RawSensorState, tx *mutation) {
		apply, logged := status.DoorTransition(raw.Door, reading)
		if !apply {
			return
		}
		arm := status.ShouldAutoArm(*raw, reading)
		raw.Door = reading
		if logged {
			word := "Closed"
			recordStatus := domain.StatusClosed
			if reading == domain.DoorOpen {
				word = "Open"
				recordStatus = domain.StatusOpen
			}
			tx.append(domain.RecordDraft{
				Type:        domain.NotificationDoor,
				Title:       "Door " + word,
				Description: fmt.Sprintf("The front door was %s.", strings.ToLower(word)),
				Status:      recordStatus,
			}, false)
		}
		if arm {
			raw.AlarmActive = true
			tx.append(domain.RecordDraft{
				Type:        domain.NotificationAlarm,
				Title:       "ALARM ACTIVATED",
				Description: "The door was opened while in Stand by mode.",
				Status:      domain.StatusDanger,
			}, true)
		}
	})
	if change.State.AlarmActive && len(change.Announced) > 0 {
		m.logger.Warn("alarm activated by door in stand-by mode")
	}
}

// HandleLPG stores LPG reading and logs level transitions.
func (m *Manager) HandleLPG(ppm float64) {
	m.mutate(func(raw *domain.RawSensorState, tx *mutation) {
		before := status.ClassifyGas(raw.LPGPPM, m.thresholds.LPG)
		raw.LPGPPM = ppm
		after := status.ClassifyGas(ppm, m.thresholds.LPG)
		if before != after {
			appendGasRecord(tx, "LPG", ppm, after)
		}
	})
}

// HandleSmoke stores smoke-gas reading and logs level transitions.
func (m *Manager) HandleSmoke(ppm float64) {
	m.mutate(func(raw *domain.RawSensorState, tx *mutation) {
		before := status.ClassifyGas(raw.SmokePPM, m.thresholds.Smoke)
		raw.SmokePPM = ppm
		after := status.ClassifyGas(ppm, m.thresholds.Smoke)
		if before != after {
			appendGasRecord(tx, "Smoke", ppm, after)
		}
	})
}

func appendGasRecord(tx *mutation, gas string, ppm float64, level status.GasLevel) {
	tx.append(domain.RecordDraft{
		Type:        domain.NotificationKitchenGas,
		Title:       fmt.Sprintf("%s Level %s", gas, level),
		Description: fmt.Sprintf("%s concentration is %.0f ppm.", gas, ppm),
		Status:      domain.RecordStatus(level),
	}, level != status.GasSafe)
}

// HandleButtonPressed raises the doorbell pulse and schedules its reset.
// Params: none.
// Returns: none; a press during an active pulse only extends it.
func (m *Manager) HandleButtonPressed() {
	m.mutate(func(raw *domain.RawSensorState, tx *mutation) {
		if m.closed {
			return
		}
		if !raw.ButtonPressed {
			raw.ButtonPressed = true
			tx.append(domain.RecordDraft{
				Type:        domain.NotificationDoor,
				Title:       "Guest at Door",
				Description: "Someone pressed the doorbell button.",
			}, true)
		}
		m.scheduleButtonResetLocked()
	})
}

func (m *Manager) scheduleButtonResetLocked() {
	if m.buttonTimer != nil {
		m.buttonTimer.Stop()
	}
	m.buttonGen++
	gen := m.buttonGen
	m.buttonTimer = m.clock.AfterFunc(m.buttonReset, func() {
		m.resetButton(gen)
	})
}

func (m *Manager) resetButton(gen uint64) {
	m.mutate(func(raw *domain.RawSensorState, _ *mutation) {
		if m.closed || gen != m.buttonGen {
			return
		}
		raw.ButtonPressed = false
		m.buttonTimer = nil
	})
}

func withReason(message, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return message + "."
	}
	return fmt.Sprintf("%s: %s.", message, reason)
}

func parseRecordStatus(raw string) domain.RecordStatus {
	for _, candidate := range []domain.RecordStatus{
		domain.StatusKnown, domain.StatusUnknown, domain.StatusDanger, domain.StatusWarning,
		domain.StatusSafe, domain.StatusNormal, domain.StatusOpen, domain.StatusClosed,
	} {
		if strings.EqualFold(strings.TrimSpace(raw), string(candidate)) {
			return candidate
		}
	}
	return ""
}
