package app

import (
	"fmt"
	"strings"

	"homeguard/internal/domain"
	"homeguard/internal/push"
)

// Command errors; the HTTP layer maps them to status codes.
var (
	ErrInvalidArgument     = domain.ErrInvalidArgument
	ErrNotFound            = domain.ErrNotFound
	ErrChannelDisconnected = domain.ErrChannelDisconnected
)

// RoomKitchen is the only room with backend hazard detection.
const RoomKitchen = "kitchen"

// Audio message kinds played at the front door.
const (
	AudioNotHome    = "not_home"
	AudioAskToLeave = "ask_to_leave"
)

// ToggleAlarm flips the alarm flag.
// Params: none.
// Returns: new alarm state.
func (m *Manager) ToggleAlarm() bool {
	change := m.mutate(func(raw *domain.RawSensorState, tx *mutation) {
		raw.AlarmActive = !raw.AlarmActive
		draft := domain.RecordDraft{
			Type:        domain.NotificationAlarm,
			Title:       "Alarm Deactivated",
			Description: "The security alarm has been turned off.",
			Status:      domain.StatusNormal,
		}
		if raw.AlarmActive {
			draft.Title = "Alarm Activated"
			draft.Description = "The security alarm has been manually triggered."
			draft.Status = domain.StatusDanger
		}
		tx.append(draft, true)
	})
	m.logger.Info("alarm toggled", "active", change.State.AlarmActive)
	return change.State.AlarmActive
}

// AcknowledgeHazard marks room hazards as acknowledged and notifies backend.
// Params: room name (only kitchen is supported).
// Returns: ErrInvalidArgument for unknown room, ErrChannelDisconnected when backend was not told.
func (m *Manager) AcknowledgeHazard(room string) error {
	room = strings.ToLower(strings.TrimSpace(room))
	if room != RoomKitchen {
		m.recordCommandFailure("Reset Rejected", fmt.Sprintf("Room %q has no hazard sensors.", room))
		return fmt.Errorf("%w: unknown room %q", ErrInvalidArgument, room)
	}

	m.mutate(func(raw *domain.RawSensorState, tx *mutation) {
		raw.FireAcknowledged = true
		raw.SmokeAcknowledged = true
		raw.LPGPPM = 0
		raw.SmokePPM = 0
		tx.append(domain.RecordDraft{
			Type:        domain.NotificationSystem,
			Title:       "Kitchen Marked Safe",
			Description: "Kitchen alerts were acknowledged and gas readings reset.",
			Status:      domain.StatusNormal,
		}, false)
	})

	if err := m.emit(push.EventUserResetAlert, push.UserResetAlert{Room: room}); err != nil {
		m.recordCommandFailure("Backend Not Notified", withReason("The kitchen reset was applied locally only", err.Error()))
		return fmt.Errorf("%w: %v", ErrChannelDisconnected, err)
	}
	m.logger.Info("hazard acknowledged", "room", room)
	return nil
}

// ConfirmPerson enrolls the face of one activity record under a name.
// Params: activity record id and person name.
// Returns: ErrInvalidArgument, ErrNotFound or ErrChannelDisconnected on failure.
func (m *Manager) ConfirmPerson(recordID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		m.recordCommandFailure("Person Not Added", "A name is required to add a person to the database.")
		return fmt.Errorf("%w: empty name", ErrInvalidArgument)
	}
	record, ok := m.log.Get(recordID)
	if !ok {
		m.recordCommandFailure("Person Not Added", "The selected activity is no longer available.")
		return fmt.Errorf("%w: record %q", ErrNotFound, recordID)
	}
	if record.Type != domain.NotificationActivity || !record.HasImage() {
		m.recordCommandFailure("Person Not Added", "The selected activity has no image to enroll.")
		return fmt.Errorf("%w: record %q has no image", ErrInvalidArgument, recordID)
	}

	if err := m.emit(push.EventAddNewPerson, push.AddNewPerson{Name: name, Image: record.Image.Ref}); err != nil {
		m.recordCommandFailure("Database Update Failed", withReason(fmt.Sprintf("Could not send %q to the backend", name), err.Error()))
		return fmt.Errorf("%w: %v", ErrChannelDisconnected, err)
	}

	m.mutate(func(_ *domain.RawSensorState, tx *mutation) {
		tx.replace(recordID, func(current domain.NotificationRecord) domain.NotificationRecord {
			current.Status = domain.StatusKnown
			current.Title = name
			current.Description = fmt.Sprintf("%s has been added to the database.", name)
			return current
		})
		tx.append(domain.RecordDraft{
			Type:        domain.NotificationSystem,
			Title:       "Database Update Sent",
			Description: fmt.Sprintf("Request to add %q to the database has been sent.", name),
		}, false)
	})
	m.logger.Info("person enrollment sent", "record_id", recordID)
	return nil
}

// SetMode switches arming mode.
// Params: mode text ("passive", "standby", "Stand by").
// Returns: ErrInvalidArgument for unknown mode.
func (m *Manager) SetMode(value string) error {
	mode, ok := domain.ParseMode(value)
	if !ok {
		m.recordCommandFailure("Mode Not Changed", fmt.Sprintf("Unknown mode %q.", value))
		return fmt.Errorf("%w: mode %q", ErrInvalidArgument, value)
	}
	m.mutate(func(raw *domain.RawSensorState, tx *mutation) {
		if raw.Mode == mode {
			return
		}
		raw.Mode = mode
		draft := domain.RecordDraft{
			Type:        domain.NotificationSystem,
			Title:       "Passive Mode Enabled",
			Description: "Automatic alarm activation is disabled.",
		}
		if mode == domain.ModeStandBy {
			draft.Title = "Stand By Mode Enabled"
			draft.Description = "The alarm will activate automatically when the front door opens."
		}
		tx.append(draft, false)
	})
	return nil
}

// PlayAudioMessage logs a recorded message played at the front door.
// Params: message kind (AudioNotHome or AudioAskToLeave).
// Returns: ErrInvalidArgument for unknown kind.
func (m *Manager) PlayAudioMessage(kind string) error {
	var draft domain.RecordDraft
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case AudioNotHome:
		draft = domain.RecordDraft{
			Type:        domain.NotificationSystem,
			Title:       "Audio Message Played",
			Description: "A recorded message was played: 'I'm not at home'.",
		}
	case AudioAskToLeave:
		draft = domain.RecordDraft{
			Type:        domain.NotificationSystem,
			Title:       "Audio Warning Played",
			Description: "A message was played at the front door.",
		}
	default:
		m.recordCommandFailure("Audio Not Played", fmt.Sprintf("Unknown audio message %q.", kind))
		return fmt.Errorf("%w: audio message %q", ErrInvalidArgument, kind)
	}
	m.mutate(func(_ *domain.RawSensorState, tx *mutation) {
		tx.append(draft, true)
	})
	return nil
}

func (m *Manager) emit(event string, payload any) error {
	m.mu.RLock()
	emitter := m.push
	m.mu.RUnlock()
	if emitter == nil {
		return push.ErrNotConnected
	}
	return emitter.Emit(event, payload)
}

// recordCommandFailure leaves a visible trace for a rejected command.
func (m *Manager) recordCommandFailure(title, description string) {
	m.logger.Warn("command failed", "title", title, "detail", description)
	m.mutate(func(_ *domain.RawSensorState, tx *mutation) {
		tx.append(domain.RecordDraft{
			Type:        domain.NotificationSystem,
			Title:       title,
			Description: description,
			Status:      domain.StatusWarning,
		}, false)
	})
}
