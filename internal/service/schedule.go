package service

import (
	"fmt"

	"github.com/trimtrack/vitals-backend/pkg/model"
)

// defaultReminderTimes maps every supported frequency to its default clock
// times. The mapping is total: each frequency has a list of matching length.
var defaultReminderTimes = map[model.ReminderFrequency][]string{
	model.Frequency1x: {"08:00"},
	model.Frequency2x: {"08:00", "20:00"},
	model.Frequency3x: {"08:00", "14:00", "20:00"},
	model.Frequency4x: {"08:00", "12:00", "16:00", "20:00"},
	model.Frequency6x: {"06:00", "10:00", "14:00", "18:00", "21:00", "23:00"},
}

// ScheduleSelections are the raw user choices from the schedule step
type ScheduleSelections struct {
	Enabled    bool
	VitalTypes []model.VitalType
	Frequency  model.ReminderFrequency
	Times      []string // optional edits over the frequency defaults
	Channels   model.NotificationChannels
}

// ScheduleBuilder turns schedule-step selections into SchedulePreferences.
// Pure transform, no side effects.
type ScheduleBuilder struct{}

// NewScheduleBuilder creates a ScheduleBuilder
func NewScheduleBuilder() *ScheduleBuilder {
	return &ScheduleBuilder{}
}

// DefaultTimes returns the default clock times for a frequency. The returned
// slice is a copy; callers may edit it freely.
func (b *ScheduleBuilder) DefaultTimes(frequency model.ReminderFrequency) ([]string, error) {
	times, ok := defaultReminderTimes[frequency]
	if !ok {
		return nil, fmt.Errorf("unsupported reminder frequency: %s", frequency)
	}
	out := make([]string, len(times))
	copy(out, times)
	return out, nil
}

// Build validates selections against the draft and produces the final
// SchedulePreferences. Only vital types actually present in the draft may be
// scheduled. When Times is empty the frequency defaults are used; when
// provided its length must equal the frequency cardinality.
func (b *ScheduleBuilder) Build(draft model.VitalSubmissionDraft, sel ScheduleSelections) (model.SchedulePreferences, error) {
	if !sel.Enabled {
		return model.SchedulePreferences{Enabled: false}, nil
	}

	if len(sel.VitalTypes) == 0 {
		return model.SchedulePreferences{}, fmt.Errorf("at least one vital type is required to enable reminders")
	}

	logged := make(map[model.VitalType]bool)
	for _, t := range draft.LoggedTypes() {
		logged[t] = true
	}
	for _, t := range sel.VitalTypes {
		if !logged[t] {
			return model.SchedulePreferences{}, fmt.Errorf("cannot schedule %s: it was not logged this session", t)
		}
	}

	times := sel.Times
	if len(times) == 0 {
		defaults, err := b.DefaultTimes(sel.Frequency)
		if err != nil {
			return model.SchedulePreferences{}, err
		}
		times = defaults
	} else if len(times) != sel.Frequency.TimesPerDay() {
		return model.SchedulePreferences{}, fmt.Errorf(
			"frequency %s requires exactly %d reminder times, got %d",
			sel.Frequency, sel.Frequency.TimesPerDay(), len(times),
		)
	}
	for _, t := range times {
		if !validClockTime(t) {
			return model.SchedulePreferences{}, fmt.Errorf("invalid reminder time %q: expected HH:MM", t)
		}
	}

	if !sel.Channels.App && !sel.Channels.Email && !sel.Channels.SMS {
		return model.SchedulePreferences{}, fmt.Errorf("at least one notification channel is required")
	}

	prefs := model.SchedulePreferences{
		Enabled:              true,
		VitalTypes:           append([]model.VitalType(nil), sel.VitalTypes...),
		Frequency:            sel.Frequency,
		Times:                append([]string(nil), times...),
		NotificationChannels: sel.Channels,
	}
	return prefs, nil
}

// validClockTime accepts 24-hour HH:MM
func validClockTime(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return h >= 0 && h <= 23 && m >= 0 && m <= 59
}
