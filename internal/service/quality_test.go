package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trimtrack/vitals-backend/pkg/model"
)

func intPtr(i int) *int {
	return &i
}

func floatPtr(f float64) *float64 {
	return &f
}

func moodPtr(m model.Mood) *model.Mood {
	return &m
}

func TestRunChecks_EmptySubmissionBlocked(t *testing.T) {
	qa := NewQualityChecker()

	checks := qa.RunChecks(model.VitalSubmissionDraft{}, nil)

	assert.True(t, Blocked(checks))
	step, ok := FirstFailingStep(checks)
	require.True(t, ok)
	assert.Equal(t, model.StepBloodPressure, step)

	var found bool
	for _, c := range checks {
		if c.Name == CheckNonEmptySubmission {
			found = true
			assert.False(t, c.Passed)
			assert.Equal(t, model.CheckSeverityError, c.Severity)
		}
	}
	assert.True(t, found)
}

func TestRunChecks_MoodOnlySubmissionPasses(t *testing.T) {
	qa := NewQualityChecker()

	draft := model.VitalSubmissionDraft{Mood: moodPtr(model.MoodGood)}
	checks := qa.RunChecks(draft, nil)

	assert.False(t, Blocked(checks))
}

func TestRunChecks_InvertedBloodPressureBlocked(t *testing.T) {
	qa := NewQualityChecker()

	draft := model.VitalSubmissionDraft{
		BloodPressure: &model.BloodPressureEntry{Systolic: 80, Diastolic: 120},
	}
	checks := qa.RunChecks(draft, nil)

	assert.True(t, Blocked(checks))
	step, ok := FirstFailingStep(checks)
	require.True(t, ok)
	assert.Equal(t, model.StepBloodPressure, step)
}

func TestRunChecks_AbnormalWithoutNotesBlocked(t *testing.T) {
	qa := NewQualityChecker()

	draft := model.VitalSubmissionDraft{
		Temperature: floatPtr(101.5),
	}
	results := map[model.VitalType]model.ValidationResult{
		model.VitalTypeTemperature: {Severity: model.SeverityWarning},
	}

	checks := qa.RunChecks(draft, results)
	assert.True(t, Blocked(checks))
	step, ok := FirstFailingStep(checks)
	require.True(t, ok)
	assert.Equal(t, model.StepReview, step)

	// The same submission with notes passes
	draft.Notes = "Patient has had a mild cold since yesterday."
	checks = qa.RunChecks(draft, results)
	assert.False(t, Blocked(checks))
}

func TestRunChecks_WhitespaceNotesDoNotSatisfyRequirement(t *testing.T) {
	qa := NewQualityChecker()

	draft := model.VitalSubmissionDraft{
		HeartRate: intPtr(130),
		Notes:     "   \t  ",
	}
	results := map[model.VitalType]model.ValidationResult{
		model.VitalTypeHeartRate: {Severity: model.SeverityWarning},
	}

	checks := qa.RunChecks(draft, results)
	assert.True(t, Blocked(checks))
}

func TestRunChecks_PoorMoodWithoutNotesWarnsOnly(t *testing.T) {
	qa := NewQualityChecker()

	draft := model.VitalSubmissionDraft{Mood: moodPtr(model.MoodPoor)}
	checks := qa.RunChecks(draft, nil)

	// Warning check fails but never blocks
	assert.False(t, Blocked(checks))

	var found bool
	for _, c := range checks {
		if c.Name == CheckMoodNotesForPoorMood {
			found = true
			assert.False(t, c.Passed)
			assert.Equal(t, model.CheckSeverityWarning, c.Severity)
		}
	}
	assert.True(t, found)
}

func TestRunChecks_CleanSubmissionPassesEverything(t *testing.T) {
	qa := NewQualityChecker()

	draft := model.VitalSubmissionDraft{
		BloodPressure: &model.BloodPressureEntry{Systolic: 118, Diastolic: 76},
		Temperature:   floatPtr(98.6),
		HeartRate:     intPtr(68),
		Mood:          moodPtr(model.MoodGood),
	}
	results := map[model.VitalType]model.ValidationResult{
		model.VitalTypeBloodPressure: {Severity: model.SeverityNormal},
		model.VitalTypeTemperature:   {Severity: model.SeverityNormal},
		model.VitalTypeHeartRate:     {Severity: model.SeverityNormal},
	}

	checks := qa.RunChecks(draft, results)
	assert.False(t, Blocked(checks))
	for _, c := range checks {
		assert.True(t, c.Passed, "check %s should pass", c.Name)
	}
	_, ok := FirstFailingStep(checks)
	assert.False(t, ok)
}
