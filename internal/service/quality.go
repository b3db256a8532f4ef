package service

import (
	"fmt"
	"strings"

	"github.com/trimtrack/vitals-backend/pkg/model"
)

// Quality check names. Each check reports independently so the caller can
// route the user back to the specific failing step.
const (
	CheckAbnormalReadingsHaveNotes = "abnormal_readings_have_notes"
	CheckBloodPressureSanity       = "blood_pressure_sanity"
	CheckNonEmptySubmission        = "non_empty_submission"
	CheckMoodNotesForPoorMood      = "mood_notes_for_poor_mood"
)

// QualityChecker runs cross-field consistency checks over a full in-progress
// submission bundle before it is handed to the persistence collaborator.
// A submission with any failing error-severity check is blocked.
type QualityChecker struct{}

// NewQualityChecker creates a QualityChecker
func NewQualityChecker() *QualityChecker {
	return &QualityChecker{}
}

// RunChecks evaluates the draft plus its per-type validation results and
// returns one result per check, pass or fail.
func (q *QualityChecker) RunChecks(draft model.VitalSubmissionDraft, results map[model.VitalType]model.ValidationResult) []model.QualityCheckResult {
	checks := []model.QualityCheckResult{
		q.checkNonEmpty(draft),
		q.checkBloodPressureSanity(draft),
		q.checkAbnormalNotes(draft, results),
		q.checkPoorMoodNotes(draft),
	}
	return checks
}

// Blocked reports whether any failing check has error severity
func Blocked(checks []model.QualityCheckResult) bool {
	for _, c := range checks {
		if !c.Passed && c.Severity == model.CheckSeverityError {
			return true
		}
	}
	return false
}

// FirstFailingStep returns the step of the first failing error-severity
// check, so the caller can send the user back there.
func FirstFailingStep(checks []model.QualityCheckResult) (model.WizardStep, bool) {
	for _, c := range checks {
		if !c.Passed && c.Severity == model.CheckSeverityError {
			return c.Step, true
		}
	}
	return "", false
}

// checkNonEmpty rejects an entirely empty submission: at least one vital
// slot or a mood entry must exist.
func (q *QualityChecker) checkNonEmpty(draft model.VitalSubmissionDraft) model.QualityCheckResult {
	check := model.QualityCheckResult{
		Name:     CheckNonEmptySubmission,
		Passed:   true,
		Severity: model.CheckSeverityError,
		Step:     model.StepBloodPressure,
	}
	if draft.Empty() {
		check.Passed = false
		check.Message = "Nothing was recorded this session. Log at least one vital or a mood entry before submitting."
	}
	return check
}

// checkBloodPressureSanity re-verifies the structural invariant at the gate:
// even a pair that somehow slipped past per-field validation is rejected here.
func (q *QualityChecker) checkBloodPressureSanity(draft model.VitalSubmissionDraft) model.QualityCheckResult {
	check := model.QualityCheckResult{
		Name:     CheckBloodPressureSanity,
		Passed:   true,
		Severity: model.CheckSeverityError,
		Step:     model.StepBloodPressure,
	}
	bp := draft.BloodPressure
	if bp == nil {
		return check
	}
	switch {
	case bp.Systolic <= bp.Diastolic:
		check.Passed = false
		check.Message = fmt.Sprintf("Blood pressure %d/%d is impossible: systolic must exceed diastolic. The values may be swapped.", bp.Systolic, bp.Diastolic)
	case bp.Systolic < plausibleSystolicMin || bp.Systolic > plausibleSystolicMax:
		check.Passed = false
		check.Message = fmt.Sprintf("Systolic %d mmHg is outside the recordable range [%d, %d].", bp.Systolic, plausibleSystolicMin, plausibleSystolicMax)
	case bp.Diastolic < plausibleDiastolicMin || bp.Diastolic > plausibleDiastolicMax:
		check.Passed = false
		check.Message = fmt.Sprintf("Diastolic %d mmHg is outside the recordable range [%d, %d].", bp.Diastolic, plausibleDiastolicMin, plausibleDiastolicMax)
	}
	return check
}

// checkAbnormalNotes requires explanatory notes whenever any recorded
// reading was classified warning or critical.
func (q *QualityChecker) checkAbnormalNotes(draft model.VitalSubmissionDraft, results map[model.VitalType]model.ValidationResult) model.QualityCheckResult {
	check := model.QualityCheckResult{
		Name:     CheckAbnormalReadingsHaveNotes,
		Passed:   true,
		Severity: model.CheckSeverityError,
		Step:     model.StepReview,
	}

	var abnormal []string
	for vitalType, res := range results {
		if res.Severity != model.SeverityNormal {
			abnormal = append(abnormal, string(vitalType))
		}
	}
	if len(abnormal) > 0 && strings.TrimSpace(draft.Notes) == "" {
		check.Passed = false
		check.Message = fmt.Sprintf("Abnormal readings (%s) need an explanatory note before submitting.", strings.Join(abnormal, ", "))
	}
	return check
}

// checkPoorMoodNotes encourages context when mood is reported poor. Warning
// only; it never blocks submission.
func (q *QualityChecker) checkPoorMoodNotes(draft model.VitalSubmissionDraft) model.QualityCheckResult {
	check := model.QualityCheckResult{
		Name:     CheckMoodNotesForPoorMood,
		Passed:   true,
		Severity: model.CheckSeverityWarning,
		Step:     model.StepMood,
	}
	if draft.Mood != nil && *draft.Mood == model.MoodPoor && strings.TrimSpace(draft.MoodNotes) == "" {
		check.Passed = false
		check.Message = "Mood was reported as poor. A short note helps the care team follow up."
	}
	return check
}
