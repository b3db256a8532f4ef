package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trimtrack/vitals-backend/pkg/model"
	"go.uber.org/zap"
)

// VitalsRepository persists submitted vitals bundles and serves recent
// readings for the anomaly detector. Implements the wizard's Submitter and
// HistoryProvider collaborator contracts.
type VitalsRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewVitalsRepository creates a new VitalsRepository
func NewVitalsRepository(db *pgxpool.Pool, logger *zap.Logger) *VitalsRepository {
	return &VitalsRepository{
		db:     db,
		logger: logger,
	}
}

// Submit persists a finished vitals bundle and returns its canonical saved
// representation. Individual readings are also fanned out to the per-type
// history table used for anomaly detection.
func (r *VitalsRepository) Submit(ctx context.Context, draft model.VitalSubmissionDraft) (*model.SavedVitals, error) {
	now := time.Now()
	saved := &model.SavedVitals{
		ID:            uuid.New().String(),
		SubjectID:     draft.SubjectID,
		BloodPressure: draft.BloodPressure,
		Temperature:   draft.Temperature,
		HeartRate:     draft.HeartRate,
		Oxygen:        draft.Oxygen,
		BloodSugar:    draft.BloodSugar,
		Mood:          draft.Mood,
		SubmittedAt:   now,
		CreatedAt:     now,
	}
	if draft.MoodNotes != "" {
		saved.MoodNotes = &draft.MoodNotes
	}
	if draft.Notes != "" {
		saved.Notes = &draft.Notes
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO vital_submissions (
			id, subject_id, systolic, diastolic, temperature, heart_rate,
			spo2, pulse_rate, blood_sugar, mood, mood_notes, notes,
			session_started_at, submitted_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	var systolic, diastolic *int
	if draft.BloodPressure != nil {
		systolic, diastolic = &draft.BloodPressure.Systolic, &draft.BloodPressure.Diastolic
	}
	var spo2 *float64
	var pulseRate *int
	if draft.Oxygen != nil {
		spo2, pulseRate = &draft.Oxygen.SpO2, &draft.Oxygen.PulseRate
	}
	var mood *string
	if draft.Mood != nil {
		m := string(*draft.Mood)
		mood = &m
	}

	_, err = tx.Exec(ctx, query,
		saved.ID,
		saved.SubjectID,
		systolic,
		diastolic,
		draft.Temperature,
		draft.HeartRate,
		spo2,
		pulseRate,
		draft.BloodSugar,
		mood,
		saved.MoodNotes,
		saved.Notes,
		draft.StartedAt,
		saved.SubmittedAt,
		saved.CreatedAt,
	)
	if err != nil {
		r.logger.Error("failed to save vital submission",
			zap.Error(err),
			zap.String("subject_id", draft.SubjectID),
		)
		return nil, fmt.Errorf("failed to save vital submission: %w", err)
	}

	for _, reading := range submissionReadings(draft, saved.ID, now) {
		if err := insertReading(ctx, tx, reading, saved.ID); err != nil {
			r.logger.Error("failed to save vital reading",
				zap.Error(err),
				zap.String("subject_id", draft.SubjectID),
				zap.String("vital_type", string(reading.Type)),
			)
			return nil, fmt.Errorf("failed to save %s reading: %w", reading.Type, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit vital submission: %w", err)
	}

	r.logger.Info("vital submission saved",
		zap.String("submission_id", saved.ID),
		zap.String("subject_id", saved.SubjectID),
	)

	return saved, nil
}

// RecentReadings returns up to limit prior readings of the given type for a
// subject, most recent first
func (r *VitalsRepository) RecentReadings(ctx context.Context, subjectID string, vitalType model.VitalType, limit int) ([]model.VitalReading, error) {
	query := `
		SELECT vital_type, value, systolic, diastolic, spo2, pulse_rate, measured_at
		FROM vital_readings
		WHERE subject_id = $1 AND vital_type = $2
		ORDER BY measured_at DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, subjectID, string(vitalType), limit)
	if err != nil {
		r.logger.Error("failed to query recent readings",
			zap.Error(err),
			zap.String("subject_id", subjectID),
			zap.String("vital_type", string(vitalType)),
		)
		return nil, fmt.Errorf("failed to query recent readings: %w", err)
	}
	defer rows.Close()

	var readings []model.VitalReading
	for rows.Next() {
		var (
			reading             model.VitalReading
			vt                  string
			value, spo2         *float64
			systolic, diastolic *int
			pulseRate           *int
		)
		if err := rows.Scan(&vt, &value, &systolic, &diastolic, &spo2, &pulseRate, &reading.MeasuredAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading row: %w", err)
		}
		reading.Type = model.VitalType(vt)
		reading.Unit = reading.Type.Unit()
		if value != nil {
			reading.Value = *value
		}
		if systolic != nil {
			reading.Systolic = *systolic
		}
		if diastolic != nil {
			reading.Diastolic = *diastolic
		}
		if spo2 != nil {
			reading.SpO2 = *spo2
		}
		if pulseRate != nil {
			reading.PulseRate = *pulseRate
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reading rows: %w", err)
	}

	return readings, nil
}

// SaveSchedulePreferences upserts the reminder configuration for a subject
func (r *VitalsRepository) SaveSchedulePreferences(ctx context.Context, subjectID string, prefs model.SchedulePreferences) error {
	vitalTypes := make([]string, len(prefs.VitalTypes))
	for i, t := range prefs.VitalTypes {
		vitalTypes[i] = string(t)
	}

	query := `
		INSERT INTO reminder_schedules (
			subject_id, enabled, vital_types, frequency, times,
			channel_app, channel_email, channel_sms, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (subject_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			vital_types = EXCLUDED.vital_types,
			frequency = EXCLUDED.frequency,
			times = EXCLUDED.times,
			channel_app = EXCLUDED.channel_app,
			channel_email = EXCLUDED.channel_email,
			channel_sms = EXCLUDED.channel_sms,
			updated_at = NOW()
	`

	_, err := r.db.Exec(ctx, query,
		subjectID,
		prefs.Enabled,
		vitalTypes,
		string(prefs.Frequency),
		prefs.Times,
		prefs.NotificationChannels.App,
		prefs.NotificationChannels.Email,
		prefs.NotificationChannels.SMS,
	)
	if err != nil {
		r.logger.Error("failed to save schedule preferences",
			zap.Error(err),
			zap.String("subject_id", subjectID),
		)
		return fmt.Errorf("failed to save schedule preferences: %w", err)
	}

	return nil
}

func insertReading(ctx context.Context, tx pgx.Tx, reading model.VitalReading, submissionID string) error {
	query := `
		INSERT INTO vital_readings (
			id, submission_id, subject_id, vital_type, value,
			systolic, diastolic, spo2, pulse_rate, measured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var value, spo2 *float64
	var systolic, diastolic, pulseRate *int
	switch reading.Type {
	case model.VitalTypeBloodPressure:
		systolic, diastolic = &reading.Systolic, &reading.Diastolic
	case model.VitalTypeOxygenSaturation:
		spo2, pulseRate = &reading.SpO2, &reading.PulseRate
	default:
		value = &reading.Value
	}

	_, err := tx.Exec(ctx, query,
		uuid.New().String(),
		submissionID,
		reading.Subject.SubjectID,
		string(reading.Type),
		value,
		systolic,
		diastolic,
		spo2,
		pulseRate,
		reading.MeasuredAt,
	)
	return err
}

// submissionReadings expands the draft's filled slots into per-type readings
func submissionReadings(draft model.VitalSubmissionDraft, submissionID string, at time.Time) []model.VitalReading {
	subject := model.SubjectContext{SubjectID: draft.SubjectID}
	var readings []model.VitalReading
	if draft.BloodPressure != nil {
		readings = append(readings, model.VitalReading{
			Type:       model.VitalTypeBloodPressure,
			Systolic:   draft.BloodPressure.Systolic,
			Diastolic:  draft.BloodPressure.Diastolic,
			MeasuredAt: at,
			Subject:    subject,
		})
	}
	if draft.Temperature != nil {
		readings = append(readings, model.VitalReading{
			Type:       model.VitalTypeTemperature,
			Value:      *draft.Temperature,
			MeasuredAt: at,
			Subject:    subject,
		})
	}
	if draft.HeartRate != nil {
		readings = append(readings, model.VitalReading{
			Type:       model.VitalTypeHeartRate,
			Value:      float64(*draft.HeartRate),
			MeasuredAt: at,
			Subject:    subject,
		})
	}
	if draft.Oxygen != nil {
		readings = append(readings, model.VitalReading{
			Type:       model.VitalTypeOxygenSaturation,
			SpO2:       draft.Oxygen.SpO2,
			PulseRate:  draft.Oxygen.PulseRate,
			MeasuredAt: at,
			Subject:    subject,
		})
	}
	if draft.BloodSugar != nil {
		readings = append(readings, model.VitalReading{
			Type:       model.VitalTypeBloodSugar,
			Value:      *draft.BloodSugar,
			MeasuredAt: at,
			Subject:    subject,
		})
	}
	return readings
}
