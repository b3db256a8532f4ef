package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trimtrack/vitals-backend/pkg/model"
	"go.uber.org/zap"
)

// AlertRepository persists critical alerts and fans them out to the
// recipients configured for a subject. Delivery is recorded per recipient;
// the outbound channels are drained by a separate notification worker.
type AlertRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *pgxpool.Pool, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

// alertRecipient is one configured caregiver/guardian contact
type alertRecipient struct {
	ID      string
	Channel string
}

// Dispatch stores the alert and queues one notification per configured
// recipient, returning delivery counts
func (r *AlertRepository) Dispatch(ctx context.Context, alert model.CriticalAlert) (model.AlertDispatchResult, error) {
	recipients, err := r.recipients(ctx, alert.SubjectID)
	if err != nil {
		return model.AlertDispatchResult{}, err
	}

	readingsJSON, err := json.Marshal(alert.Readings)
	if err != nil {
		return model.AlertDispatchResult{}, fmt.Errorf("failed to marshal alert readings: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.AlertDispatchResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO critical_alerts (
			id, subject_id, sender, triggering_type, triggering_value,
			guidance, requires_emergency_services, readings, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, query,
		alert.ID,
		alert.SubjectID,
		alert.Sender,
		string(alert.TriggeringType),
		alert.TriggeringValue,
		alert.Guidance,
		alert.RequiresEmergencyServices,
		readingsJSON,
		alert.CreatedAt,
	)
	if err != nil {
		r.logger.Error("failed to save critical alert",
			zap.Error(err),
			zap.String("alert_id", alert.ID),
		)
		return model.AlertDispatchResult{}, fmt.Errorf("failed to save critical alert: %w", err)
	}

	result := model.AlertDispatchResult{
		AlertID:    alert.ID,
		PerChannel: make(map[string]int),
	}
	for _, recipient := range recipients {
		notifQuery := `
			INSERT INTO alert_notifications (id, alert_id, recipient_id, channel, status, queued_at)
			VALUES ($1, $2, $3, $4, 'queued', $5)
		`
		_, err = tx.Exec(ctx, notifQuery,
			uuid.New().String(),
			alert.ID,
			recipient.ID,
			recipient.Channel,
			time.Now(),
		)
		if err != nil {
			r.logger.Error("failed to queue alert notification",
				zap.Error(err),
				zap.String("alert_id", alert.ID),
				zap.String("recipient_id", recipient.ID),
			)
			return model.AlertDispatchResult{}, fmt.Errorf("failed to queue alert notification: %w", err)
		}
		result.NotificationsSent++
		result.PerChannel[recipient.Channel]++
	}

	if err := tx.Commit(ctx); err != nil {
		return model.AlertDispatchResult{}, fmt.Errorf("failed to commit critical alert: %w", err)
	}

	return result, nil
}

// recipients loads the active caregiver/guardian contacts for a subject
func (r *AlertRepository) recipients(ctx context.Context, subjectID string) ([]alertRecipient, error) {
	query := `
		SELECT id, channel
		FROM alert_recipients
		WHERE subject_id = $1 AND active = TRUE
	`

	rows, err := r.db.Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert recipients: %w", err)
	}
	defer rows.Close()

	var recipients []alertRecipient
	for rows.Next() {
		var recipient alertRecipient
		if err := rows.Scan(&recipient.ID, &recipient.Channel); err != nil {
			return nil, fmt.Errorf("failed to scan recipient row: %w", err)
		}
		recipients = append(recipients, recipient)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recipient rows: %w", err)
	}

	return recipients, nil
}
