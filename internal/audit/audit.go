package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// OperationType represents the type of operation performed
type OperationType string

const (
	OperationCreate   OperationType = "CREATE"
	OperationUpdate   OperationType = "UPDATE"
	OperationDelete   OperationType = "DELETE"
	OperationEscalate OperationType = "ESCALATE"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceVitalSubmission ResourceType = "vital_submission"
	ResourceCriticalAlert   ResourceType = "critical_alert"
	ResourceSchedule        ResourceType = "reminder_schedule"
	ResourceDraft           ResourceType = "vital_draft"
)

// Entry represents one audit trail record
type Entry struct {
	ID             string
	SubjectID      string
	OperationType  OperationType
	ResourceType   ResourceType
	ResourceID     string
	Timestamp      time.Time
	IPAddress      string
	UserAgent      string
	AdditionalData map[string]interface{}
}

// Logger writes the audit trail for submissions and escalations
type Logger struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewLogger creates a new audit logger
func NewLogger(db *pgxpool.Pool, logger *zap.Logger) *Logger {
	return &Logger{
		db:     db,
		logger: logger,
	}
}

// Log creates an audit trail entry
func (l *Logger) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.logger.Info("audit entry",
		zap.String("subject_id", entry.SubjectID),
		zap.String("operation", string(entry.OperationType)),
		zap.String("resource_type", string(entry.ResourceType)),
		zap.String("resource_id", entry.ResourceID),
		zap.Time("timestamp", entry.Timestamp),
	)

	var additional []byte
	if entry.AdditionalData != nil {
		var err error
		additional, err = json.Marshal(entry.AdditionalData)
		if err != nil {
			l.logger.Warn("failed to marshal audit additional data", zap.Error(err))
			additional = nil
		}
	}

	query := `
		INSERT INTO audit_trail (
			id, subject_id, operation_type, resource_type, resource_id,
			occurred_at, ip_address, user_agent, additional_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := l.db.Exec(ctx, query,
		entry.ID,
		entry.SubjectID,
		string(entry.OperationType),
		string(entry.ResourceType),
		entry.ResourceID,
		entry.Timestamp,
		entry.IPAddress,
		entry.UserAgent,
		additional,
	)
	if err != nil {
		l.logger.Error("failed to store audit entry",
			zap.Error(err),
			zap.String("subject_id", entry.SubjectID),
			zap.String("resource_type", string(entry.ResourceType)),
		)
		return fmt.Errorf("failed to store audit entry: %w", err)
	}

	return nil
}
