package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/trimtrack/vitals-backend/internal/security"
	"github.com/trimtrack/vitals-backend/pkg/model"
	"go.uber.org/zap"
)

const draftKeyPrefix = "vitals:draft:"

// DraftRepository is durable scratch storage for in-progress wizard sessions,
// backed by redis and keyed per subject so concurrent sessions for different
// family members never collide. Note fields are encrypted at rest when an
// encryptor is configured.
type DraftRepository struct {
	client    *redis.Client
	encryptor *security.Encryptor
	ttl       time.Duration
	logger    *zap.Logger
}

// NewDraftRepository creates a DraftRepository. encryptor may be nil to
// store notes in plaintext; ttl bounds how long an abandoned draft survives.
func NewDraftRepository(client *redis.Client, encryptor *security.Encryptor, ttl time.Duration, logger *zap.Logger) *DraftRepository {
	return &DraftRepository{
		client:    client,
		encryptor: encryptor,
		ttl:       ttl,
		logger:    logger,
	}
}

func draftKey(subjectID string) string {
	return draftKeyPrefix + subjectID
}

// Save writes the snapshot for a subject, replacing any previous one
func (r *DraftRepository) Save(ctx context.Context, subjectID string, snap model.DraftSnapshot) error {
	if r.encryptor != nil {
		var err error
		if snap.Draft.Notes, err = r.encryptor.Encrypt(snap.Draft.Notes); err != nil {
			return fmt.Errorf("failed to encrypt review notes: %w", err)
		}
		if snap.Draft.MoodNotes, err = r.encryptor.Encrypt(snap.Draft.MoodNotes); err != nil {
			return fmt.Errorf("failed to encrypt mood notes: %w", err)
		}
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal draft snapshot: %w", err)
	}

	if err := r.client.Set(ctx, draftKey(subjectID), payload, r.ttl).Err(); err != nil {
		r.logger.Error("failed to save draft snapshot",
			zap.Error(err),
			zap.String("subject_id", subjectID),
		)
		return fmt.Errorf("failed to save draft snapshot: %w", err)
	}

	r.logger.Debug("draft snapshot saved",
		zap.String("subject_id", subjectID),
		zap.String("step", string(snap.Step)),
	)

	return nil
}

// Load returns the saved snapshot for a subject, or nil when none exists
func (r *DraftRepository) Load(ctx context.Context, subjectID string) (*model.DraftSnapshot, error) {
	payload, err := r.client.Get(ctx, draftKey(subjectID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to load draft snapshot",
			zap.Error(err),
			zap.String("subject_id", subjectID),
		)
		return nil, fmt.Errorf("failed to load draft snapshot: %w", err)
	}

	var snap model.DraftSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft snapshot: %w", err)
	}

	if r.encryptor != nil {
		if snap.Draft.Notes, err = r.encryptor.Decrypt(snap.Draft.Notes); err != nil {
			return nil, fmt.Errorf("failed to decrypt review notes: %w", err)
		}
		if snap.Draft.MoodNotes, err = r.encryptor.Decrypt(snap.Draft.MoodNotes); err != nil {
			return nil, fmt.Errorf("failed to decrypt mood notes: %w", err)
		}
	}

	return &snap, nil
}

// Clear removes the saved snapshot for a subject. Clearing an absent draft
// is not an error.
func (r *DraftRepository) Clear(ctx context.Context, subjectID string) error {
	if err := r.client.Del(ctx, draftKey(subjectID)).Err(); err != nil {
		r.logger.Error("failed to clear draft snapshot",
			zap.Error(err),
			zap.String("subject_id", subjectID),
		)
		return fmt.Errorf("failed to clear draft snapshot: %w", err)
	}
	return nil
}
