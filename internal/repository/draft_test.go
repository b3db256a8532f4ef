package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trimtrack/vitals-backend/internal/security"
	"github.com/trimtrack/vitals-backend/pkg/model"
	"go.uber.org/zap"
)

func setupDraftRepo(t *testing.T, encryptor *security.Encryptor) (*miniredis.Miniredis, *DraftRepository) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	repo := NewDraftRepository(client, encryptor, time.Hour, zap.NewNop())
	return mr, repo
}

func testSnapshot(subjectID string) model.DraftSnapshot {
	temp := 101.2
	return model.DraftSnapshot{
		SessionID: "sess-1",
		SubjectID: subjectID,
		Step:      model.StepHeartRate,
		Draft: model.VitalSubmissionDraft{
			SubjectID:     subjectID,
			BloodPressure: &model.BloodPressureEntry{Systolic: 150, Diastolic: 95},
			Temperature:   &temp,
			Notes:         "Feels dizzy since this morning",
			MoodNotes:     "irritable",
		},
		Results: map[model.VitalType]model.ValidationResult{
			model.VitalTypeBloodPressure: {Severity: model.SeverityWarning},
			model.VitalTypeTemperature:   {Severity: model.SeverityWarning},
		},
		SavedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestDraftRepository_SaveAndLoad(t *testing.T) {
	_, repo := setupDraftRepo(t, nil)
	ctx := context.Background()

	snap := testSnapshot("subject-1")
	require.NoError(t, repo.Save(ctx, "subject-1", snap))

	loaded, err := repo.Load(ctx, "subject-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, snap.SessionID, loaded.SessionID)
	assert.Equal(t, model.StepHeartRate, loaded.Step)
	require.NotNil(t, loaded.Draft.BloodPressure)
	assert.Equal(t, 150, loaded.Draft.BloodPressure.Systolic)
	assert.Equal(t, "Feels dizzy since this morning", loaded.Draft.Notes)
	assert.Equal(t, model.SeverityWarning, loaded.Results[model.VitalTypeBloodPressure].Severity)
}

func TestDraftRepository_LoadMissingIsNil(t *testing.T) {
	_, repo := setupDraftRepo(t, nil)

	loaded, err := repo.Load(context.Background(), "nobody")
	require.NoError(t, err, "an absent draft is not an error")
	assert.Nil(t, loaded)
}

func TestDraftRepository_SaveReplacesPrevious(t *testing.T) {
	_, repo := setupDraftRepo(t, nil)
	ctx := context.Background()

	first := testSnapshot("subject-1")
	require.NoError(t, repo.Save(ctx, "subject-1", first))

	second := testSnapshot("subject-1")
	second.Step = model.StepReview
	require.NoError(t, repo.Save(ctx, "subject-1", second))

	loaded, err := repo.Load(ctx, "subject-1")
	require.NoError(t, err)
	assert.Equal(t, model.StepReview, loaded.Step)
}

func TestDraftRepository_SubjectsDoNotCollide(t *testing.T) {
	_, repo := setupDraftRepo(t, nil)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "subject-1", testSnapshot("subject-1")))
	require.NoError(t, repo.Save(ctx, "subject-2", testSnapshot("subject-2")))
	require.NoError(t, repo.Clear(ctx, "subject-1"))

	gone, err := repo.Load(ctx, "subject-1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repo.Load(ctx, "subject-2")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, "subject-2", kept.SubjectID)
}

func TestDraftRepository_ClearAbsentIsNoError(t *testing.T) {
	_, repo := setupDraftRepo(t, nil)
	assert.NoError(t, repo.Clear(context.Background(), "nobody"))
}

func TestDraftRepository_DraftExpires(t *testing.T) {
	mr, repo := setupDraftRepo(t, nil)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "subject-1", testSnapshot("subject-1")))

	mr.FastForward(2 * time.Hour)

	loaded, err := repo.Load(ctx, "subject-1")
	require.NoError(t, err)
	assert.Nil(t, loaded, "abandoned drafts expire with the TTL")
}

func TestDraftRepository_NotesEncryptedAtRest(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	encryptor, err := security.NewEncryptor(key)
	require.NoError(t, err)

	mr, repo := setupDraftRepo(t, encryptor)
	ctx := context.Background()

	snap := testSnapshot("subject-1")
	require.NoError(t, repo.Save(ctx, "subject-1", snap))

	// The raw stored payload must not contain the note text
	raw, err := mr.Get("vitals:draft:subject-1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "Feels dizzy since this morning")
	assert.NotContains(t, raw, "irritable")

	var stored model.DraftSnapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.NotEqual(t, snap.Draft.Notes, stored.Draft.Notes)

	// Load transparently decrypts
	loaded, err := repo.Load(ctx, "subject-1")
	require.NoError(t, err)
	assert.Equal(t, "Feels dizzy since this morning", loaded.Draft.Notes)
	assert.Equal(t, "irritable", loaded.Draft.MoodNotes)
}

func TestDraftRepository_LoadWithWrongKeyFails(t *testing.T) {
	encryptorA, err := security.NewEncryptor([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	mr, repo := setupDraftRepo(t, encryptorA)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "subject-1", testSnapshot("subject-1")))

	encryptorB, err := security.NewEncryptor([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	other := NewDraftRepository(client, encryptorB, time.Hour, zap.NewNop())

	_, err = other.Load(ctx, "subject-1")
	assert.Error(t, err)
}
