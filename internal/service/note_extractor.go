package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/trimtrack/vitals-backend/internal/azure"
	"go.uber.org/zap"
)

// NoteInsights is the structured signal extracted from free-text caregiver notes
type NoteInsights struct {
	MoodHint string   `json:"mood_hint"` // positive, neutral, negative
	Symptoms []string `json:"symptoms"`
	Summary  string   `json:"summary"`
}

// NoteExtractor derives a normalized mood signal and symptom list from
// dictated or typed notes. Enrichment only: extraction failure never blocks
// a submission and the raw text is always kept.
type NoteExtractor struct {
	aiClient *azure.OpenAIClient
	logger   *zap.Logger
}

// NewNoteExtractor creates a NoteExtractor
func NewNoteExtractor(aiClient *azure.OpenAIClient, logger *zap.Logger) *NoteExtractor {
	return &NoteExtractor{
		aiClient: aiClient,
		logger:   logger,
	}
}

// Extract analyzes the combined session notes
func (ne *NoteExtractor) Extract(ctx context.Context, notes string) (*NoteInsights, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, fmt.Errorf("no notes to analyze")
	}

	ne.logger.Info("extracting insights from session notes",
		zap.Int("notes_length", len(notes)),
	)

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(ne.buildPrompt(notes)),
		openai.UserMessage("Extract the structured signal from the notes above and return it as JSON."),
	}

	response, err := ne.aiClient.Complete(ctx, messages)
	if err != nil {
		ne.logger.Error("note extraction failed", zap.Error(err))
		return nil, fmt.Errorf("note extraction failed: %w", err)
	}

	insights, err := ne.parseResponse(response)
	if err != nil {
		ne.logger.Error("failed to parse extraction response",
			zap.Error(err),
			zap.String("response", response),
		)
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}

	ne.logger.Info("note extraction completed",
		zap.String("mood_hint", insights.MoodHint),
		zap.Int("symptoms_count", len(insights.Symptoms)),
	)

	return insights, nil
}

func (ne *NoteExtractor) buildPrompt(notes string) string {
	return fmt.Sprintf(`You are a clinical note triage assistant. A caregiver recorded the following free-text notes while logging vital signs for a family member.

Notes:
%s

Extract the following and return it as valid JSON:
{
  "mood_hint": "positive/neutral/negative",
  "symptoms": ["list of symptoms mentioned"],
  "summary": "one-sentence summary for the care team"
}

Rules:
- mood_hint reflects the overall tone of the notes
- symptoms lists only concrete physical or mental symptoms actually mentioned
- If nothing relevant is mentioned, use an empty array and an empty summary
- Return ONLY valid JSON, no additional text

Return the JSON now:`, notes)
}

func (ne *NoteExtractor) parseResponse(response string) (*NoteInsights, error) {
	// The model sometimes wraps JSON in markdown fences.
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var insights NoteInsights
	if err := json.Unmarshal([]byte(response), &insights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	insights.MoodHint = strings.ToLower(strings.TrimSpace(insights.MoodHint))
	if insights.MoodHint != "positive" && insights.MoodHint != "neutral" && insights.MoodHint != "negative" {
		ne.logger.Warn("invalid mood hint, defaulting to neutral", zap.String("mood_hint", insights.MoodHint))
		insights.MoodHint = "neutral"
	}
	if insights.Symptoms == nil {
		insights.Symptoms = []string{}
	}

	return &insights, nil
}
