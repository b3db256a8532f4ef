package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// neuralVoices maps recognition languages to the neural voice used when
// guidance is spoken back to the subject.
var neuralVoices = map[string]string{
	"en-US": "en-US-JennyNeural",
	"en-GB": "en-GB-SoniaNeural",
	"es-ES": "es-ES-ElviraNeural",
}

// SpeechServiceClient wraps the Azure Speech Service REST API for
// speech-to-text dictation and text-to-speech guidance playback
type SpeechServiceClient struct {
	subscriptionKey string
	region          string
	language        string
	sttEndpoint     string
	ttsEndpoint     string // overridable for testing
	httpClient      *http.Client
	logger          *zap.Logger
}

// NewSpeechServiceClient creates a new Azure Speech Service client. The
// language controls both recognition and the synthesis voice.
func NewSpeechServiceClient(subscriptionKey, region, language string, logger *zap.Logger) (*SpeechServiceClient, error) {
	if subscriptionKey == "" || region == "" {
		return nil, fmt.Errorf("subscriptionKey and region are required")
	}
	if language == "" {
		language = "en-US"
	}

	return &SpeechServiceClient{
		subscriptionKey: subscriptionKey,
		region:          region,
		language:        language,
		sttEndpoint:     fmt.Sprintf("https://%s.stt.speech.microsoft.com", region),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}, nil
}

// StreamAudioToText transcribes an audio stream to text. The REST short-form
// recognition endpoint is used rather than the WebSocket protocol; dictation
// audio arrives in bounded note-sized chunks so short-form fits.
func (c *SpeechServiceClient) StreamAudioToText(ctx context.Context, audioStream io.Reader) (string, error) {
	audioData, err := io.ReadAll(audioStream)
	if err != nil {
		return "", fmt.Errorf("failed to read audio stream: %w", err)
	}

	url := fmt.Sprintf("%s/speech/recognition/conversation/cognitiveservices/v1?language=%s", c.sttEndpoint, c.language)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(audioData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("Content-Type", "audio/wav; codecs=audio/pcm; samplerate=16000")
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("speech-to-text request failed", zap.Error(err))
		return "", fmt.Errorf("speech-to-text request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("speech-to-text request failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)),
		)
		return "", fmt.Errorf("speech-to-text request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		RecognitionStatus string `json:"RecognitionStatus"`
		DisplayText       string `json:"DisplayText"`
		Offset            int64  `json:"Offset"`
		Duration          int64  `json:"Duration"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Info("speech-to-text transcription completed",
		zap.String("status", result.RecognitionStatus),
		zap.Duration("processing_time", time.Since(startTime)),
		zap.Int("audio_size_bytes", len(audioData)),
	)

	if result.RecognitionStatus != "Success" {
		return "", fmt.Errorf("recognition failed with status: %s", result.RecognitionStatus)
	}

	return result.DisplayText, nil
}

// SpeakGuidance synthesizes guidance text to MP3 audio so clients can read
// validation messages aloud to the subject
func (c *SpeechServiceClient) SpeakGuidance(ctx context.Context, text string) ([]byte, error) {
	voiceName, ok := neuralVoices[c.language]
	if !ok {
		voiceName = neuralVoices["en-US"]
	}

	ssml := fmt.Sprintf(`<speak version='1.0' xml:lang='%s'>
		<voice xml:lang='%s' name='%s'>
			%s
		</voice>
	</speak>`, c.language, c.language, voiceName, text)

	url := fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", c.region)
	if c.ttsEndpoint != "" {
		url = c.ttsEndpoint + "/cognitiveservices/v1"
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBufferString(ssml))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", "audio-16khz-32kbitrate-mono-mp3")
	req.Header.Set("User-Agent", "Vitals-Backend")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("text-to-speech request failed", zap.Error(err))
		return nil, fmt.Errorf("text-to-speech request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("text-to-speech request failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)),
		)
		return nil, fmt.Errorf("text-to-speech request failed with status %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	c.logger.Info("text-to-speech synthesis completed",
		zap.Int("audio_size_bytes", len(audioData)),
		zap.Duration("processing_time", time.Since(startTime)),
	)

	return audioData, nil
}
