package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrDictationCanceled reports that capture was stopped before completion
var ErrDictationCanceled = errors.New("dictation canceled")

// dictationChunkSize is the audio segment size handed to the transcriber
const dictationChunkSize = 64 * 1024

// SpeechTranscriber converts one audio segment to text. Implemented by the
// Azure speech client.
type SpeechTranscriber interface {
	StreamAudioToText(ctx context.Context, audio io.Reader) (string, error)
}

// AudioArchiver stores the raw captured audio after a session finishes.
// Implemented by the blob storage client; nil disables archival.
type AudioArchiver interface {
	UploadAudio(ctx context.Context, name string, audio io.Reader) (string, error)
}

// AudioSource grants access to the microphone stream. Acquire performs the
// explicit permission step; the returned reader is the live audio stream and
// closing it releases the underlying audio resource.
type AudioSource interface {
	Acquire(ctx context.Context) (io.ReadCloser, error)
}

// DictationEventType classifies events emitted during a capture session
type DictationEventType string

const (
	DictationCountdown  DictationEventType = "countdown"
	DictationStarted    DictationEventType = "started"
	DictationTranscript DictationEventType = "transcript"
	DictationStopped    DictationEventType = "stopped"
	DictationFailed     DictationEventType = "failed"
)

// DictationEvent is one incremental event from a capture session
type DictationEvent struct {
	Type    DictationEventType `json:"type"`
	Seconds int                `json:"seconds,omitempty"` // countdown remaining
	Text    string             `json:"text,omitempty"`    // transcript increment
	Error   string             `json:"error,omitempty"`
}

// DictationService runs voice-to-text note capture: an explicit permission
// acquisition, a short user-visible countdown, then a cancelable capture
// loop that yields incremental transcript events.
type DictationService struct {
	transcriber SpeechTranscriber
	archiver    AudioArchiver
	countdown   time.Duration
	logger      *zap.Logger
}

// NewDictationService creates a DictationService. countdown is the delay
// between permission acquisition and the start of capture.
func NewDictationService(transcriber SpeechTranscriber, archiver AudioArchiver, countdown time.Duration, logger *zap.Logger) *DictationService {
	return &DictationService{
		transcriber: transcriber,
		archiver:    archiver,
		countdown:   countdown,
		logger:      logger,
	}
}

// DictationTask is a running capture session. Events delivers incremental
// progress; Cancel stops capture at any point, before or during, and fully
// releases the audio source.
type DictationTask struct {
	events chan DictationEvent
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	transcript strings.Builder
	audioPath  string
	err        error
}

// Events returns the event stream. The channel closes when the task ends.
func (t *DictationTask) Events() <-chan DictationEvent {
	return t.events
}

// Cancel stops the capture session
func (t *DictationTask) Cancel() {
	t.cancel()
}

// Wait blocks until the task has fully stopped and the audio resource is released
func (t *DictationTask) Wait() {
	<-t.done
}

// Transcript returns the text captured so far
func (t *DictationTask) Transcript() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transcript.String()
}

// AudioPath returns the archive location of the captured audio, if any
func (t *DictationTask) AudioPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audioPath
}

// Err returns the terminal error, nil on clean completion, and
// ErrDictationCanceled when the user canceled.
func (t *DictationTask) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Start acquires the audio source and launches the capture loop. The task
// runs until the source is exhausted or Cancel is called.
func (s *DictationService) Start(ctx context.Context, sessionID string, source AudioSource) (*DictationTask, error) {
	taskCtx, cancel := context.WithCancel(ctx)

	// Permission acquisition happens before the task is handed back so a
	// denied microphone surfaces as an immediate error, not an event.
	stream, err := source.Acquire(taskCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to acquire audio source: %w", err)
	}

	task := &DictationTask{
		events: make(chan DictationEvent, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.logger.Info("dictation capture starting",
		zap.String("session_id", sessionID),
		zap.Duration("countdown", s.countdown),
	)

	go s.run(taskCtx, sessionID, stream, task)

	return task, nil
}

func (s *DictationService) run(ctx context.Context, sessionID string, stream io.ReadCloser, task *DictationTask) {
	defer close(task.done)
	defer close(task.events)
	// Closing the stream releases the microphone regardless of how the
	// capture loop ends.
	defer stream.Close()

	if !s.runCountdown(ctx, task) {
		task.setErr(ErrDictationCanceled)
		task.emit(ctx, DictationEvent{Type: DictationStopped})
		return
	}

	task.emit(ctx, DictationEvent{Type: DictationStarted})

	var captured bytes.Buffer
	chunk := make([]byte, dictationChunkSize)
	for {
		if ctx.Err() != nil {
			task.setErr(ErrDictationCanceled)
			break
		}

		n, readErr := io.ReadFull(stream, chunk)
		if n > 0 {
			captured.Write(chunk[:n])
			text, err := s.transcriber.StreamAudioToText(ctx, bytes.NewReader(chunk[:n]))
			if err != nil {
				if ctx.Err() != nil {
					task.setErr(ErrDictationCanceled)
					break
				}
				s.logger.Error("dictation transcription failed",
					zap.Error(err),
					zap.String("session_id", sessionID),
				)
				task.setErr(err)
				task.emit(ctx, DictationEvent{Type: DictationFailed, Error: err.Error()})
				break
			}
			if text != "" {
				task.append(text)
				task.emit(ctx, DictationEvent{Type: DictationTranscript, Text: text})
			}
		}

		if readErr != nil {
			if readErr != io.EOF && readErr != io.ErrUnexpectedEOF && ctx.Err() == nil {
				s.logger.Error("dictation audio read failed",
					zap.Error(readErr),
					zap.String("session_id", sessionID),
				)
				task.setErr(readErr)
				task.emit(ctx, DictationEvent{Type: DictationFailed, Error: readErr.Error()})
			}
			break
		}
	}

	s.archive(sessionID, &captured, task)

	task.emit(ctx, DictationEvent{Type: DictationStopped})
	s.logger.Info("dictation capture finished",
		zap.String("session_id", sessionID),
		zap.Int("transcript_length", len(task.Transcript())),
		zap.Int("audio_bytes", captured.Len()),
	)
}

// runCountdown emits one event per remaining second before capture begins.
// Returns false if the task was canceled during the countdown.
func (s *DictationService) runCountdown(ctx context.Context, task *DictationTask) bool {
	remaining := int(s.countdown / time.Second)
	if remaining <= 0 {
		return ctx.Err() == nil
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for remaining > 0 {
		task.emit(ctx, DictationEvent{Type: DictationCountdown, Seconds: remaining})
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			remaining--
		}
	}
	return true
}

// archive uploads the captured audio, best effort: archival failure never
// fails the dictation itself.
func (s *DictationService) archive(sessionID string, captured *bytes.Buffer, task *DictationTask) {
	if s.archiver == nil || captured.Len() == 0 {
		return
	}

	archiveCtx, cancelArchive := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelArchive()

	name := fmt.Sprintf("dictation/%s/%d.wav", sessionID, time.Now().UnixNano())
	path, err := s.archiver.UploadAudio(archiveCtx, name, bytes.NewReader(captured.Bytes()))
	if err != nil {
		s.logger.Warn("failed to archive dictation audio",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
		return
	}

	task.mu.Lock()
	task.audioPath = path
	task.mu.Unlock()
}

func (t *DictationTask) append(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.transcript.Len() > 0 {
		t.transcript.WriteString(" ")
	}
	t.transcript.WriteString(text)
}

func (t *DictationTask) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

// emit delivers an event without blocking a canceled task
func (t *DictationTask) emit(ctx context.Context, ev DictationEvent) {
	select {
	case t.events <- ev:
	case <-ctx.Done():
		select {
		case t.events <- ev:
		default:
		}
	}
}
