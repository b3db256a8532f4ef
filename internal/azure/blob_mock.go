package azure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// MockBlobStorageClient is an in-memory implementation of BlobStorage for testing
type MockBlobStorageClient struct {
	Storage map[string][]byte
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMockBlobStorageClient creates a new mock blob storage client
func NewMockBlobStorageClient(logger *zap.Logger) *MockBlobStorageClient {
	return &MockBlobStorageClient{
		Storage: make(map[string][]byte),
		logger:  logger,
	}
}

// UploadAudio stores a dictation recording in memory
func (c *MockBlobStorageClient) UploadAudio(ctx context.Context, filename string, audioStream io.Reader) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	blobName := fmt.Sprintf("dictation/%s", filename)

	audioData, err := io.ReadAll(audioStream)
	if err != nil {
		return "", fmt.Errorf("failed to read audio stream: %w", err)
	}

	c.Storage[blobName] = audioData

	if c.logger != nil {
		c.logger.Info("mock: audio uploaded",
			zap.String("blob_name", blobName),
			zap.Int("size_bytes", len(audioData)),
		)
	}

	return blobName, nil
}

// DownloadAudio retrieves a dictation recording from memory
func (c *MockBlobStorageClient) DownloadAudio(ctx context.Context, blobName string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, exists := c.Storage[blobName]
	if !exists {
		return nil, fmt.Errorf("blob not found: %s", blobName)
	}

	return bytes.Clone(data), nil
}

// Clear removes all data from in-memory storage
func (c *MockBlobStorageClient) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Storage = make(map[string][]byte)
}

var _ BlobStorage = (*MockBlobStorageClient)(nil)
