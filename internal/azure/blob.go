package azure

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"go.uber.org/zap"
)

// BlobStorageClient wraps the Azure Blob Storage SDK for dictation audio
// archival
type BlobStorageClient struct {
	client        *azblob.Client
	containerName string
	logger        *zap.Logger
}

// NewBlobStorageClient creates a new Azure Blob Storage client
func NewBlobStorageClient(accountName, accountKey, containerName string, logger *zap.Logger) (*BlobStorageClient, error) {
	if accountName == "" || accountKey == "" || containerName == "" {
		return nil, fmt.Errorf("accountName, accountKey, and containerName are required")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &BlobStorageClient{
		client:        client,
		containerName: containerName,
		logger:        logger,
	}, nil
}

// UploadAudio archives a dictation audio stream and returns the blob name
func (c *BlobStorageClient) UploadAudio(ctx context.Context, filename string, audioStream io.Reader) (string, error) {
	blobName := fmt.Sprintf("dictation/%s", filename)

	blobClient := c.client.ServiceClient().NewContainerClient(c.containerName).NewBlockBlobClient(blobName)

	audioData, err := io.ReadAll(audioStream)
	if err != nil {
		c.logger.Error("failed to read audio stream",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to read audio stream: %w", err)
	}

	_, err = blobClient.UploadBuffer(ctx, audioData, &azblob.UploadBufferOptions{
		Metadata: map[string]*string{
			"contenttype": toPtr("audio/wav"),
		},
	})
	if err != nil {
		c.logger.Error("failed to upload audio",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to upload audio: %w", err)
	}

	c.logger.Info("audio uploaded",
		zap.String("blob_name", blobName),
		zap.Int("size_bytes", len(audioData)),
	)

	return blobName, nil
}

// DownloadAudio retrieves an archived dictation recording
func (c *BlobStorageClient) DownloadAudio(ctx context.Context, blobName string) ([]byte, error) {
	blobClient := c.client.ServiceClient().NewContainerClient(c.containerName).NewBlockBlobClient(blobName)

	downloadResponse, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		c.logger.Error("failed to download audio",
			zap.String("blob_name", blobName),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to download audio: %w", err)
	}
	defer downloadResponse.Body.Close()

	data, err := io.ReadAll(downloadResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	c.logger.Info("audio downloaded",
		zap.String("blob_name", blobName),
		zap.Int("size_bytes", len(data)),
	)

	return data, nil
}

// toPtr is a helper function to convert a value to a pointer
func toPtr(s string) *string {
	return &s
}
