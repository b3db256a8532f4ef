package azure

import (
	"context"
	"io"
)

// BlobStorage defines the interface for dictation audio archival.
// This interface allows for easier testing with mock implementations.
type BlobStorage interface {
	UploadAudio(ctx context.Context, filename string, audioStream io.Reader) (string, error)
	DownloadAudio(ctx context.Context, blobName string) ([]byte, error)
}

// Ensure BlobStorageClient implements BlobStorage interface
var _ BlobStorage = (*BlobStorageClient)(nil)
