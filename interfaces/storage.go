package interfaces

import "context"

// StorageService is the object-storage contract for attachment payload
// offload (R2/S3).
type StorageService interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
