package service

import (
	"bytes"
	"context"

	"github.com/minio/minio-go/v7"
)

// Archiver keeps a durable copy of uploaded files. Archiving is best effort
// and never blocks ingestion results.
type Archiver interface {
	Archive(ctx context.Context, objectName string, data []byte) error
}

// MinioArchiver stores uploads in an object-storage bucket.
type MinioArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinioArchiver creates an Archiver writing into bucket.
func NewMinioArchiver(client *minio.Client, bucket string) *MinioArchiver {
	return &MinioArchiver{client: client, bucket: bucket}
}

// Archive writes the file under objectName.
func (a *MinioArchiver) Archive(ctx context.Context, objectName string, data []byte) error {
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/pdf"})
	return err
}

var _ Archiver = (*MinioArchiver)(nil)
