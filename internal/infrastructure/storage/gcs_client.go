package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// AttachmentStore uploads message attachments and hands back a retrievable
// URL. The messaging service never reads attachments back; the URL in the
// message record is the only reference.
type AttachmentStore struct {
	client     *storage.Client
	bucketName string
}

func NewAttachmentStore(ctx context.Context, bucketName string, opts ...option.ClientOption) (*AttachmentStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &AttachmentStore{
		client:     client,
		bucketName: bucketName,
	}, nil
}

func (s *AttachmentStore) Upload(ctx context.Context, file io.Reader, contentType string) (string, error) {
	filename := fmt.Sprintf("attachments/%s-%s%s",
		uuid.New().String(), time.Now().Format("20060102150405"), extensionFor(contentType))

	obj := s.client.Bucket(s.bucketName).Object(filename)
	wc := obj.NewWriter(ctx)
	wc.ContentType = contentType
	wc.CacheControl = "public, max-age=86400"

	if _, err := io.Copy(wc, file); err != nil {
		return "", fmt.Errorf("failed to copy attachment to GCS: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	if err := obj.ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		return "", fmt.Errorf("failed to set ACL: %w", err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucketName, filename), nil
}

func (s *AttachmentStore) Close() error {
	return s.client.Close()
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}
