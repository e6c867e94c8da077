// Package storage publishes finished run archives to a Supabase storage bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	storage_go "github.com/supabase-community/storage-go"

	"spritebatch/internal/config"
	"spritebatch/internal/services"
)

const archiveContentType = "application/zip"

// bucketClient is the subset of the Supabase storage client the publisher uses.
type bucketClient interface {
	UploadFile(bucketID, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
	GetPublicUrl(bucketID, filePath string, urlOptions ...storage_go.UrlOptions) storage_go.SignedUrlResponse
	ListFiles(bucketID, queryPath string, options storage_go.FileSearchOptions) ([]storage_go.FileObject, error)
}

// Publisher uploads run archives.
type Publisher struct {
	client bucketClient
	bucket string
	prefix string
}

// New builds a publisher from config. The URL is the project URL; the
// storage API path is appended here.
func New(cfg config.Publish) *Publisher {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/") + "/storage/v1"
	return &Publisher{
		client: storage_go.NewClient(base, cfg.APIKey, nil),
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
	}
}

// ObjectKey returns the bucket key an archive of runID is stored under.
func (p *Publisher) ObjectKey(runID, archivePath string) string {
	return path.Join(p.prefix, runID, filepath.Base(archivePath))
}

// Publish uploads the archive and returns its public URL. Re-publishing the
// same run overwrites the previous object.
func (p *Publisher) Publish(ctx context.Context, runID, archivePath string) (string, error) {
	if p == nil || p.client == nil {
		return "", services.Wrap(services.ErrConfiguration, "publish", "upload archive", "publisher not configured", nil)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	file, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	key := p.ObjectKey(runID, archivePath)
	contentType := archiveContentType
	upsert := true
	if _, err := p.client.UploadFile(p.bucket, key, file, storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}); err != nil {
		return "", fmt.Errorf("upload %s to bucket %s: %w", key, p.bucket, err)
	}
	return p.client.GetPublicUrl(p.bucket, key).SignedURL, nil
}

// Check verifies the bucket is reachable with the configured key.
func (p *Publisher) Check(ctx context.Context) error {
	if p == nil || p.client == nil {
		return services.Wrap(services.ErrConfiguration, "publish", "check bucket", "publisher not configured", nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.client.ListFiles(p.bucket, "", storage_go.FileSearchOptions{Limit: 1}); err != nil {
		return fmt.Errorf("list bucket %s: %w", p.bucket, err)
	}
	return nil
}
