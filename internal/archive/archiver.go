// Package archive writes the full call history (transcripts, function calls,
// summary, metrics) to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voicedesk_backend/internal/calls/activity"
	"voicedesk_backend/internal/calls/domain"
	"voicedesk_backend/platform/apperr"
	"voicedesk_backend/platform/config"
	"voicedesk_backend/platform/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOArchiver implements the Archiver activity using MinIO.
type MinIOArchiver struct {
	client *minio.Client
	bucket string
	log    *logger.Logger
}

// archiveDocument is the object written per call.
type archiveDocument struct {
	Call          domain.CallContext         `json:"call"`
	Transcripts   []domain.TranscriptEvent   `json:"transcripts"`
	FunctionCalls []domain.FunctionCallEvent `json:"functionCalls,omitempty"`
	Summary       string                     `json:"summary,omitempty"`
	Metrics       domain.CallMetrics         `json:"metrics"`
	ArchivedAt    time.Time                  `json:"archivedAt"`
}

// NewMinIOArchiver creates the archiver, or nil when archival is disabled.
func NewMinIOArchiver(cfg config.ArchiveConfig, log *logger.Logger) (*MinIOArchiver, error) {
	if !cfg.IsArchiveEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOArchiver{
		client: client,
		bucket: cfg.GetMinioBucketCallArchives(),
		log:    log,
	}, nil
}

// EnsureBucketExists creates the archive bucket if it doesn't exist.
func (a *MinIOArchiver) EnsureBucketExists(ctx context.Context) error {
	if a == nil {
		return nil
	}

	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
		}
	}
	return nil
}

// ArchiveCall writes one call's history as a JSON object keyed by tenant and
// call ID. Overwrites are harmless; the document is deterministic per call.
func (a *MinIOArchiver) ArchiveCall(ctx context.Context, req activity.ArchiveRequest) error {
	if a == nil {
		return nil
	}

	doc := archiveDocument{
		Call:          req.Call,
		Transcripts:   req.Transcripts,
		FunctionCalls: req.FunctionCalls,
		Summary:       req.Summary,
		Metrics:       req.Metrics,
		ArchivedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to encode call archive", err)
	}

	key := fmt.Sprintf("%s/%s/%s.json",
		req.Call.TenantID, req.Call.StartedAt.UTC().Format("2006/01/02"), req.Call.CallID)

	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "failed to store call archive", err)
	}

	a.log.Info("call archived", "call_id", req.Call.CallID.String(), "key", key)
	return nil
}

var _ activity.Archiver = (*MinIOArchiver)(nil)
