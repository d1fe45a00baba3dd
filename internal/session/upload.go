package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/assessment-session-service/internal/storage"
)

const DefaultMaxUploadBytes int64 = 100 << 20

type UploadResult struct {
	Key string `json:"storage_key"`
	URL string `json:"url"`
}

// Uploader moves finished recordings into object storage. It never retries;
// the caller decides whether to offer the action again.
type Uploader struct {
	store    storage.ObjectStore
	clock    Clock
	maxBytes int64
	metrics  Metrics
}

func NewUploader(store storage.ObjectStore, clock Clock, maxBytes int64, metrics Metrics) *Uploader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Uploader{store: store, clock: clock, maxBytes: maxBytes, metrics: metrics}
}

// MaxBytes is the largest recording Upload accepts.
func (u *Uploader) MaxBytes() int64 {
	return u.maxBytes
}

// RecordingKey is recordings/{owner}/{attempt}/{question}/{unix-millis}.webm.
func RecordingKey(ownerID string, attemptID, questionID uint, millis int64) string {
	return fmt.Sprintf("recordings/%s/%d/%d/%d.webm", ownerID, attemptID, questionID, millis)
}

func (u *Uploader) Upload(ctx context.Context, artifact *Artifact, ownerID string, attemptID, questionID uint) (*UploadResult, error) {
	if artifact == nil {
		return nil, ErrNoArtifact
	}
	if artifact.Size > u.maxBytes {
		u.metrics.RecordingUploaded(string(UploadTooLarge))
		return nil, &UploadError{
			Kind: UploadTooLarge,
			Err:  fmt.Errorf("%d bytes exceeds the %d byte limit", artifact.Size, u.maxBytes),
		}
	}

	key := RecordingKey(ownerID, attemptID, questionID, u.clock.Now().UnixMilli())
	err := u.store.Put(ctx, key, bytes.NewReader(artifact.Data), artifact.Size, artifact.MimeType)
	if err != nil {
		uerr := &UploadError{Kind: uploadKind(ctx, err), Err: err}
		u.metrics.RecordingUploaded(string(uerr.Kind))
		return nil, uerr
	}

	u.metrics.RecordingUploaded("ok")
	return &UploadResult{Key: key, URL: u.store.URL(key)}, nil
}

func uploadKind(ctx context.Context, err error) UploadErrorKind {
	switch {
	case errors.Is(err, storage.ErrAccessDenied):
		return UploadPermissionDenied
	case errors.Is(err, storage.ErrTooLarge):
		return UploadTooLarge
	case errors.Is(err, storage.ErrNetwork),
		errors.Is(err, context.DeadlineExceeded),
		ctx.Err() != nil:
		return UploadNetworkError
	default:
		return UploadUnknown
	}
}

// PublicReference returns the playback URL for a stored recording.
func (u *Uploader) PublicReference(key string) string {
	return u.store.URL(key)
}

// Remove deletes a stored recording, used when a candidate replaces one.
func (u *Uploader) Remove(ctx context.Context, key string) error {
	if err := u.store.Remove(ctx, key); err != nil {
		return &UploadError{Kind: uploadKind(ctx, err), Err: err}
	}
	return nil
}
