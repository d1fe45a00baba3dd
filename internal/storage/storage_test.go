package storage

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutRemove(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("http://cdn.local")

	data := []byte("webm-bytes")
	require.NoError(t, store.Put(ctx, "recordings/a.webm", bytes.NewReader(data), int64(len(data)), "video/webm"))

	got, ok := store.Object("recordings/a.webm")
	require.True(t, ok)
	assert.Equal(t, data, got)
	assert.Equal(t, "http://cdn.local/recordings/a.webm", store.URL("recordings/a.webm"))

	require.NoError(t, store.Remove(ctx, "recordings/a.webm"))
	assert.ErrorIs(t, store.Remove(ctx, "recordings/a.webm"), ErrNotFound)
}

func TestMemoryStore_FailWith(t *testing.T) {
	store := NewMemoryStore("")
	store.FailWith = ErrAccessDenied

	err := store.Put(context.Background(), "k", bytes.NewReader(nil), 0, "video/webm")
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Equal(t, 1, store.PutCount())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"access denied code", minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}, ErrAccessDenied},
		{"forbidden status", minio.ErrorResponse{Code: "Whatever", StatusCode: 403}, ErrAccessDenied},
		{"too large code", minio.ErrorResponse{Code: "EntityTooLarge", StatusCode: 400}, ErrTooLarge},
		{"missing key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}, ErrNotFound},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}
}

func TestClassify_Unknown(t *testing.T) {
	err := errors.New("boom")
	got := classify(err)
	assert.Equal(t, err, got)
	assert.False(t, errors.Is(got, ErrNetwork))
}
