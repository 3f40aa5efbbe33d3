package storage

import (
	"context"
	"errors"
	"net/url"
	"time"

	invoicingapp "github.com/kost/backend/internal/application/invoicing"
)

var _ invoicingapp.ProofStorage = (*StubObjectStorage)(nil)

// StubObjectStorage hands out fake presigned URLs for local development
// when no object store is configured.
type StubObjectStorage struct {
	BaseURL string
	now     func() time.Time
}

// NewStubObjectStorage creates a stub rooted at baseURL
func NewStubObjectStorage(baseURL string) *StubObjectStorage {
	if baseURL == "" {
		baseURL = "http://localhost:8080/_proofs"
	}
	return &StubObjectStorage{BaseURL: baseURL, now: time.Now}
}

// GenerateUploadURL returns a fake upload URL
func (s *StubObjectStorage) GenerateUploadURL(_ context.Context, storageKey, _ string, expiresIn time.Duration) (string, time.Time, error) {
	return s.url("upload", storageKey, expiresIn)
}

// GenerateDownloadURL returns a fake download URL
func (s *StubObjectStorage) GenerateDownloadURL(_ context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error) {
	return s.url("download", storageKey, expiresIn)
}

func (s *StubObjectStorage) url(action, storageKey string, expiresIn time.Duration) (string, time.Time, error) {
	if storageKey == "" {
		return "", time.Time{}, errors.New("storage key is required")
	}
	expiresAt := s.now().Add(expiresIn)
	u, err := url.JoinPath(s.BaseURL, action, storageKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return u + "?expires=" + url.QueryEscape(expiresAt.UTC().Format(time.RFC3339)), expiresAt, nil
}
