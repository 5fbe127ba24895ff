package blobstore

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/clearaudio/gateway/internal/pkg/shortener"
)

// Store persists an object under name and returns its public URL.
type Store interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// ObjectKey builds "<dir>/<stem>-<slug><ext>" so repeated outputs never
// overwrite each other, e.g. "output/target.wav" -> "output/target-3kQ9xT2a.wav".
func ObjectKey(name string) (string, error) {
	slug, err := shortener.GenerateSecureSlug(8)
	if err != nil {
		return "", err
	}
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s-%s%s", stem, slug, ext), nil
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Backend {
	case BackendS3:
		return NewS3Store(ctx, cfg)
	case BackendLocal:
		return NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("blobstore: unknown backend %q", cfg.Backend)
	}
}
