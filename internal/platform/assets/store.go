package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

// ErrDisabled is returned by the none store. Callers treat it as "no asset produced".
var ErrDisabled = errors.New("asset storage disabled")

// Store persists generated media and returns a URL clients can load.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	Kind() string
}

// ModuleImageKey is the object key for a module illustration of one run.
func ModuleImageKey(worldID, runID, moduleID uuid.UUID, ext string) string {
	return path.Join("worlds", worldID.String(), runID.String(), "modules", moduleID.String()+normalizeExt(ext))
}

// CoverKey is the object key for the rendered cover of one run.
func CoverKey(worldID, runID uuid.UUID) string {
	return path.Join("worlds", worldID.String(), runID.String(), "cover.png")
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ".png"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// ExtForMime maps an image mime type to a file extension.
func ExtForMime(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// ContentTypeForKey infers a content type from the key suffix.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

type noneStore struct{}

func NewNoneStore() Store { return noneStore{} }

func (noneStore) Put(context.Context, string, []byte, string) (string, error) {
	return "", ErrDisabled
}

func (noneStore) Delete(context.Context, string) error { return nil }

func (noneStore) Kind() string { return "none" }

// localStore writes assets under a directory that the HTTP server exposes at publicBase.
type localStore struct {
	log        *logger.Logger
	root       string
	publicBase string
}

func NewLocalStore(log *logger.Logger, root, publicBase string) (Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local asset root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &localStore{
		log:        log.With("service", "LocalAssetStore"),
		root:       root,
		publicBase: strings.TrimRight(strings.TrimSpace(publicBase), "/"),
	}, nil
}

func (s *localStore) Kind() string { return "local" }

func (s *localStore) path(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	if clean == "/" {
		return "", fmt.Errorf("empty asset key")
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (s *localStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit asset: %w", err)
	}
	return s.publicBase + "/" + strings.TrimLeft(path.Clean("/"+key), "/"), nil
}

func (s *localStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
