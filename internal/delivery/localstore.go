package delivery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/iconidentify/mediarelay/internal/domain"
)

// LocalStore implements both upload identities against a directory
// tree. It stands in for a messaging backend: direct uploads land in
// store/, relayed copies land under relay/<target>/ and forwarding
// promotes them into store/. Handles are opaque file names.
type LocalStore struct {
	root   string
	nextID atomic.Int64
	logger *slog.Logger
}

// NewLocalStore creates the directory layout under root.
func NewLocalStore(root string, logger *slog.Logger) (*LocalStore, error) {
	for _, dir := range []string{filepath.Join(root, "store"), filepath.Join(root, "relay")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store layout: %w", err)
		}
	}
	return &LocalStore{root: root, logger: logger}, nil
}

// UploadSmall copies the artifact into permanent storage and returns
// its handle.
func (s *LocalStore) UploadSmall(_ context.Context, art *domain.Artifact) (UploadResult, error) {
	handle := uuid.NewString() + filepath.Ext(art.Path)
	dst := filepath.Join(s.root, "store", handle)
	if err := copyFile(art.Path, dst); err != nil {
		return UploadResult{}, fmt.Errorf("store artifact: %w", err)
	}
	s.logger.Info("artifact stored", "handle", handle, "size", art.Size)
	return UploadResult{Handle: domain.Handle(handle), HandleUnique: uuid.NewString()}, nil
}

// SendTo drops a copy of the artifact in the target's relay directory
// and returns a reference to it.
func (s *LocalStore) SendTo(_ context.Context, target string, art *domain.Artifact) (MessageRef, error) {
	id := s.nextID.Add(1)
	dir := filepath.Join(s.root, "relay", sanitizeTarget(target))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return MessageRef{}, fmt.Errorf("create relay target: %w", err)
	}
	dst := filepath.Join(dir, fmt.Sprintf("%d%s", id, filepath.Ext(art.Path)))
	if err := copyFile(art.Path, dst); err != nil {
		return MessageRef{}, fmt.Errorf("relay artifact: %w", err)
	}
	return MessageRef{Channel: target, MessageID: id}, nil
}

// Forward promotes a relayed copy into permanent storage and returns
// the handle of the promoted copy.
func (s *LocalStore) Forward(_ context.Context, ref MessageRef) (UploadResult, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, "relay", sanitizeTarget(ref.Channel), fmt.Sprintf("%d.*", ref.MessageID)))
	if err != nil || len(matches) == 0 {
		return UploadResult{}, fmt.Errorf("relay message %d not found in %s", ref.MessageID, ref.Channel)
	}
	src := matches[0]

	handle := uuid.NewString() + filepath.Ext(src)
	dst := filepath.Join(s.root, "store", handle)
	if err := copyFile(src, dst); err != nil {
		return UploadResult{}, fmt.Errorf("forward artifact: %w", err)
	}
	return UploadResult{Handle: domain.Handle(handle), HandleUnique: uuid.NewString()}, nil
}

// Path resolves a handle back to the stored file.
func (s *LocalStore) Path(handle domain.Handle) string {
	return filepath.Join(s.root, "store", string(handle))
}

func sanitizeTarget(target string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, target)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
