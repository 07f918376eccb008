package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

const tagSidecarSuffix = ".tags.json"

// Gateway serves the StorageGateway contract from a local directory, mainly
// for development and tests. Fingerprints hash size and mtime, so a file
// rewritten in place shows up as a new identity the way a changed ETag would.
type Gateway struct {
	basePath string
}

func New(basePath string) (*Gateway, error) {
	if basePath == "" {
		basePath = "./data/inbox"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Gateway{basePath: basePath}, nil
}

func (g *Gateway) List(_ context.Context, prefix string) ([]domain.ObjectInfo, error) {
	var out []domain.ObjectInfo
	err := filepath.WalkDir(g.basePath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasSuffix(path, tagSidecarSuffix) {
			return nil
		}
		rel, err := filepath.Rel(g.basePath, path)
		if err != nil {
			return err
		}
		location := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(location, prefix) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		out = append(out, domain.ObjectInfo{
			Location:    location,
			Fingerprint: fingerprint(info.Size(), info.ModTime().UnixNano()),
			Size:        info.Size(),
			ContentType: contentTypeFor(location),
			Modified:    info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransientStorage, "list objects", err)
	}
	return out, nil
}

func (g *Gateway) Get(_ context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(g.basePath, filepath.FromSlash(location)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrPermanentStorage, "get object", err)
		}
		return nil, domain.WrapError(domain.ErrTransientStorage, "get object", err)
	}
	return data, nil
}

func (g *Gateway) Put(_ context.Context, location string, data []byte, _ string) error {
	path := filepath.Join(g.basePath, filepath.FromSlash(location))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.WrapError(domain.ErrTransientStorage, "put object", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.WrapError(domain.ErrTransientStorage, "put object", err)
	}
	return nil
}

// Move relocates an object. A source that is gone while the destination
// exists counts as already moved, so a crashed run can re-enter safely.
func (g *Gateway) Move(_ context.Context, location, destination string) error {
	src := filepath.Join(g.basePath, filepath.FromSlash(location))
	dst := filepath.Join(g.basePath, filepath.FromSlash(destination))

	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		if _, err := os.Stat(dst); err == nil {
			return nil
		}
		return domain.WrapError(domain.ErrPermanentStorage, "move object",
			fmt.Errorf("source %s missing", location))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return domain.WrapError(domain.ErrTransientStorage, "move object", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return domain.WrapError(domain.ErrTransientStorage, "move object", err)
	}
	if err := os.Rename(src+tagSidecarSuffix, dst+tagSidecarSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.WrapError(domain.ErrTransientStorage, "move object tags", err)
	}
	return nil
}

// Tag stores key/value metadata in a JSON sidecar next to the object.
func (g *Gateway) Tag(_ context.Context, location, key, value string) error {
	path := filepath.Join(g.basePath, filepath.FromSlash(location)) + tagSidecarSuffix

	tags := map[string]string{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &tags); err != nil {
			return domain.WrapError(domain.ErrPermanentStorage, "read object tags", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return domain.WrapError(domain.ErrTransientStorage, "read object tags", err)
	}

	tags[key] = value
	data, err := json.Marshal(tags)
	if err != nil {
		return domain.WrapError(domain.ErrPermanentStorage, "encode object tags", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.WrapError(domain.ErrTransientStorage, "write object tags", err)
	}
	return nil
}

func fingerprint(size, mtimeNanos int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d", size, mtimeNanos)))
	return hex.EncodeToString(sum[:8])
}

func contentTypeFor(location string) string {
	if ct := mime.TypeByExtension(filepath.Ext(location)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
