package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"cinderbin/svc/util"
)

// LocalStore keeps blobs on the local filesystem, for development and tests.
type LocalStore struct {
	root    string
	baseURL string
}

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("blob root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "resolve blob root")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, "create blob root")
	}
	return &LocalStore{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}
	dst, err := l.resolve(key)
	if err != nil {
		return PutResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return PutResult{}, errors.Wrap(err, "create blob dir")
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return PutResult{}, errors.Wrap(err, "write blob")
	}
	return PutResult{
		URL:      l.baseURL + "/" + key,
		Pathname: key,
		Size:     int64(len(data)),
	}, nil
}

func (l *LocalStore) Delete(ctx context.Context, pathname string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := l.resolve(pathname)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil {
		if os.IsNotExist(err) {
			util.Debug().Str("path", pathname).Msg("blob already gone")
			return nil
		}
		return errors.Wrap(err, "remove blob")
	}
	return nil
}

// resolve maps a key to a path under root, rejecting traversal.
func (l *LocalStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", errors.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(l.root, clean), nil
}
