// Package local stores artifacts on the local filesystem.
//
// Layout: <root>/<run id>/<artifact path>. Locations are "file://" +
// the absolute path of the stored file.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogbank-io/runtrack/pkg/domain"
	"github.com/fogbank-io/runtrack/pkg/domain/artifact"
	domerr "github.com/fogbank-io/runtrack/pkg/domain/errors"
)

const locationScheme = "file://"

type store struct {
	root string
}

var _ artifact.Store = &store{}

func New(root string) (*store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &store{root: abs}, nil
}

// resolve maps (run, logical path) to a file path under the store root.
//
// Artifact paths are relative; anything escaping the run's directory is
// rejected, whoever asked for it.
func (s *store) resolve(runId domain.RunId, path string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return "", fmt.Errorf("invalid artifact path: '%s'", path)
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid artifact path: '%s'", path)
	}
	return filepath.Join(s.root, runId.String(), clean), nil
}

func (s *store) Put(ctx context.Context, runId domain.RunId, path string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest, err := s.resolve(runId, path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", err
	}
	return locationScheme + dest, nil
}

func (s *store) Get(ctx context.Context, runId domain.RunId, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := s.resolve(runId, path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf(
				"%w: '%s' of run %s", domerr.ErrArtifactNotFound, path, runId,
			)
		}
		return nil, err
	}
	return data, nil
}
