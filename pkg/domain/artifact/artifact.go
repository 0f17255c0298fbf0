// Package artifact moves artifact bytes to and from storage.
//
// The registry records WHERE artifacts are (path -> location); this
// package reads and writes the bytes a location points at.
package artifact

import (
	"context"

	"github.com/fogbank-io/runtrack/pkg/domain"
)

type Store interface {
	// Put stores data as the artifact named path under the run.
	//
	// # Returns
	//
	// - string: opaque location of the stored bytes,
	// suited for registry.RegisterArtifact.
	Put(ctx context.Context, runId domain.RunId, path string, data []byte) (string, error)

	// Get reads back the bytes of the artifact named path under the run.
	//
	// # Returns
	//
	// - error: ErrArtifactNotFound when nothing is stored there.
	Get(ctx context.Context, runId domain.RunId, path string) ([]byte, error)
}
