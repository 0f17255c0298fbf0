package errors

import (
	"errors"
	"fmt"

	"github.com/fogbank-io/runtrack/pkg/domain"
)

var (
	// requested entity (experiment, run, pipeline run) is not found.
	ErrMissing = errors.New("missing")

	// the backing store of the registry cannot be reached.
	//
	// This is fatal for the current attempt. The registry never retries
	// by itself; retrying is the caller's responsibility.
	ErrStoreUnavailable = errors.New("registry store is unavailable")

	// a parameter key is being re-logged with a different value.
	//
	// Parameters are write-once per key. Re-logging the identical value is a no-op.
	ErrParamConflict = errors.New("cannot overwrite a logged param")

	// run (or pipeline run) status may not change as requested.
	ErrInvalidStatusChanging = errors.New("cannot change status")

	// no run matches the requested (experiment, status).
	//
	// Expected before the first training run has ever finished;
	// callers should treat it as a precondition failure, not a crash.
	ErrNoRunFound = errors.New("no run found")

	// requested artifact is not stored.
	ErrArtifactNotFound = errors.New("artifact not found")

	// model fitting or serialization failed. Wraps the underlying cause.
	ErrTrainingFailed = errors.New("training failed")
)

// no trained model can be resolved for scoring.
//
// This is the domain-specific face of ErrNoRunFound:
// errors.Is(ErrNoModelAvailable, ErrNoRunFound) holds.
var ErrNoModelAvailable = fmt.Errorf("no trained model is available: %w", ErrNoRunFound)

func NewErrInvalidStatusChanging(from, to domain.RunStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChanging, from, to)
}

func NewErrInvalidPipelineStateChanging(from, to domain.PipelineState) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChanging, from, to)
}

func NewErrParamConflict(key, logged, given string) error {
	return fmt.Errorf(
		"%w: key '%s' is logged as '%s' (given: '%s')",
		ErrParamConflict, key, logged, given,
	)
}
