package registry

import (
	"context"
	"time"

	"github.com/fogbank-io/runtrack/pkg/domain"
)

// Interface is the run registry: the system of record for experiments,
// runs, their params/metrics/tags, artifact references, and pipeline runs.
//
// The registry decouples the training and scoring stages in time.
// Scoring never receives a run id from training directly; it always
// re-resolves "latest finished run" through FindLatestRun, so the stages
// can run in separate processes at separate times and still behave correctly.
//
// Every operation takes an explicit run id. There is no process-wide
// "current run" state.
//
// All write operations are atomic with respect to concurrent calls on the
// same or different runs; read operations guarantee a consistent snapshot
// at call time, not linearizability across a whole pipeline.
type Interface interface {
	// create a new run under the experiment named experimentName.
	//
	// The experiment is created lazily when absent.
	// The new run is in `running` status with current start time.
	//
	// # Returns
	//
	// - domain.RunId: id of the new run. Ids are monotonic.
	//
	// - error: ErrStoreUnavailable when the backing store cannot be reached.
	// CreateRun never retries by itself.
	CreateRun(ctx context.Context, experimentName string) (domain.RunId, error)

	// log key-value parameters of the run.
	//
	// Parameters are write-once per key: re-logging an identical value is
	// a no-op, re-logging a different value fails.
	//
	// # Returns
	//
	// - error: ErrParamConflict when any key already has a different value
	// recorded for this run (keys logged before the conflicting one in the
	// same call stay logged; registry writes are not rolled back across calls).
	// ErrMissing when the run does not exist.
	LogParams(ctx context.Context, runId domain.RunId, params map[string]string) error

	// append one observation per key.
	//
	// Multiple calls accumulate a time series per metric name, ordered by
	// insertion. Observations are never overwritten.
	//
	// - step: optional step marker shared by all observations of this call. Can be nil.
	LogMetrics(ctx context.Context, runId domain.RunId, metrics map[string]float64, step *int32) error

	// set key-value tags of the run. Unlike params, tags are last-write-wins.
	SetTags(ctx context.Context, runId domain.RunId, tags map[string]string) error

	// update run status and end time.
	//
	// # Returns
	//
	// - error: ErrInvalidStatusChanging when the run is not currently
	// `running`. ErrMissing when the run does not exist.
	SetStatus(ctx context.Context, runId domain.RunId, newStatus domain.RunStatus, endTime time.Time) error

	// find the run with the latest start time among runs of the experiment
	// which are in the given status.
	//
	// Ties on identical start time are broken by highest run id, so the
	// answer is deterministic.
	//
	// # Returns
	//
	// - error: ErrNoRunFound when no run matches. This is the expected
	// state before the first run of the experiment reaches the status.
	FindLatestRun(ctx context.Context, experimentName string, status domain.RunStatus) (domain.RunId, error)

	// record an artifact of the run: its logical path and storage location.
	//
	// Re-registering the same path updates the location.
	RegisterArtifact(ctx context.Context, runId domain.RunId, path string, location string) error

	// list artifact entries of the run in the order they were registered.
	GetArtifactRefs(ctx context.Context, runId domain.RunId) ([]domain.ArtifactRef, error)

	// find runs matching the query, ordered by (start time, run id).
	FindRuns(ctx context.Context, query domain.RunFindQuery) ([]domain.RunId, error)

	// retrieve runs with params, metrics, tags and artifact refs.
	//
	// # Returns
	//
	// - map[domain.RunId]domain.Run: mapping runId -> Run.
	// Missing runs are absent from the map, not an error.
	GetRuns(ctx context.Context, runIds []domain.RunId) (map[domain.RunId]domain.Run, error)

	// list all experiments in creation order.
	GetExperiments(ctx context.Context) ([]domain.Experiment, error)

	// create a pipeline run record in `pending` state.
	//
	// - triggerId: external trigger correlation id (timestamp or caller-defined).
	CreatePipelineRun(ctx context.Context, triggerId string) (domain.PipelineRunId, error)

	// update pipeline run state, optionally recording stage run ids.
	//
	// # Returns
	//
	// - error: ErrInvalidStatusChanging when the transition is not allowed
	// by domain.PipelineState.CanTransitTo. ErrMissing when the pipeline
	// run does not exist.
	SetPipelineState(
		ctx context.Context, pipelineRunId domain.PipelineRunId,
		newState domain.PipelineState,
		trainingRunId *domain.RunId, scoringRunId *domain.RunId,
	) error

	// retrieve pipeline runs.
	GetPipelineRuns(ctx context.Context, pipelineRunIds []domain.PipelineRunId) (map[domain.PipelineRunId]domain.PipelineRun, error)

	// find pipeline run ids, newest last. When states is empty, all are found.
	FindPipelineRuns(ctx context.Context, states []domain.PipelineState) ([]domain.PipelineRunId, error)
}
