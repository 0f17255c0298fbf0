// Package domain declares core types of runtrack:
// experiments, runs and their recorded values, and pipeline runs.
package domain

import (
	"fmt"
	"time"
)

// RunId identifies a Run.
//
// Ids are assigned monotonically by the registry store,
// so comparing two RunIds tells which run was created later.
type RunId int64

func (r RunId) String() string {
	return fmt.Sprintf("%d", int64(r))
}

type ExperimentId int32

type PipelineRunId int64

func (p PipelineRunId) String() string {
	return fmt.Sprintf("%d", int64(p))
}

// Experiment is a named grouping of runs.
//
// Experiments are created lazily on first run and never deleted by the pipeline.
type Experiment struct {
	Id        ExperimentId
	Name      string
	CreatedAt time.Time
}

func (e Experiment) Equal(other Experiment) bool {
	return e.Id == other.Id &&
		e.Name == other.Name &&
		e.CreatedAt.Equal(other.CreatedAt)
}

type RunStatus string

const (
	// the run is in progress. Initial status of every run.
	Running RunStatus = "running"

	// the run has ended successfully. Terminal.
	Finished RunStatus = "finished"

	// the run has ended with an error. Terminal.
	Failed RunStatus = "failed"
)

func AsRunStatus(status string) (RunStatus, error) {
	switch RunStatus(status) {
	case Running:
		return Running, nil
	case Finished:
		return Finished, nil
	case Failed:
		return Failed, nil
	default:
		return "", fmt.Errorf("'%s' is not RunStatus", status)
	}
}

// CanTransitTo tells whether a run in status s may be set to next.
//
// Only running -> finished and running -> failed are allowed.
// Terminal statuses are never reversed.
func (s RunStatus) CanTransitTo(next RunStatus) bool {
	if s != Running {
		return false
	}
	return next == Finished || next == Failed
}

// Param is a key-value parameter of a run. Write-once per key.
type Param struct {
	Key   string
	Value string
}

// Metric is one observation of a numeric metric.
//
// Multiple observations per key accumulate a time series; they are never overwritten.
type Metric struct {
	Key      string
	Value    float64
	Step     *int32
	LoggedAt time.Time
}

func (m Metric) Equal(other Metric) bool {
	if (m.Step == nil) != (other.Step == nil) {
		return false
	}
	if m.Step != nil && *m.Step != *other.Step {
		return false
	}
	return m.Key == other.Key && m.Value == other.Value
}

// Tag is a key-value annotation of a run. Last write wins.
type Tag struct {
	Key   string
	Value string
}

// ArtifactRef points a stored artifact of a run:
// a logical relative path and the opaque location where the bytes live.
type ArtifactRef struct {
	Path     string
	Location string
}

type RunBody struct {
	Id             RunId
	ExperimentId   ExperimentId
	ExperimentName string
	Status         RunStatus
	StartTime      time.Time

	// nil while the run is running.
	EndTime *time.Time
}

type Run struct {
	RunBody

	// in the order they were logged
	Params []Param

	// in the order they were logged
	Metrics []Metric

	Tags []Tag

	// in the order they were registered
	Artifacts []ArtifactRef
}

// RunFindQuery finds runs which...
//
// - belong to the experiment named ExperimentName (ignored when empty), and
//
// - are in one of Status (ignored when empty).
type RunFindQuery struct {
	ExperimentName string
	Status         []RunStatus
}

type PipelineState string

const (
	PipelinePending          PipelineState = "pending"
	PipelineTrainingRunning  PipelineState = "training_running"
	PipelineTrainingFinished PipelineState = "training_finished"
	PipelineTrainingFailed   PipelineState = "training_failed"
	PipelineScoringRunning   PipelineState = "scoring_running"
	PipelineScoringFinished  PipelineState = "scoring_finished"
	PipelineScoringFailed    PipelineState = "scoring_failed"
)

func AsPipelineState(state string) (PipelineState, error) {
	switch PipelineState(state) {
	case PipelinePending, PipelineTrainingRunning, PipelineTrainingFinished,
		PipelineTrainingFailed, PipelineScoringRunning, PipelineScoringFinished,
		PipelineScoringFailed:
		return PipelineState(state), nil
	default:
		return "", fmt.Errorf("'%s' is not PipelineState", state)
	}
}

// Terminal tells whether no further state change is allowed.
func (s PipelineState) Terminal() bool {
	switch s {
	case PipelineTrainingFailed, PipelineScoringFinished, PipelineScoringFailed:
		return true
	}
	return false
}

// Succeeded tells whether the pipeline run reached its successful terminal state.
func (s PipelineState) Succeeded() bool {
	return s == PipelineScoringFinished
}

// CanTransitTo tells whether a pipeline run in state s may be set to next.
//
// Scoring never starts unless training reached training_finished,
// and no state is ever skipped.
func (s PipelineState) CanTransitTo(next PipelineState) bool {
	switch s {
	case PipelinePending:
		return next == PipelineTrainingRunning
	case PipelineTrainingRunning:
		return next == PipelineTrainingFinished || next == PipelineTrainingFailed
	case PipelineTrainingFinished:
		return next == PipelineScoringRunning
	case PipelineScoringRunning:
		return next == PipelineScoringFinished || next == PipelineScoringFailed
	}
	return false
}

// PipelineRun is one invocation of the pipeline scheduler.
//
// It owns a training run and, when training succeeds, a scoring run.
// Pipeline runs are kept indefinitely for audit.
type PipelineRun struct {
	Id        PipelineRunId
	TriggerId string
	State     PipelineState

	// nil until the corresponding stage created its run
	TrainingRunId *RunId
	ScoringRunId  *RunId

	CreatedAt time.Time
	UpdatedAt time.Time
}
