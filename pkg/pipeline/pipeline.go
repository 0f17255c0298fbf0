// Package pipeline schedules the training and scoring stages as one
// pipeline run, with a retry budget per stage.
package pipeline

import (
	"context"
	"errors"
	"log"

	"github.com/fogbank-io/runtrack/pkg/dataset"
	"github.com/fogbank-io/runtrack/pkg/domain"
	domerr "github.com/fogbank-io/runtrack/pkg/domain/errors"
	"github.com/fogbank-io/runtrack/pkg/domain/registry"
	"github.com/fogbank-io/runtrack/pkg/stage/train"
	"github.com/fogbank-io/runtrack/pkg/utils/retry"
)

// Trainer is the training stage seam. *train.Stage satisfies it.
type Trainer interface {
	Run(ctx context.Context, ds *dataset.Table, experimentName string, config train.Config) (domain.RunId, error)
}

// Scorer is the scoring stage seam. *score.Stage satisfies it.
type Scorer interface {
	Run(ctx context.Context, ds *dataset.Table, experimentName string) (domain.RunId, error)
}

// RetryPolicy bounds how often one stage is attempted.
//
// Each attempt creates a fresh run in the registry; attempts are
// never deduplicated, so the full history of tries stays auditable.
type RetryPolicy struct {
	// total attempts per stage, including the first. At least 1.
	MaxAttempts int

	// waits between attempts. Nil means no wait.
	Backoff retry.Backoff
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Scheduler drives one pipeline run through its state machine:
// pending -> training_running -> training_finished -> scoring_running
// -> scoring_finished, with *_failed as terminal failure states.
type Scheduler struct {
	registry registry.Interface
	trainer  Trainer
	scorer   Scorer
	policy   RetryPolicy
	logger   *log.Logger
}

func New(registry registry.Interface, trainer Trainer, scorer Scorer, policy RetryPolicy, logger *log.Logger) *Scheduler {
	return &Scheduler{
		registry: registry,
		trainer:  trainer,
		scorer:   scorer,
		policy:   policy,
		logger:   logger,
	}
}

// Result is what a pipeline run ended as.
type Result struct {
	PipelineRunId domain.PipelineRunId
	State         domain.PipelineState

	// run of the last training / scoring attempt, nil when the stage
	// never produced one.
	TrainingRunId *domain.RunId
	ScoringRunId  *domain.RunId
}

// retriable tells whether an attempt failing with err deserves
// another try. Conflicting params and invalid transitions are bugs or
// config errors; retrying cannot fix them.
func retriable(err error) bool {
	if errors.Is(err, domerr.ErrParamConflict) {
		return false
	}
	if errors.Is(err, domerr.ErrInvalidStatusChanging) {
		return false
	}
	return true
}

// runStage attempts one stage up to the policy's budget.
//
// # Returns
//
// - *domain.RunId: run of the last attempt, when any attempt got far
// enough to create one.
//
// - error: nil when an attempt succeeded; the last attempt's error
// otherwise.
func (s *Scheduler) runStage(
	ctx context.Context, name string, attempt func(context.Context) (domain.RunId, error),
) (*domain.RunId, error) {
	var lastRunId *domain.RunId
	var lastErr error

	budget := s.policy.attempts()
	for i := 0; i < budget; i++ {
		if 0 < i && s.policy.Backoff != nil {
			if err := s.policy.Backoff(ctx); err != nil {
				return lastRunId, err
			}
		}

		runId, err := attempt(ctx)
		if runId != 0 {
			lastRunId = &runId
		}
		if err == nil {
			return lastRunId, nil
		}
		lastErr = err
		s.logger.Printf("%s attempt %d/%d failed: %v", name, i+1, budget, err)

		if !retriable(err) {
			s.logger.Printf("%s failed terminally; not retrying", name)
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	return lastRunId, lastErr
}

// Trigger executes one end-to-end pipeline run over ds.
//
// # Returns
//
// - Result: terminal state and stage run ids. Valid even on error.
//
// - error: the last failed attempt's error when the pipeline ended in
// a *_failed state. Callers get the state AND the error kind, never
// a bare "failed".
func (s *Scheduler) Trigger(
	ctx context.Context, triggerId string,
	ds *dataset.Table, experimentName string, config train.Config,
) (Result, error) {
	pipelineRunId, err := s.registry.CreatePipelineRun(ctx, triggerId)
	if err != nil {
		return Result{}, err
	}
	result := Result{PipelineRunId: pipelineRunId, State: domain.PipelinePending}

	transit := func(next domain.PipelineState) error {
		if err := s.registry.SetPipelineState(
			ctx, pipelineRunId, next, result.TrainingRunId, result.ScoringRunId,
		); err != nil {
			return err
		}
		result.State = next
		s.logger.Printf("pipeline run %s: %s", pipelineRunId, next)
		return nil
	}

	if err := transit(domain.PipelineTrainingRunning); err != nil {
		return result, err
	}
	trainingRunId, trainErr := s.runStage(
		ctx, "training",
		func(ctx context.Context) (domain.RunId, error) {
			return s.trainer.Run(ctx, ds, experimentName, config)
		},
	)
	result.TrainingRunId = trainingRunId
	if trainErr != nil {
		if err := transit(domain.PipelineTrainingFailed); err != nil {
			return result, err
		}
		return result, trainErr
	}
	if err := transit(domain.PipelineTrainingFinished); err != nil {
		return result, err
	}

	if err := transit(domain.PipelineScoringRunning); err != nil {
		return result, err
	}
	scoringRunId, scoreErr := s.runStage(
		ctx, "scoring",
		func(ctx context.Context) (domain.RunId, error) {
			return s.scorer.Run(ctx, ds, experimentName)
		},
	)
	result.ScoringRunId = scoringRunId
	if scoreErr != nil {
		if err := transit(domain.PipelineScoringFailed); err != nil {
			return result, err
		}
		return result, scoreErr
	}
	if err := transit(domain.PipelineScoringFinished); err != nil {
		return result, err
	}

	return result, nil
}
