// Package train is the training stage: it fits an isolation forest
// over a dataset and records everything about the attempt as a run.
package train

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fogbank-io/runtrack/pkg/dataset"
	"github.com/fogbank-io/runtrack/pkg/domain"
	"github.com/fogbank-io/runtrack/pkg/domain/artifact"
	domerr "github.com/fogbank-io/runtrack/pkg/domain/errors"
	"github.com/fogbank-io/runtrack/pkg/domain/registry"
	"github.com/fogbank-io/runtrack/pkg/model/iforest"
)

// ModelArtifactPath is the logical path the serialized model is
// stored at. The scoring stage reads it back from here.
const ModelArtifactPath = "model/model.json"

// DateColumn is the raw date column expanded into year/month/day
// features when Config.UseDateFeatures is set.
const DateColumn = "crash_date"

type Config struct {
	NEstimators     int
	Contamination   float64
	UseDateFeatures bool
	Seed            int64
}

func (c Config) Validate() error {
	return c.model().Validate()
}

func (c Config) model() iforest.Config {
	return iforest.Config{
		NEstimators:   c.NEstimators,
		Contamination: c.Contamination,
		Seed:          c.Seed,
	}
}

type Stage struct {
	registry registry.Interface
	store    artifact.Store
}

func New(registry registry.Interface, store artifact.Store) *Stage {
	return &Stage{registry: registry, store: store}
}

// markFailed leaves the run behind as `failed` for debuggability.
// Best effort: the error causing this is the one worth reporting.
func (s *Stage) markFailed(ctx context.Context, runId domain.RunId) {
	_ = s.registry.SetStatus(ctx, runId, domain.Failed, time.Now())
}

// Run fits a model on ds and records the attempt as a new run of the
// experiment: config values as params, `anomaly_rate` as metric, the
// serialized model as an artifact.
//
// Registry and artifact store errors propagate unmodified; fitting
// and serialization errors come back wrapped in ErrTrainingFailed.
// Either way the run, if one was created, is left as `failed` with
// whatever was logged before the failure still on record.
func (s *Stage) Run(ctx context.Context, ds *dataset.Table, experimentName string, config Config) (domain.RunId, error) {
	if err := config.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", domerr.ErrTrainingFailed, err)
	}

	runId, err := s.registry.CreateRun(ctx, experimentName)
	if err != nil {
		return 0, err
	}

	if err := s.registry.LogParams(ctx, runId, map[string]string{
		"n_estimators":      strconv.Itoa(config.NEstimators),
		"contamination":     strconv.FormatFloat(config.Contamination, 'g', -1, 64),
		"use_date_features": strconv.FormatBool(config.UseDateFeatures),
	}); err != nil {
		s.markFailed(ctx, runId)
		return runId, err
	}
	if err := s.registry.SetTags(ctx, runId, map[string]string{"stage": "train"}); err != nil {
		s.markFailed(ctx, runId)
		return runId, err
	}

	working := ds
	if config.UseDateFeatures {
		working = ds.Clone()
		working.ExpandDateFeatures(DateColumn)
	}

	model, err := iforest.Fit(working, config.model())
	if err != nil {
		s.markFailed(ctx, runId)
		return runId, fmt.Errorf("%w: %v", domerr.ErrTrainingFailed, err)
	}

	labels, _, err := model.Score(working)
	if err != nil {
		s.markFailed(ctx, runId)
		return runId, fmt.Errorf("%w: %v", domerr.ErrTrainingFailed, err)
	}
	anomalies := 0
	for _, label := range labels {
		if label == -1 {
			anomalies++
		}
	}
	anomalyRate := float64(anomalies) / float64(len(labels))

	if err := s.registry.LogMetrics(
		ctx, runId, map[string]float64{"anomaly_rate": anomalyRate}, nil,
	); err != nil {
		s.markFailed(ctx, runId)
		return runId, err
	}

	payload, err := model.Marshal()
	if err != nil {
		s.markFailed(ctx, runId)
		return runId, fmt.Errorf("%w: %v", domerr.ErrTrainingFailed, err)
	}
	location, err := s.store.Put(ctx, runId, ModelArtifactPath, payload)
	if err != nil {
		s.markFailed(ctx, runId)
		return runId, err
	}
	if err := s.registry.RegisterArtifact(ctx, runId, ModelArtifactPath, location); err != nil {
		s.markFailed(ctx, runId)
		return runId, err
	}

	if err := s.registry.SetStatus(ctx, runId, domain.Finished, time.Now()); err != nil {
		return runId, err
	}
	return runId, nil
}
