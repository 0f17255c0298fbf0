package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/fogbank-io/runtrack/cmd/pipeline/recurring"
	kcp "github.com/fogbank-io/runtrack/pkg/configs/pipeline"
	kpool "github.com/fogbank-io/runtrack/pkg/conn/db/postgres/pool"
	"github.com/fogbank-io/runtrack/pkg/dataset"
	"github.com/fogbank-io/runtrack/pkg/domain/artifact/local"
	"github.com/fogbank-io/runtrack/pkg/domain/registry/postgres"
	"github.com/fogbank-io/runtrack/pkg/domain/registry/postgres/schema"
	"github.com/fogbank-io/runtrack/pkg/loop"
	"github.com/fogbank-io/runtrack/pkg/pipeline"
	"github.com/fogbank-io/runtrack/pkg/stage/score"
	"github.com/fogbank-io/runtrack/pkg/stage/train"
	"github.com/fogbank-io/runtrack/pkg/utils/retry"
)

func main() {

	configPath := flag.String(
		"config-path", os.Getenv("RUNTRACK_PIPELINE_CONFIG"), "path to config file",
	)
	trigger := flag.String(
		"trigger", "", `trigger policy: "once" or "every:INTERVAL". Overrides config.`,
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[pipeline] ", log.LstdFlags)

	conf, err := kcp.LoadPipelineConfig(*configPath)
	if err != nil {
		logger.Fatalf("can not read configuration: %s", err)
	}
	if *trigger != "" {
		conf.Trigger = *trigger
	}

	policy, err := recurring.ParsePolicy(conf.Trigger)
	if err != nil {
		logger.Fatalf("broken trigger policy: %s", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancel()

	ds, err := loadDataset(conf.Dataset)
	if err != nil {
		logger.Fatalf("can not load dataset %s: %s", conf.Dataset, err)
	}
	logger.Printf("dataset %s: %d rows, %d columns", conf.Dataset, ds.NumRows(), ds.NumCols())

	pool, err := retry.Blocking(ctx, retry.StaticBackoff(2*time.Second), func() (kpool.Pool, error) {
		p, err := kpool.Connect(ctx, conf.DBURI)
		if err != nil {
			logger.Printf("registry database is not ready: %s", err)
			return nil, fmt.Errorf("%w: %s", retry.ErrRetry, err)
		}
		return p, nil
	})
	if err != nil {
		logger.Fatalf("can not connect to the registry database: %s", err)
	}
	defer pool.Close()

	if err := schema.New(pool).Ensure(ctx); err != nil {
		logger.Fatalf("can not prepare the registry schema: %s", err)
	}

	store, err := local.New(conf.ArtifactRoot)
	if err != nil {
		logger.Fatalf("can not open the artifact store: %s", err)
	}

	reg := postgres.New(pool)
	scheduler := pipeline.New(
		reg,
		train.New(reg, store),
		score.New(reg, store),
		pipeline.RetryPolicy{
			MaxAttempts: conf.Retry.MaxAttempts,
			Backoff:     retry.StaticBackoff(time.Duration(conf.Retry.Interval)),
		},
		logger,
	)

	trainConfig := train.Config{
		NEstimators:     conf.Train.NEstimators,
		Contamination:   conf.Train.Contamination,
		UseDateFeatures: conf.Train.UseDateFeatures,
		Seed:            conf.Train.Seed,
	}

	task := func(ctx context.Context, _ error) (error, loop.Next) {
		triggerId := time.Now().UTC().Format(time.RFC3339)
		result, err := scheduler.Trigger(ctx, triggerId, ds, conf.Experiment, trainConfig)
		if err != nil {
			logger.Printf(
				"pipeline run %s ended in %s: %s",
				result.PipelineRunId, result.State, err,
			)
		} else {
			logger.Printf("pipeline run %s ended in %s", result.PipelineRunId, result.State)
		}
		return err, policy.Next(result.State.Succeeded(), err)
	}

	var initErr error
	if _, err := loop.Start(ctx, initErr, task); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("pipeline ended with failure: %s", err)
		os.Exit(1)
	}
}

func loadDataset(path string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dataset.FromCSV(f)
}
