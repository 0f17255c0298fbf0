package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fogbank-io/runtrack/pkg/conn/db/postgres/pool/testenv"
	"github.com/fogbank-io/runtrack/pkg/domain"
	domerr "github.com/fogbank-io/runtrack/pkg/domain/errors"
	pgregistry "github.com/fogbank-io/runtrack/pkg/domain/registry/postgres"
	"github.com/fogbank-io/runtrack/pkg/utils/cmp"
	"github.com/fogbank-io/runtrack/pkg/utils/pointer"
	"github.com/fogbank-io/runtrack/pkg/utils/slices"
	"github.com/fogbank-io/runtrack/pkg/utils/try"
)

func TestRegistry_CreateRun(t *testing.T) {
	ctx := context.Background()

	t.Run("it creates the experiment lazily and assigns increasing run ids", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		runId1 := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)
		runId2 := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)

		if runId2 <= runId1 {
			t.Errorf("run ids are not increasing: %d then %d", runId1, runId2)
		}

		experiments := try.To(testee.GetExperiments(ctx)).OrFatal(t)
		names := slices.Map(experiments, func(e domain.Experiment) string { return e.Name })
		if !cmp.SliceEq(names, []string{"crash-anomaly"}) {
			t.Errorf("unexpected experiments: %v", names)
		}

		runs := try.To(testee.GetRuns(ctx, []domain.RunId{runId1, runId2})).OrFatal(t)
		for _, runId := range []domain.RunId{runId1, runId2} {
			run, ok := runs[runId]
			if !ok {
				t.Fatalf("run %d is not retrieved", runId)
			}
			if run.Status != domain.Running {
				t.Errorf("new run %d is not running: %s", runId, run.Status)
			}
			if run.EndTime != nil {
				t.Errorf("new run %d has end time", runId)
			}
			if run.ExperimentName != "crash-anomaly" {
				t.Errorf("run %d is in wrong experiment: %s", runId, run.ExperimentName)
			}
		}
	})

	t.Run("concurrent creates against a new experiment all succeed with a single experiment", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		wg := sync.WaitGroup{}
		errs := make([]error, 4)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = testee.CreateRun(ctx, "raced-experiment")
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Errorf("create #%d: unexpected error: %v", i, err)
			}
		}

		experiments := try.To(testee.GetExperiments(ctx)).OrFatal(t)
		if len(experiments) != 1 {
			t.Errorf("experiment is duplicated: %v", experiments)
		}

		runIds := try.To(testee.FindRuns(ctx, domain.RunFindQuery{
			ExperimentName: "raced-experiment",
		})).OrFatal(t)
		if len(runIds) != 4 {
			t.Errorf("unexpected number of runs: %d", len(runIds))
		}
	})
}

func TestRegistry_LogParams(t *testing.T) {
	ctx := context.Background()

	t.Run("params are write-once and idempotent", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)
		runId := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)

		if err := testee.LogParams(ctx, runId, map[string]string{
			"n_estimators": "200", "contamination": "auto",
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// same values again: no-op.
		if err := testee.LogParams(ctx, runId, map[string]string{
			"n_estimators": "200",
		}); err != nil {
			t.Errorf("re-logging an identical value should pass: %v", err)
		}

		// different value: conflict.
		err := testee.LogParams(ctx, runId, map[string]string{"n_estimators": "100"})
		if !errors.Is(err, domerr.ErrParamConflict) {
			t.Errorf("expected ErrParamConflict, got: %v", err)
		}

		run := try.To(testee.GetRuns(ctx, []domain.RunId{runId})).OrFatal(t)[runId]
		if !cmp.SliceContentEq(run.Params, []domain.Param{
			{Key: "n_estimators", Value: "200"},
			{Key: "contamination", Value: "auto"},
		}) {
			t.Errorf("params on record are broken: %v", run.Params)
		}
	})

	t.Run("keys logged before a conflicting key stay on record", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)
		runId := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)

		if err := testee.LogParams(ctx, runId, map[string]string{"b_key": "old"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// keys are processed in order; "a_key" precedes the conflicting "b_key".
		err := testee.LogParams(ctx, runId, map[string]string{
			"a_key": "new", "b_key": "changed",
		})
		if !errors.Is(err, domerr.ErrParamConflict) {
			t.Fatalf("expected ErrParamConflict, got: %v", err)
		}

		run := try.To(testee.GetRuns(ctx, []domain.RunId{runId})).OrFatal(t)[runId]
		if !cmp.SliceContentEq(run.Params, []domain.Param{
			{Key: "b_key", Value: "old"},
			{Key: "a_key", Value: "new"},
		}) {
			t.Errorf("params on record are broken: %v", run.Params)
		}
	})

	t.Run("logging params of a missing run fails", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		err := testee.LogParams(ctx, domain.RunId(42), map[string]string{"k": "v"})
		if !errors.Is(err, domerr.ErrMissing) {
			t.Errorf("expected ErrMissing, got: %v", err)
		}
	})
}

func TestRegistry_LogMetrics(t *testing.T) {
	ctx := context.Background()

	t.Run("metrics accumulate as a series in logged order", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)
		runId := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)

		if err := testee.LogMetrics(ctx, runId, map[string]float64{"anomaly_rate": 0.12}, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := testee.LogMetrics(ctx, runId, map[string]float64{"anomaly_rate": 0.08}, pointer.Ref(int32(1))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := testee.LogMetrics(ctx, runId, map[string]float64{"anomaly_rate": 0.15}, pointer.Ref(int32(2))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		run := try.To(testee.GetRuns(ctx, []domain.RunId{runId})).OrFatal(t)[runId]
		if !cmp.SliceEqWith(
			run.Metrics,
			[]domain.Metric{
				{Key: "anomaly_rate", Value: 0.12, Step: nil},
				{Key: "anomaly_rate", Value: 0.08, Step: pointer.Ref(int32(1))},
				{Key: "anomaly_rate", Value: 0.15, Step: pointer.Ref(int32(2))},
			},
			domain.Metric.Equal,
		) {
			t.Errorf("metric series is broken: %v", run.Metrics)
		}
	})

	t.Run("logging metrics of a missing run fails", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		err := testee.LogMetrics(ctx, domain.RunId(42), map[string]float64{"m": 1}, nil)
		if !errors.Is(err, domerr.ErrMissing) {
			t.Errorf("expected ErrMissing, got: %v", err)
		}
	})
}

func TestRegistry_SetTags(t *testing.T) {
	ctx := context.Background()

	t.Run("tags are last-write-wins", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)
		runId := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)

		if err := testee.SetTags(ctx, runId, map[string]string{
			"stage": "train", "owner": "ml-team",
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := testee.SetTags(ctx, runId, map[string]string{"stage": "score"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		run := try.To(testee.GetRuns(ctx, []domain.RunId{runId})).OrFatal(t)[runId]
		if !cmp.SliceContentEq(run.Tags, []domain.Tag{
			{Key: "owner", Value: "ml-team"},
			{Key: "stage", Value: "score"},
		}) {
			t.Errorf("tags on record are broken: %v", run.Tags)
		}
	})
}

func TestRegistry_SetStatus(t *testing.T) {
	ctx := context.Background()

	for name, testcase := range map[string]struct {
		newStatus domain.RunStatus
	}{
		"when a running run is finished, it records end time": {newStatus: domain.Finished},
		"when a running run is failed, it records end time":   {newStatus: domain.Failed},
	} {
		t.Run(name, func(t *testing.T) {
			pool := testenv.Pool(ctx, t)
			testee := pgregistry.New(pool)
			runId := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)

			endTime := time.Now()
			if err := testee.SetStatus(ctx, runId, testcase.newStatus, endTime); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			run := try.To(testee.GetRuns(ctx, []domain.RunId{runId})).OrFatal(t)[runId]
			if run.Status != testcase.newStatus {
				t.Errorf("status is not updated: %s", run.Status)
			}
			if run.EndTime == nil {
				t.Errorf("end time is not recorded")
			}
		})
	}

	t.Run("a terminal run rejects further status changes", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)
		runId := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)

		if err := testee.SetStatus(ctx, runId, domain.Finished, time.Now()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, next := range []domain.RunStatus{domain.Running, domain.Finished, domain.Failed} {
			err := testee.SetStatus(ctx, runId, next, time.Now())
			if !errors.Is(err, domerr.ErrInvalidStatusChanging) {
				t.Errorf("finished -> %s: expected ErrInvalidStatusChanging, got: %v", next, err)
			}
		}
	})

	t.Run("setting status of a missing run fails", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		err := testee.SetStatus(ctx, domain.RunId(42), domain.Finished, time.Now())
		if !errors.Is(err, domerr.ErrMissing) {
			t.Errorf("expected ErrMissing, got: %v", err)
		}
	})
}

func TestRegistry_FindLatestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("it picks the run with the latest start time in the wanted status", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		older := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)
		newer := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)
		newest := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)
		other := try.To(testee.CreateRun(ctx, "other-experiment")).OrFatal(t)

		if err := testee.SetStatus(ctx, older, domain.Finished, time.Now()); err != nil {
			t.Fatal(err)
		}
		if err := testee.SetStatus(ctx, newer, domain.Finished, time.Now()); err != nil {
			t.Fatal(err)
		}
		// newest run failed; it must not win.
		if err := testee.SetStatus(ctx, newest, domain.Failed, time.Now()); err != nil {
			t.Fatal(err)
		}
		if err := testee.SetStatus(ctx, other, domain.Finished, time.Now()); err != nil {
			t.Fatal(err)
		}

		found := try.To(testee.FindLatestRun(ctx, "crash-anomaly", domain.Finished)).OrFatal(t)
		if found != newer {
			t.Errorf("expected run %d, got %d", newer, found)
		}
	})

	t.Run("ties on start time are broken by the highest run id", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		runId1 := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)
		runId2 := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)

		// force identical start times.
		conn := try.To(pool.Acquire(ctx)).OrFatal(t)
		defer conn.Release()
		sameTime := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
		if _, err := conn.Exec(
			ctx, `update "run" set "start_time" = $1 where "run_id" in ($2, $3)`,
			sameTime, int64(runId1), int64(runId2),
		); err != nil {
			t.Fatal(err)
		}

		for _, runId := range []domain.RunId{runId1, runId2} {
			if err := testee.SetStatus(ctx, runId, domain.Finished, time.Now()); err != nil {
				t.Fatal(err)
			}
		}

		found := try.To(testee.FindLatestRun(ctx, "crash-anomaly", domain.Finished)).OrFatal(t)
		if found != runId2 {
			t.Errorf("expected run %d, got %d", runId2, found)
		}
	})

	t.Run("when no run matches, it returns ErrNoRunFound", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		// a running run exists, but no finished one.
		if _, err := testee.CreateRun(ctx, "crash-anomaly"); err != nil {
			t.Fatal(err)
		}

		_, err := testee.FindLatestRun(ctx, "crash-anomaly", domain.Finished)
		if !errors.Is(err, domerr.ErrNoRunFound) {
			t.Errorf("expected ErrNoRunFound, got: %v", err)
		}

		_, err = testee.FindLatestRun(ctx, "no-such-experiment", domain.Finished)
		if !errors.Is(err, domerr.ErrNoRunFound) {
			t.Errorf("expected ErrNoRunFound, got: %v", err)
		}
	})
}

func TestRegistry_Artifacts(t *testing.T) {
	ctx := context.Background()

	t.Run("artifact refs are listed in registration order and re-registering updates location", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)
		runId := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)

		for _, ref := range []domain.ArtifactRef{
			{Path: "model/model.json", Location: "file:///artifacts/1/model/model.json"},
			{Path: "scored.csv", Location: "file:///artifacts/1/scored.csv"},
		} {
			if err := testee.RegisterArtifact(ctx, runId, ref.Path, ref.Location); err != nil {
				t.Fatal(err)
			}
		}

		if err := testee.RegisterArtifact(
			ctx, runId, "model/model.json", "file:///artifacts/1v2/model/model.json",
		); err != nil {
			t.Fatal(err)
		}

		refs := try.To(testee.GetArtifactRefs(ctx, runId)).OrFatal(t)
		if !cmp.SliceEq(refs, []domain.ArtifactRef{
			{Path: "model/model.json", Location: "file:///artifacts/1v2/model/model.json"},
			{Path: "scored.csv", Location: "file:///artifacts/1/scored.csv"},
		}) {
			t.Errorf("artifact refs are broken: %v", refs)
		}
	})

	t.Run("listing artifacts of a missing run fails", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		_, err := testee.GetArtifactRefs(ctx, domain.RunId(42))
		if !errors.Is(err, domerr.ErrMissing) {
			t.Errorf("expected ErrMissing, got: %v", err)
		}
	})
}

func TestRegistry_FindRuns(t *testing.T) {
	ctx := context.Background()

	t.Run("it filters by experiment and status", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		finished := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)
		running := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)
		otherExp := try.To(testee.CreateRun(ctx, "other-experiment")).OrFatal(t)

		if err := testee.SetStatus(ctx, finished, domain.Finished, time.Now()); err != nil {
			t.Fatal(err)
		}

		for name, testcase := range map[string]struct {
			query domain.RunFindQuery
			then  []domain.RunId
		}{
			"by experiment": {
				query: domain.RunFindQuery{ExperimentName: "crash-anomaly"},
				then:  []domain.RunId{finished, running},
			},
			"by status": {
				query: domain.RunFindQuery{Status: []domain.RunStatus{domain.Running}},
				then:  []domain.RunId{running, otherExp},
			},
			"by experiment and status": {
				query: domain.RunFindQuery{
					ExperimentName: "crash-anomaly",
					Status:         []domain.RunStatus{domain.Finished},
				},
				then: []domain.RunId{finished},
			},
			"empty query finds all": {
				query: domain.RunFindQuery{},
				then:  []domain.RunId{finished, running, otherExp},
			},
		} {
			t.Run(name, func(t *testing.T) {
				found := try.To(testee.FindRuns(ctx, testcase.query)).OrFatal(t)
				if !cmp.SliceEq(found, testcase.then) {
					t.Errorf("expected %v, got %v", testcase.then, found)
				}
			})
		}
	})
}

func TestRegistry_PipelineRuns(t *testing.T) {
	ctx := context.Background()

	t.Run("a pipeline run walks pending to scoring_finished recording stage run ids", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		pipelineRunId := try.To(testee.CreatePipelineRun(ctx, "trigger-2026-04-01")).OrFatal(t)
		trainingRun := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)
		scoringRun := try.To(testee.CreateRun(ctx, "crash-anomaly")).OrFatal(t)

		steps := []struct {
			state    domain.PipelineState
			training *domain.RunId
			scoring  *domain.RunId
		}{
			{state: domain.PipelineTrainingRunning, training: &trainingRun},
			{state: domain.PipelineTrainingFinished},
			{state: domain.PipelineScoringRunning, scoring: &scoringRun},
			{state: domain.PipelineScoringFinished},
		}
		for _, step := range steps {
			if err := testee.SetPipelineState(
				ctx, pipelineRunId, step.state, step.training, step.scoring,
			); err != nil {
				t.Fatalf("to %s: unexpected error: %v", step.state, err)
			}
		}

		prun, ok := try.To(
			testee.GetPipelineRuns(ctx, []domain.PipelineRunId{pipelineRunId}),
		).OrFatal(t)[pipelineRunId]
		if !ok {
			t.Fatal("pipeline run is not retrieved")
		}
		if prun.State != domain.PipelineScoringFinished {
			t.Errorf("unexpected state: %s", prun.State)
		}
		if prun.TriggerId != "trigger-2026-04-01" {
			t.Errorf("unexpected trigger id: %s", prun.TriggerId)
		}
		if prun.TrainingRunId == nil || *prun.TrainingRunId != trainingRun {
			t.Errorf("training run id is not kept: %v", prun.TrainingRunId)
		}
		if prun.ScoringRunId == nil || *prun.ScoringRunId != scoringRun {
			t.Errorf("scoring run id is not kept: %v", prun.ScoringRunId)
		}
	})

	t.Run("state skipping is rejected", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		pipelineRunId := try.To(testee.CreatePipelineRun(ctx, "trigger-x")).OrFatal(t)

		err := testee.SetPipelineState(ctx, pipelineRunId, domain.PipelineScoringRunning, nil, nil)
		if !errors.Is(err, domerr.ErrInvalidStatusChanging) {
			t.Errorf("expected ErrInvalidStatusChanging, got: %v", err)
		}
	})

	t.Run("terminal pipeline states reject further changes", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		pipelineRunId := try.To(testee.CreatePipelineRun(ctx, "trigger-x")).OrFatal(t)
		for _, state := range []domain.PipelineState{
			domain.PipelineTrainingRunning, domain.PipelineTrainingFailed,
		} {
			if err := testee.SetPipelineState(ctx, pipelineRunId, state, nil, nil); err != nil {
				t.Fatal(err)
			}
		}

		err := testee.SetPipelineState(ctx, pipelineRunId, domain.PipelineScoringRunning, nil, nil)
		if !errors.Is(err, domerr.ErrInvalidStatusChanging) {
			t.Errorf("expected ErrInvalidStatusChanging, got: %v", err)
		}
	})

	t.Run("pipeline runs are found by state", func(t *testing.T) {
		pool := testenv.Pool(ctx, t)
		testee := pgregistry.New(pool)

		pending := try.To(testee.CreatePipelineRun(ctx, "t1")).OrFatal(t)
		started := try.To(testee.CreatePipelineRun(ctx, "t2")).OrFatal(t)
		if err := testee.SetPipelineState(
			ctx, started, domain.PipelineTrainingRunning, nil, nil,
		); err != nil {
			t.Fatal(err)
		}

		found := try.To(testee.FindPipelineRuns(ctx, []domain.PipelineState{
			domain.PipelinePending,
		})).OrFatal(t)
		if !cmp.SliceEq(found, []domain.PipelineRunId{pending}) {
			t.Errorf("expected %v, got %v", []domain.PipelineRunId{pending}, found)
		}

		all := try.To(testee.FindPipelineRuns(ctx, nil)).OrFatal(t)
		if !cmp.SliceEq(all, []domain.PipelineRunId{pending, started}) {
			t.Errorf("expected all pipeline runs, got %v", all)
		}
	})
}
