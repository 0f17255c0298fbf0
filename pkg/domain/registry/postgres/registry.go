// Package postgres implements the run registry on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	kpool "github.com/fogbank-io/runtrack/pkg/conn/db/postgres/pool"
	"github.com/fogbank-io/runtrack/pkg/domain"
	domerr "github.com/fogbank-io/runtrack/pkg/domain/errors"
	"github.com/fogbank-io/runtrack/pkg/domain/registry"
	kpgerr "github.com/fogbank-io/runtrack/pkg/domain/registry/postgres/errors"
	"github.com/fogbank-io/runtrack/pkg/utils/slices"
)

type runRegistry struct {
	pool kpool.Pool
}

var _ registry.Interface = &runRegistry{}

func New(pool kpool.Pool) *runRegistry {
	return &runRegistry{pool: pool}
}

func (r *runRegistry) begin(ctx context.Context) (kpool.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, kpgerr.Unavailable{Cause: err}
	}
	return tx, nil
}

func (r *runRegistry) acquire(ctx context.Context) (kpool.Conn, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, kpgerr.Unavailable{Cause: err}
	}
	return conn, nil
}

// asMissing converts a foreign key violation into Missing.
// Inserting values for a run which does not exist trips the run_id FK.
func asMissing(err error, table string, identity string) error {
	pgErr := new(pgconn.PgError)
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return kpgerr.Missing{Table: table, Identity: identity}
	}
	return err
}

func (r *runRegistry) CreateRun(ctx context.Context, experimentName string) (domain.RunId, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(
		ctx,
		`insert into "experiment" ("name") values ($1) on conflict ("name") do nothing`,
		experimentName,
	); err != nil {
		return 0, err
	}

	var experimentId int32
	if err := tx.QueryRow(
		ctx, `select "experiment_id" from "experiment" where "name" = $1`, experimentName,
	).Scan(&experimentId); err != nil {
		return 0, err
	}

	var runId int64
	if err := tx.QueryRow(
		ctx,
		`insert into "run" ("experiment_id") values ($1) returning "run_id"`,
		experimentId,
	).Scan(&runId); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return domain.RunId(runId), nil
}

func (r *runRegistry) LogParams(ctx context.Context, runId domain.RunId, params map[string]string) error {
	if len(params) == 0 {
		return nil
	}

	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	keys := slices.KeysOf(params)
	sort.Strings(keys)

	for _, key := range keys {
		given := params[key]

		// "do update" with the old value makes "returning" yield the
		// value actually on record, whether this insert won or not.
		var logged string
		if err := tx.QueryRow(
			ctx,
			`
			insert into "run_param" ("run_id", "key", "value") values ($1, $2, $3)
			on conflict ("run_id", "key") do update set "value" = "run_param"."value"
			returning "value"
			`,
			int64(runId), key, given,
		).Scan(&logged); err != nil {
			return asMissing(err, "run", runId.String())
		}

		if logged != given {
			// keys written before this one stay on record.
			if err := tx.Commit(ctx); err != nil {
				return err
			}
			return kpgerr.ParamConflict{Key: key, Logged: logged, Given: given}
		}
	}

	return tx.Commit(ctx)
}

func (r *runRegistry) LogMetrics(ctx context.Context, runId domain.RunId, metrics map[string]float64, step *int32) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	keys := slices.KeysOf(metrics)
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := tx.Exec(
			ctx,
			`insert into "run_metric" ("run_id", "key", "value", "step") values ($1, $2, $3, $4)`,
			int64(runId), key, metrics[key], step,
		); err != nil {
			return asMissing(err, "run", runId.String())
		}
	}

	return tx.Commit(ctx)
}

func (r *runRegistry) SetTags(ctx context.Context, runId domain.RunId, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}

	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	keys := slices.KeysOf(tags)
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := tx.Exec(
			ctx,
			`
			insert into "run_tag" ("run_id", "key", "value") values ($1, $2, $3)
			on conflict ("run_id", "key") do update set "value" = excluded."value"
			`,
			int64(runId), key, tags[key],
		); err != nil {
			return asMissing(err, "run", runId.String())
		}
	}

	return tx.Commit(ctx)
}

func (r *runRegistry) SetStatus(ctx context.Context, runId domain.RunId, newStatus domain.RunStatus, endTime time.Time) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var statusOnRecord string
	if err := tx.QueryRow(
		ctx, `select "status" from "run" where "run_id" = $1 for update`, int64(runId),
	).Scan(&statusOnRecord); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return kpgerr.Missing{Table: "run", Identity: runId.String()}
		}
		return err
	}

	current, err := domain.AsRunStatus(statusOnRecord)
	if err != nil {
		return err
	}
	if !current.CanTransitTo(newStatus) {
		return domerr.NewErrInvalidStatusChanging(current, newStatus)
	}

	if _, err := tx.Exec(
		ctx,
		`update "run" set "status" = $1, "end_time" = $2 where "run_id" = $3`,
		string(newStatus), endTime, int64(runId),
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *runRegistry) FindLatestRun(ctx context.Context, experimentName string, status domain.RunStatus) (domain.RunId, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	var runId int64
	if err := conn.QueryRow(
		ctx,
		`
		select "r"."run_id" from "run" as "r"
		inner join "experiment" as "e" on "e"."experiment_id" = "r"."experiment_id"
		where "e"."name" = $1 and "r"."status" = $2
		order by "r"."start_time" desc, "r"."run_id" desc
		limit 1
		`,
		experimentName, string(status),
	).Scan(&runId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, kpgerr.NoRunFound{Experiment: experimentName, Status: string(status)}
		}
		return 0, err
	}

	return domain.RunId(runId), nil
}

func (r *runRegistry) RegisterArtifact(ctx context.Context, runId domain.RunId, path string, location string) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(
		ctx,
		`
		insert into "artifact" ("run_id", "path", "location") values ($1, $2, $3)
		on conflict ("run_id", "path") do update set "location" = excluded."location"
		`,
		int64(runId), path, location,
	); err != nil {
		return asMissing(err, "run", runId.String())
	}

	return tx.Commit(ctx)
}

func (r *runRegistry) GetArtifactRefs(ctx context.Context, runId domain.RunId) ([]domain.ArtifactRef, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	var found bool
	if err := conn.QueryRow(
		ctx, `select exists(select 1 from "run" where "run_id" = $1)`, int64(runId),
	).Scan(&found); err != nil {
		return nil, err
	}
	if !found {
		return nil, kpgerr.Missing{Table: "run", Identity: runId.String()}
	}

	rows, err := conn.Query(
		ctx,
		`select "path", "location" from "artifact" where "run_id" = $1 order by "artifact_id"`,
		int64(runId),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []domain.ArtifactRef{}
	for rows.Next() {
		var ref domain.ArtifactRef
		if err := rows.Scan(&ref.Path, &ref.Location); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *runRegistry) FindRuns(ctx context.Context, query domain.RunFindQuery) ([]domain.RunId, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	statuses := slices.Map(query.Status, func(s domain.RunStatus) string { return string(s) })

	rows, err := conn.Query(
		ctx,
		`
		select "r"."run_id" from "run" as "r"
		inner join "experiment" as "e" on "e"."experiment_id" = "r"."experiment_id"
		where ($1 = '' or "e"."name" = $1)
			and (cardinality($2::varchar[]) = 0 or "r"."status" = any($2::varchar[]))
		order by "r"."start_time", "r"."run_id"
		`,
		query.ExperimentName, statuses,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runIds := []domain.RunId{}
	for rows.Next() {
		var runId int64
		if err := rows.Scan(&runId); err != nil {
			return nil, err
		}
		runIds = append(runIds, domain.RunId(runId))
	}
	return runIds, rows.Err()
}

func (r *runRegistry) GetRuns(ctx context.Context, runIds []domain.RunId) (map[domain.RunId]domain.Run, error) {
	result := map[domain.RunId]domain.Run{}
	if len(runIds) == 0 {
		return result, nil
	}

	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	ids := slices.Map(runIds, func(id domain.RunId) int64 { return int64(id) })

	if err := getRunBodies(ctx, conn, ids, result); err != nil {
		return nil, err
	}
	if err := getRunParams(ctx, conn, ids, result); err != nil {
		return nil, err
	}
	if err := getRunMetrics(ctx, conn, ids, result); err != nil {
		return nil, err
	}
	if err := getRunTags(ctx, conn, ids, result); err != nil {
		return nil, err
	}
	if err := getRunArtifacts(ctx, conn, ids, result); err != nil {
		return nil, err
	}

	return result, nil
}

func getRunBodies(ctx context.Context, qr kpool.Queryer, ids []int64, dest map[domain.RunId]domain.Run) error {
	rows, err := qr.Query(
		ctx,
		`
		select "r"."run_id", "r"."experiment_id", "e"."name",
			"r"."status", "r"."start_time", "r"."end_time"
		from "run" as "r"
		inner join "experiment" as "e" on "e"."experiment_id" = "r"."experiment_id"
		where "r"."run_id" = any($1)
		`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			runId        int64
			experimentId int32
			name         string
			status       string
			startTime    time.Time
			endTime      pgtype.Timestamptz
		)
		if err := rows.Scan(&runId, &experimentId, &name, &status, &startTime, &endTime); err != nil {
			return err
		}
		runStatus, err := domain.AsRunStatus(status)
		if err != nil {
			return err
		}
		body := domain.RunBody{
			Id:             domain.RunId(runId),
			ExperimentId:   domain.ExperimentId(experimentId),
			ExperimentName: name,
			Status:         runStatus,
			StartTime:      startTime,
		}
		if endTime.Status == pgtype.Present {
			t := endTime.Time
			body.EndTime = &t
		}
		dest[body.Id] = domain.Run{
			RunBody:   body,
			Params:    []domain.Param{},
			Metrics:   []domain.Metric{},
			Tags:      []domain.Tag{},
			Artifacts: []domain.ArtifactRef{},
		}
	}
	return rows.Err()
}

func getRunParams(ctx context.Context, qr kpool.Queryer, ids []int64, dest map[domain.RunId]domain.Run) error {
	rows, err := qr.Query(
		ctx,
		`
		select "run_id", "key", "value" from "run_param"
		where "run_id" = any($1) order by "param_id"
		`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			runId int64
			param domain.Param
		)
		if err := rows.Scan(&runId, &param.Key, &param.Value); err != nil {
			return err
		}
		if run, ok := dest[domain.RunId(runId)]; ok {
			run.Params = append(run.Params, param)
			dest[domain.RunId(runId)] = run
		}
	}
	return rows.Err()
}

func getRunMetrics(ctx context.Context, qr kpool.Queryer, ids []int64, dest map[domain.RunId]domain.Run) error {
	rows, err := qr.Query(
		ctx,
		`
		select "run_id", "key", "value", "step", "logged_at" from "run_metric"
		where "run_id" = any($1) order by "metric_id"
		`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			runId  int64
			metric domain.Metric
			step   pgtype.Int4
		)
		if err := rows.Scan(&runId, &metric.Key, &metric.Value, &step, &metric.LoggedAt); err != nil {
			return err
		}
		if step.Status == pgtype.Present {
			s := step.Int
			metric.Step = &s
		}
		if run, ok := dest[domain.RunId(runId)]; ok {
			run.Metrics = append(run.Metrics, metric)
			dest[domain.RunId(runId)] = run
		}
	}
	return rows.Err()
}

func getRunTags(ctx context.Context, qr kpool.Queryer, ids []int64, dest map[domain.RunId]domain.Run) error {
	rows, err := qr.Query(
		ctx,
		`
		select "run_id", "key", "value" from "run_tag"
		where "run_id" = any($1) order by "key"
		`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			runId int64
			tag   domain.Tag
		)
		if err := rows.Scan(&runId, &tag.Key, &tag.Value); err != nil {
			return err
		}
		if run, ok := dest[domain.RunId(runId)]; ok {
			run.Tags = append(run.Tags, tag)
			dest[domain.RunId(runId)] = run
		}
	}
	return rows.Err()
}

func getRunArtifacts(ctx context.Context, qr kpool.Queryer, ids []int64, dest map[domain.RunId]domain.Run) error {
	rows, err := qr.Query(
		ctx,
		`
		select "run_id", "path", "location" from "artifact"
		where "run_id" = any($1) order by "artifact_id"
		`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			runId int64
			ref   domain.ArtifactRef
		)
		if err := rows.Scan(&runId, &ref.Path, &ref.Location); err != nil {
			return err
		}
		if run, ok := dest[domain.RunId(runId)]; ok {
			run.Artifacts = append(run.Artifacts, ref)
			dest[domain.RunId(runId)] = run
		}
	}
	return rows.Err()
}

func (r *runRegistry) GetExperiments(ctx context.Context) ([]domain.Experiment, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(
		ctx,
		`select "experiment_id", "name", "created_at" from "experiment" order by "experiment_id"`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	experiments := []domain.Experiment{}
	for rows.Next() {
		var (
			id int32
			ex domain.Experiment
		)
		if err := rows.Scan(&id, &ex.Name, &ex.CreatedAt); err != nil {
			return nil, err
		}
		ex.Id = domain.ExperimentId(id)
		experiments = append(experiments, ex)
	}
	return experiments, rows.Err()
}

func (r *runRegistry) CreatePipelineRun(ctx context.Context, triggerId string) (domain.PipelineRunId, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var id int64
	if err := tx.QueryRow(
		ctx,
		`insert into "pipeline_run" ("trigger_id") values ($1) returning "pipeline_run_id"`,
		triggerId,
	).Scan(&id); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return domain.PipelineRunId(id), nil
}

func (r *runRegistry) SetPipelineState(
	ctx context.Context, pipelineRunId domain.PipelineRunId,
	newState domain.PipelineState,
	trainingRunId *domain.RunId, scoringRunId *domain.RunId,
) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var stateOnRecord string
	if err := tx.QueryRow(
		ctx,
		`select "state" from "pipeline_run" where "pipeline_run_id" = $1 for update`,
		int64(pipelineRunId),
	).Scan(&stateOnRecord); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return kpgerr.Missing{
				Table: "pipeline_run", Identity: pipelineRunId.String(),
			}
		}
		return err
	}

	current, err := domain.AsPipelineState(stateOnRecord)
	if err != nil {
		return err
	}
	if !current.CanTransitTo(newState) {
		return domerr.NewErrInvalidPipelineStateChanging(current, newState)
	}

	var training, scoring *int64
	if trainingRunId != nil {
		v := int64(*trainingRunId)
		training = &v
	}
	if scoringRunId != nil {
		v := int64(*scoringRunId)
		scoring = &v
	}

	if _, err := tx.Exec(
		ctx,
		`
		update "pipeline_run" set
			"state" = $1,
			"training_run_id" = coalesce($2, "training_run_id"),
			"scoring_run_id" = coalesce($3, "scoring_run_id"),
			"updated_at" = now()
		where "pipeline_run_id" = $4
		`,
		string(newState), training, scoring, int64(pipelineRunId),
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *runRegistry) GetPipelineRuns(ctx context.Context, pipelineRunIds []domain.PipelineRunId) (map[domain.PipelineRunId]domain.PipelineRun, error) {
	result := map[domain.PipelineRunId]domain.PipelineRun{}
	if len(pipelineRunIds) == 0 {
		return result, nil
	}

	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	ids := slices.Map(pipelineRunIds, func(id domain.PipelineRunId) int64 { return int64(id) })

	rows, err := conn.Query(
		ctx,
		`
		select "pipeline_run_id", "trigger_id", "state",
			"training_run_id", "scoring_run_id", "created_at", "updated_at"
		from "pipeline_run" where "pipeline_run_id" = any($1)
		`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       int64
			state    string
			training pgtype.Int8
			scoring  pgtype.Int8
			prun     domain.PipelineRun
		)
		if err := rows.Scan(
			&id, &prun.TriggerId, &state, &training, &scoring,
			&prun.CreatedAt, &prun.UpdatedAt,
		); err != nil {
			return nil, err
		}
		prun.Id = domain.PipelineRunId(id)
		if prun.State, err = domain.AsPipelineState(state); err != nil {
			return nil, err
		}
		if training.Status == pgtype.Present {
			runId := domain.RunId(training.Int)
			prun.TrainingRunId = &runId
		}
		if scoring.Status == pgtype.Present {
			runId := domain.RunId(scoring.Int)
			prun.ScoringRunId = &runId
		}
		result[prun.Id] = prun
	}
	return result, rows.Err()
}

func (r *runRegistry) FindPipelineRuns(ctx context.Context, states []domain.PipelineState) ([]domain.PipelineRunId, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	ss := slices.Map(states, func(s domain.PipelineState) string { return string(s) })

	rows, err := conn.Query(
		ctx,
		`
		select "pipeline_run_id" from "pipeline_run"
		where (cardinality($1::varchar[]) = 0 or "state" = any($1::varchar[]))
		order by "pipeline_run_id"
		`,
		ss,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []domain.PipelineRunId{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, domain.PipelineRunId(id))
	}
	return ids, rows.Err()
}
