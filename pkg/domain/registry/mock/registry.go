package mock

import (
	"context"
	"errors"
	"time"

	"github.com/fogbank-io/runtrack/pkg/domain"
	regmock "github.com/fogbank-io/runtrack/pkg/domain/internal/registry/mock"
	"github.com/fogbank-io/runtrack/pkg/domain/registry"
)

type Registry struct {
	Impl struct {
		CreateRun         func(ctx context.Context, experimentName string) (domain.RunId, error)
		LogParams         func(ctx context.Context, runId domain.RunId, params map[string]string) error
		LogMetrics        func(ctx context.Context, runId domain.RunId, metrics map[string]float64, step *int32) error
		SetTags           func(ctx context.Context, runId domain.RunId, tags map[string]string) error
		SetStatus         func(ctx context.Context, runId domain.RunId, newStatus domain.RunStatus, endTime time.Time) error
		FindLatestRun     func(ctx context.Context, experimentName string, status domain.RunStatus) (domain.RunId, error)
		RegisterArtifact  func(ctx context.Context, runId domain.RunId, path string, location string) error
		GetArtifactRefs   func(ctx context.Context, runId domain.RunId) ([]domain.ArtifactRef, error)
		FindRuns          func(ctx context.Context, query domain.RunFindQuery) ([]domain.RunId, error)
		GetRuns           func(ctx context.Context, runIds []domain.RunId) (map[domain.RunId]domain.Run, error)
		GetExperiments    func(ctx context.Context) ([]domain.Experiment, error)
		CreatePipelineRun func(ctx context.Context, triggerId string) (domain.PipelineRunId, error)
		SetPipelineState  func(ctx context.Context, pipelineRunId domain.PipelineRunId, newState domain.PipelineState, trainingRunId *domain.RunId, scoringRunId *domain.RunId) error
		GetPipelineRuns   func(ctx context.Context, pipelineRunIds []domain.PipelineRunId) (map[domain.PipelineRunId]domain.PipelineRun, error)
		FindPipelineRuns  func(ctx context.Context, states []domain.PipelineState) ([]domain.PipelineRunId, error)
	}

	Calls struct {
		CreateRun  regmock.CallLog[string]
		LogParams  regmock.CallLog[struct {
			RunId  domain.RunId
			Params map[string]string
		}]
		LogMetrics regmock.CallLog[struct {
			RunId   domain.RunId
			Metrics map[string]float64
			Step    *int32
		}]
		SetTags regmock.CallLog[struct {
			RunId domain.RunId
			Tags  map[string]string
		}]
		SetStatus regmock.CallLog[struct {
			RunId     domain.RunId
			NewStatus domain.RunStatus
			EndTime   time.Time
		}]
		FindLatestRun regmock.CallLog[struct {
			ExperimentName string
			Status         domain.RunStatus
		}]
		RegisterArtifact regmock.CallLog[struct {
			RunId    domain.RunId
			Path     string
			Location string
		}]
		GetArtifactRefs   regmock.CallLog[domain.RunId]
		FindRuns          regmock.CallLog[domain.RunFindQuery]
		GetRuns           regmock.CallLog[[]domain.RunId]
		GetExperiments    regmock.CallLog[struct{}]
		CreatePipelineRun regmock.CallLog[string]
		SetPipelineState  regmock.CallLog[struct {
			PipelineRunId domain.PipelineRunId
			NewState      domain.PipelineState
			TrainingRunId *domain.RunId
			ScoringRunId  *domain.RunId
		}]
		GetPipelineRuns  regmock.CallLog[[]domain.PipelineRunId]
		FindPipelineRuns regmock.CallLog[[]domain.PipelineState]
	}
}

func New() *Registry {
	return &Registry{}
}

var _ registry.Interface = &Registry{}

func (m *Registry) CreateRun(ctx context.Context, experimentName string) (domain.RunId, error) {
	m.Calls.CreateRun = append(m.Calls.CreateRun, experimentName)
	if m.Impl.CreateRun != nil {
		return m.Impl.CreateRun(ctx, experimentName)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) LogParams(ctx context.Context, runId domain.RunId, params map[string]string) error {
	m.Calls.LogParams = append(m.Calls.LogParams, struct {
		RunId  domain.RunId
		Params map[string]string
	}{RunId: runId, Params: params})
	if m.Impl.LogParams != nil {
		return m.Impl.LogParams(ctx, runId, params)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) LogMetrics(ctx context.Context, runId domain.RunId, metrics map[string]float64, step *int32) error {
	m.Calls.LogMetrics = append(m.Calls.LogMetrics, struct {
		RunId   domain.RunId
		Metrics map[string]float64
		Step    *int32
	}{RunId: runId, Metrics: metrics, Step: step})
	if m.Impl.LogMetrics != nil {
		return m.Impl.LogMetrics(ctx, runId, metrics, step)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) SetTags(ctx context.Context, runId domain.RunId, tags map[string]string) error {
	m.Calls.SetTags = append(m.Calls.SetTags, struct {
		RunId domain.RunId
		Tags  map[string]string
	}{RunId: runId, Tags: tags})
	if m.Impl.SetTags != nil {
		return m.Impl.SetTags(ctx, runId, tags)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) SetStatus(ctx context.Context, runId domain.RunId, newStatus domain.RunStatus, endTime time.Time) error {
	m.Calls.SetStatus = append(m.Calls.SetStatus, struct {
		RunId     domain.RunId
		NewStatus domain.RunStatus
		EndTime   time.Time
	}{RunId: runId, NewStatus: newStatus, EndTime: endTime})
	if m.Impl.SetStatus != nil {
		return m.Impl.SetStatus(ctx, runId, newStatus, endTime)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) FindLatestRun(ctx context.Context, experimentName string, status domain.RunStatus) (domain.RunId, error) {
	m.Calls.FindLatestRun = append(m.Calls.FindLatestRun, struct {
		ExperimentName string
		Status         domain.RunStatus
	}{ExperimentName: experimentName, Status: status})
	if m.Impl.FindLatestRun != nil {
		return m.Impl.FindLatestRun(ctx, experimentName, status)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) RegisterArtifact(ctx context.Context, runId domain.RunId, path string, location string) error {
	m.Calls.RegisterArtifact = append(m.Calls.RegisterArtifact, struct {
		RunId    domain.RunId
		Path     string
		Location string
	}{RunId: runId, Path: path, Location: location})
	if m.Impl.RegisterArtifact != nil {
		return m.Impl.RegisterArtifact(ctx, runId, path, location)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) GetArtifactRefs(ctx context.Context, runId domain.RunId) ([]domain.ArtifactRef, error) {
	m.Calls.GetArtifactRefs = append(m.Calls.GetArtifactRefs, runId)
	if m.Impl.GetArtifactRefs != nil {
		return m.Impl.GetArtifactRefs(ctx, runId)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) FindRuns(ctx context.Context, query domain.RunFindQuery) ([]domain.RunId, error) {
	m.Calls.FindRuns = append(m.Calls.FindRuns, query)
	if m.Impl.FindRuns != nil {
		return m.Impl.FindRuns(ctx, query)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) GetRuns(ctx context.Context, runIds []domain.RunId) (map[domain.RunId]domain.Run, error) {
	m.Calls.GetRuns = append(m.Calls.GetRuns, runIds)
	if m.Impl.GetRuns != nil {
		return m.Impl.GetRuns(ctx, runIds)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) GetExperiments(ctx context.Context) ([]domain.Experiment, error) {
	m.Calls.GetExperiments = append(m.Calls.GetExperiments, struct{}{})
	if m.Impl.GetExperiments != nil {
		return m.Impl.GetExperiments(ctx)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) CreatePipelineRun(ctx context.Context, triggerId string) (domain.PipelineRunId, error) {
	m.Calls.CreatePipelineRun = append(m.Calls.CreatePipelineRun, triggerId)
	if m.Impl.CreatePipelineRun != nil {
		return m.Impl.CreatePipelineRun(ctx, triggerId)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) SetPipelineState(
	ctx context.Context, pipelineRunId domain.PipelineRunId,
	newState domain.PipelineState,
	trainingRunId *domain.RunId, scoringRunId *domain.RunId,
) error {
	m.Calls.SetPipelineState = append(m.Calls.SetPipelineState, struct {
		PipelineRunId domain.PipelineRunId
		NewState      domain.PipelineState
		TrainingRunId *domain.RunId
		ScoringRunId  *domain.RunId
	}{
		PipelineRunId: pipelineRunId, NewState: newState,
		TrainingRunId: trainingRunId, ScoringRunId: scoringRunId,
	})
	if m.Impl.SetPipelineState != nil {
		return m.Impl.SetPipelineState(ctx, pipelineRunId, newState, trainingRunId, scoringRunId)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) GetPipelineRuns(ctx context.Context, pipelineRunIds []domain.PipelineRunId) (map[domain.PipelineRunId]domain.PipelineRun, error) {
	m.Calls.GetPipelineRuns = append(m.Calls.GetPipelineRuns, pipelineRunIds)
	if m.Impl.GetPipelineRuns != nil {
		return m.Impl.GetPipelineRuns(ctx, pipelineRunIds)
	}

	panic(errors.New("it should not be called"))
}

func (m *Registry) FindPipelineRuns(ctx context.Context, states []domain.PipelineState) ([]domain.PipelineRunId, error) {
	m.Calls.FindPipelineRuns = append(m.Calls.FindPipelineRuns, states)
	if m.Impl.FindPipelineRuns != nil {
		return m.Impl.FindPipelineRuns(ctx, states)
	}

	panic(errors.New("it should not be called"))
}
