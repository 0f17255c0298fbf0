package pipelines

import (
	"github.com/fogbank-io/runtrack/pkg/cmp"
	"github.com/fogbank-io/runtrack/pkg/domain"
	"github.com/fogbank-io/runtrack/pkg/utils/rfctime"
)

type Detail struct {
	PipelineRunId string          `json:"pipelineRunId"`
	TriggerId     string          `json:"triggerId"`
	State         string          `json:"state"`
	TrainingRunId *string         `json:"trainingRunId,omitempty"`
	ScoringRunId  *string         `json:"scoringRunId,omitempty"`
	CreatedAt     rfctime.RFC3339 `json:"createdAt"`
	UpdatedAt     rfctime.RFC3339 `json:"updatedAt"`
}

func ComposeDetail(p domain.PipelineRun) Detail {
	var training, scoring *string
	if p.TrainingRunId != nil {
		t := p.TrainingRunId.String()
		training = &t
	}
	if p.ScoringRunId != nil {
		s := p.ScoringRunId.String()
		scoring = &s
	}
	return Detail{
		PipelineRunId: p.Id.String(),
		TriggerId:     p.TriggerId,
		State:         string(p.State),
		TrainingRunId: training,
		ScoringRunId:  scoring,
		CreatedAt:     rfctime.RFC3339(p.CreatedAt),
		UpdatedAt:     rfctime.RFC3339(p.UpdatedAt),
	}
}

func (d *Detail) Equal(o *Detail) bool {
	if d == nil || o == nil {
		return d == nil && o == nil
	}
	return d.PipelineRunId == o.PipelineRunId &&
		d.TriggerId == o.TriggerId &&
		d.State == o.State &&
		cmp.PEqEq(d.TrainingRunId, o.TrainingRunId) &&
		cmp.PEqEq(d.ScoringRunId, o.ScoringRunId) &&
		d.CreatedAt.Equal(&o.CreatedAt) &&
		d.UpdatedAt.Equal(&o.UpdatedAt)
}
