package runs

import (
	"github.com/fogbank-io/runtrack/pkg/cmp"
	"github.com/fogbank-io/runtrack/pkg/domain"
	"github.com/fogbank-io/runtrack/pkg/utils/rfctime"
	"github.com/fogbank-io/runtrack/pkg/utils/slices"
)

type Summary struct {
	RunId      string           `json:"runId"`
	Experiment string           `json:"experiment"`
	Status     string           `json:"status"`
	StartTime  rfctime.RFC3339  `json:"startTime"`
	EndTime    *rfctime.RFC3339 `json:"endTime,omitempty"`
}

func ComposeSummary(r domain.RunBody) Summary {
	var endTime *rfctime.RFC3339
	if r.EndTime != nil {
		et := rfctime.RFC3339(*r.EndTime)
		endTime = &et
	}
	return Summary{
		RunId:      r.Id.String(),
		Experiment: r.ExperimentName,
		Status:     string(r.Status),
		StartTime:  rfctime.RFC3339(r.StartTime),
		EndTime:    endTime,
	}
}

func (s *Summary) Equal(o *Summary) bool {
	if s == nil || o == nil {
		return s == nil && o == nil
	}
	return s.RunId == o.RunId &&
		s.Experiment == o.Experiment &&
		s.Status == o.Status &&
		s.StartTime.Equal(&o.StartTime) &&
		s.EndTime.Equal(o.EndTime)
}

type Metric struct {
	Key      string          `json:"key"`
	Value    float64         `json:"value"`
	Step     *int32          `json:"step,omitempty"`
	LoggedAt rfctime.RFC3339 `json:"loggedAt"`
}

func (m *Metric) Equal(o *Metric) bool {
	if m == nil || o == nil {
		return m == nil && o == nil
	}
	return m.Key == o.Key &&
		m.Value == o.Value &&
		cmp.PEqEq(m.Step, o.Step) &&
		m.LoggedAt.Equal(&o.LoggedAt)
}

type Artifact struct {
	Path     string `json:"path"`
	Location string `json:"location"`
}

type Detail struct {
	Summary
	Params    map[string]string `json:"params"`
	Metrics   []Metric          `json:"metrics"`
	Tags      map[string]string `json:"tags"`
	Artifacts []Artifact        `json:"artifacts"`
}

func (d *Detail) Equal(o *Detail) bool {
	if d == nil || o == nil {
		return d == nil && o == nil
	}
	return d.Summary.Equal(&o.Summary) &&
		cmp.MapEq(d.Params, o.Params) &&
		cmp.SliceEqWith(
			d.Metrics, o.Metrics,
			func(a, b Metric) bool { return a.Equal(&b) },
		) &&
		cmp.MapEq(d.Tags, o.Tags) &&
		cmp.SliceEq(d.Artifacts, o.Artifacts)
}

func ComposeDetail(r domain.Run) Detail {
	params := make(map[string]string, len(r.Params))
	for _, p := range r.Params {
		params[p.Key] = p.Value
	}
	tags := make(map[string]string, len(r.Tags))
	for _, t := range r.Tags {
		tags[t.Key] = t.Value
	}

	return Detail{
		Summary: ComposeSummary(r.RunBody),
		Params:  params,
		Metrics: slices.Map(r.Metrics, func(m domain.Metric) Metric {
			return Metric{
				Key:      m.Key,
				Value:    m.Value,
				Step:     m.Step,
				LoggedAt: rfctime.RFC3339(m.LoggedAt),
			}
		}),
		Tags: tags,
		Artifacts: slices.Map(r.Artifacts, func(a domain.ArtifactRef) Artifact {
			return Artifact{Path: a.Path, Location: a.Location}
		}),
	}
}
