package experiments

import (
	"github.com/fogbank-io/runtrack/pkg/domain"
	"github.com/fogbank-io/runtrack/pkg/utils/rfctime"
)

type Summary struct {
	ExperimentId int32           `json:"experimentId"`
	Name         string          `json:"name"`
	CreatedAt    rfctime.RFC3339 `json:"createdAt"`
}

func ComposeSummary(e domain.Experiment) Summary {
	return Summary{
		ExperimentId: int32(e.Id),
		Name:         e.Name,
		CreatedAt:    rfctime.RFC3339(e.CreatedAt),
	}
}

func (s *Summary) Equal(o *Summary) bool {
	if s == nil || o == nil {
		return s == nil && o == nil
	}
	return s.ExperimentId == o.ExperimentId &&
		s.Name == o.Name &&
		s.CreatedAt.Equal(&o.CreatedAt)
}
