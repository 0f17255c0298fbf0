// Package score is the scoring stage: it loads the latest trained
// model, labels a dataset with it and derives summary artifacts for
// an external renderer.
package score

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fogbank-io/runtrack/pkg/dataset"
	"github.com/fogbank-io/runtrack/pkg/domain"
	"github.com/fogbank-io/runtrack/pkg/domain/artifact"
	domerr "github.com/fogbank-io/runtrack/pkg/domain/errors"
	"github.com/fogbank-io/runtrack/pkg/domain/registry"
	"github.com/fogbank-io/runtrack/pkg/model/iforest"
	"github.com/fogbank-io/runtrack/pkg/stage/train"
)

// Logical paths of the artifacts a scoring run stores. An external
// renderer picks them up by this convention.
const (
	ScoredPath       = "scored.csv"
	SummaryPath      = "summary_statistics.txt"
	DistributionPath = "score_distribution.json"
	RatioPath        = "anomaly_ratio.json"
	TopAnomaliesPath = "top_anomalies.json"
	TrendPath        = "anomaly_trend.json"
)

// TopK is how many of the most anomalous rows are reported.
const TopK = 10

const distributionBins = 50

type Stage struct {
	registry registry.Interface
	store    artifact.Store
}

func New(registry registry.Interface, store artifact.Store) *Stage {
	return &Stage{registry: registry, store: store}
}

func (s *Stage) markFailed(ctx context.Context, runId domain.RunId) {
	_ = s.registry.SetStatus(ctx, runId, domain.Failed, time.Now())
}

// Run scores ds with the model of the latest finished run of the
// experiment and records the scoring as a new run of the same
// experiment, linked to the model by the `model_run_id` param.
//
// # Returns
//
// - domain.RunId: id of the scoring run.
//
// - error: ErrNoModelAvailable when the experiment has no finished
// run yet. This is the expected state before the first training
// completes. ErrArtifactNotFound when the resolved run lost its model
// artifact. Registry and store errors propagate unmodified.
func (s *Stage) Run(ctx context.Context, ds *dataset.Table, experimentName string) (domain.RunId, error) {
	modelRunId, err := s.registry.FindLatestRun(ctx, experimentName, domain.Finished)
	if err != nil {
		if errors.Is(err, domerr.ErrNoRunFound) {
			return 0, fmt.Errorf(
				"%w: experiment '%s'", domerr.ErrNoModelAvailable, experimentName,
			)
		}
		return 0, err
	}

	payload, err := s.store.Get(ctx, modelRunId, train.ModelArtifactPath)
	if err != nil {
		return 0, err
	}
	model, err := iforest.Unmarshal(payload)
	if err != nil {
		return 0, fmt.Errorf("model of run %s does not load: %w", modelRunId, err)
	}

	runId, err := s.registry.CreateRun(ctx, experimentName)
	if err != nil {
		return 0, err
	}

	if err := s.registry.LogParams(ctx, runId, map[string]string{
		"model_run_id": modelRunId.String(),
	}); err != nil {
		s.markFailed(ctx, runId)
		return runId, err
	}
	if err := s.registry.SetTags(ctx, runId, map[string]string{"stage": "score"}); err != nil {
		s.markFailed(ctx, runId)
		return runId, err
	}

	working := ds.Clone()
	if modelWantsDateFeatures(model) && !working.HasColumn("year") {
		working.ExpandDateFeatures(train.DateColumn)
	}

	labels, scores, err := model.Score(working)
	if err != nil {
		s.markFailed(ctx, runId)
		return runId, err
	}

	scored := working.Clone()
	if err := scored.AddNumericColumn("anomaly_pred", intsToFloats(labels)); err != nil {
		s.markFailed(ctx, runId)
		return runId, err
	}
	if err := scored.AddNumericColumn("anomaly_score", scores); err != nil {
		s.markFailed(ctx, runId)
		return runId, err
	}

	artifacts := map[string][]byte{}

	csvBuf := new(bytes.Buffer)
	if err := scored.WriteCSV(csvBuf); err != nil {
		s.markFailed(ctx, runId)
		return runId, err
	}
	artifacts[ScoredPath] = csvBuf.Bytes()
	artifacts[SummaryPath] = summaryStatistics(labels, scores)

	for path, content := range map[string]interface{}{
		DistributionPath: scoreDistribution(labels, scores),
		RatioPath:        anomalyRatio(labels),
		TopAnomaliesPath: topAnomalies(scores),
	} {
		encoded, err := json.Marshal(content)
		if err != nil {
			s.markFailed(ctx, runId)
			return runId, err
		}
		artifacts[path] = encoded
	}

	// temporal aggregation only makes sense with date-derived columns.
	if working.HasYearMonth() {
		encoded, err := json.Marshal(anomalyTrend(working, labels))
		if err != nil {
			s.markFailed(ctx, runId)
			return runId, err
		}
		artifacts[TrendPath] = encoded
	}

	paths := make([]string, 0, len(artifacts))
	for path := range artifacts {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		location, err := s.store.Put(ctx, runId, path, artifacts[path])
		if err != nil {
			s.markFailed(ctx, runId)
			return runId, err
		}
		if err := s.registry.RegisterArtifact(ctx, runId, path, location); err != nil {
			s.markFailed(ctx, runId)
			return runId, err
		}
	}

	if err := s.registry.LogMetrics(
		ctx, runId, map[string]float64{"scored_rows": float64(len(labels))}, nil,
	); err != nil {
		s.markFailed(ctx, runId)
		return runId, err
	}

	if err := s.registry.SetStatus(ctx, runId, domain.Finished, time.Now()); err != nil {
		return runId, err
	}
	return runId, nil
}

func modelWantsDateFeatures(model *iforest.Model) bool {
	for _, feature := range model.Encoder.Numeric {
		if feature.Name == "year" || feature.Name == "month" || feature.Name == "day" {
			return true
		}
	}
	return false
}

func intsToFloats(values []int) []float64 {
	floats := make([]float64, len(values))
	for i, v := range values {
		floats[i] = float64(v)
	}
	return floats
}

func round(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}

func countAnomalies(labels []int) int {
	anomalies := 0
	for _, label := range labels {
		if label == -1 {
			anomalies++
		}
	}
	return anomalies
}

func summaryStatistics(labels []int, scores []float64) []byte {
	total := len(labels)
	anomalies := countAnomalies(labels)

	min, max, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, score := range scores {
		min = math.Min(min, score)
		max = math.Max(max, score)
		sum += score
	}

	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "ANOMALY DETECTION SUMMARY\n")
	for i := 0; i < 50; i++ {
		buf.WriteByte('=')
	}
	fmt.Fprintf(buf, "\n\n")
	fmt.Fprintf(buf, "Total Records: %d\n", total)
	fmt.Fprintf(buf, "Normal Records: %d\n", total-anomalies)
	fmt.Fprintf(buf, "Anomalies Detected: %d\n", anomalies)
	fmt.Fprintf(buf, "Anomaly Rate (%%): %v\n", round(float64(anomalies)/float64(total)*100, 2))
	fmt.Fprintf(buf, "Min Anomaly Score: %v\n", round(min, 4))
	fmt.Fprintf(buf, "Max Anomaly Score: %v\n", round(max, 4))
	fmt.Fprintf(buf, "Mean Anomaly Score: %v\n", round(sum/float64(total), 4))
	return buf.Bytes()
}

// Distribution is the per-bin histogram of anomaly scores, split by
// predicted label.
type Distribution struct {
	BinEdges []float64 `json:"bin_edges"`
	Normal   []int     `json:"normal"`
	Anomaly  []int     `json:"anomaly"`
}

func scoreDistribution(labels []int, scores []float64) Distribution {
	min, max := math.Inf(1), math.Inf(-1)
	for _, score := range scores {
		min = math.Min(min, score)
		max = math.Max(max, score)
	}
	if max <= min {
		max = min + 1
	}

	dist := Distribution{
		BinEdges: make([]float64, distributionBins+1),
		Normal:   make([]int, distributionBins),
		Anomaly:  make([]int, distributionBins),
	}
	width := (max - min) / distributionBins
	for i := range dist.BinEdges {
		dist.BinEdges[i] = min + width*float64(i)
	}
	for i, score := range scores {
		bin := int((score - min) / width)
		if distributionBins <= bin {
			bin = distributionBins - 1
		}
		if labels[i] == -1 {
			dist.Anomaly[bin]++
		} else {
			dist.Normal[bin]++
		}
	}
	return dist
}

type Ratio struct {
	Total       int     `json:"total"`
	Normal      int     `json:"normal"`
	Anomaly     int     `json:"anomaly"`
	AnomalyRate float64 `json:"anomaly_rate"`
}

func anomalyRatio(labels []int) Ratio {
	total := len(labels)
	anomalies := countAnomalies(labels)
	return Ratio{
		Total:       total,
		Normal:      total - anomalies,
		Anomaly:     anomalies,
		AnomalyRate: round(float64(anomalies)/float64(total), 4),
	}
}

// TopAnomaly points at one of the most anomalous input rows.
type TopAnomaly struct {
	RowIndex     int     `json:"row_index"`
	AnomalyScore float64 `json:"anomaly_score"`
}

// topAnomalies picks the TopK highest-scoring rows.
// Ties keep input row order.
func topAnomalies(scores []float64) []TopAnomaly {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[b]] < scores[order[a]]
	})

	k := TopK
	if len(order) < k {
		k = len(order)
	}
	top := make([]TopAnomaly, 0, k)
	for _, row := range order[:k] {
		top = append(top, TopAnomaly{RowIndex: row, AnomalyScore: scores[row]})
	}
	return top
}

type TrendPoint struct {
	YearMonth    string `json:"year_month"`
	AnomalyCount int    `json:"anomaly_count"`
}

// anomalyTrend buckets anomalies by year-month. Rows whose year or
// month is missing are left out.
func anomalyTrend(table *dataset.Table, labels []int) []TrendPoint {
	years, _ := table.NumericColumn("year")
	months, _ := table.NumericColumn("month")

	counts := map[string]int{}
	for i, label := range labels {
		if math.IsNaN(years[i]) || math.IsNaN(months[i]) {
			continue
		}
		bucket := fmt.Sprintf("%d-%02d", int(years[i]), int(months[i]))
		if label == -1 {
			counts[bucket]++
		} else if _, ok := counts[bucket]; !ok {
			counts[bucket] = 0
		}
	}

	buckets := make([]string, 0, len(counts))
	for bucket := range counts {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)

	trend := make([]TrendPoint, 0, len(buckets))
	for _, bucket := range buckets {
		trend = append(trend, TrendPoint{YearMonth: bucket, AnomalyCount: counts[bucket]})
	}
	return trend
}
