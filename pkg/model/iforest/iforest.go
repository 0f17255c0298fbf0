// Package iforest is an isolation forest anomaly detector.
//
// Observations which are easy to isolate with random axis-parallel
// splits get short average path lengths over the forest, and so high
// anomaly scores. Fitting is deterministic for a fixed seed.
package iforest

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/fogbank-io/runtrack/pkg/dataset"
)

const (
	DefaultSampleSize = 256
	DefaultSeed       = 42
)

type Config struct {
	// number of trees. Must be positive.
	NEstimators int

	// expected fraction of anomalous observations, in (0, 1).
	// The score threshold is the (1 - Contamination) quantile of
	// training scores.
	Contamination float64

	// seed of the random source driving subsampling and splits.
	Seed int64

	// rows sampled per tree. Defaults to DefaultSampleSize,
	// capped at the dataset size.
	SampleSize int
}

func (c Config) Validate() error {
	if c.NEstimators <= 0 {
		return fmt.Errorf("n_estimators must be positive: %d", c.NEstimators)
	}
	if c.Contamination <= 0 || 1 <= c.Contamination {
		return fmt.Errorf("contamination must be in (0, 1): %f", c.Contamination)
	}
	if c.SampleSize < 0 {
		return fmt.Errorf("sample size must not be negative: %d", c.SampleSize)
	}
	return nil
}

// Node is one node of an isolation tree.
//
// Internal nodes split on Feature at Split; leaves record how many
// training rows ended there (Size).
type Node struct {
	Feature int     `json:"feature,omitempty"`
	Split   float64 `json:"split,omitempty"`
	Left    *Node   `json:"left,omitempty"`
	Right   *Node   `json:"right,omitempty"`
	Size    int     `json:"size,omitempty"`
}

func (n *Node) leaf() bool {
	return n.Left == nil && n.Right == nil
}

// Model is a fitted isolation forest together with its feature
// encoder and decision threshold.
type Model struct {
	Encoder    *Encoder `json:"encoder"`
	Trees      []*Node  `json:"trees"`
	SampleSize int      `json:"sample_size"`
	Threshold  float64  `json:"threshold"`
}

// averagePathLength is c(n): the average path length of an
// unsuccessful BST search over n nodes. Normalizes path lengths so
// scores are comparable across sample sizes.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	harmonic := math.Log(float64(n-1)) + 0.5772156649015329
	return 2*harmonic - 2*float64(n-1)/float64(n)
}

func buildTree(matrix [][]float64, rows []int, depth int, maxDepth int, rng *rand.Rand) *Node {
	if len(rows) <= 1 || maxDepth <= depth {
		return &Node{Size: len(rows)}
	}

	width := len(matrix[0])

	// pick a feature with spread; give up after trying each once.
	order := rng.Perm(width)
	feature := -1
	var lo, hi float64
	for _, candidate := range order {
		lo, hi = math.Inf(1), math.Inf(-1)
		for _, row := range rows {
			v := matrix[row][candidate]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if lo < hi {
			feature = candidate
			break
		}
	}
	if feature < 0 {
		// all remaining rows are identical.
		return &Node{Size: len(rows)}
	}

	split := lo + rng.Float64()*(hi-lo)

	left := []int{}
	right := []int{}
	for _, row := range rows {
		if matrix[row][feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &Node{
		Feature: feature,
		Split:   split,
		Left:    buildTree(matrix, left, depth+1, maxDepth, rng),
		Right:   buildTree(matrix, right, depth+1, maxDepth, rng),
	}
}

func pathLength(tree *Node, row []float64) float64 {
	depth := 0.0
	node := tree
	for !node.leaf() {
		if row[node.Feature] < node.Split {
			node = node.Left
		} else {
			node = node.Right
		}
		depth++
	}
	return depth + averagePathLength(node.Size)
}

// anomalyScore is 2^(-E[path] / c(sample size)), in (0, 1].
// Higher means easier to isolate, so more anomalous.
func (m *Model) anomalyScore(row []float64) float64 {
	total := 0.0
	for _, tree := range m.Trees {
		total += pathLength(tree, row)
	}
	mean := total / float64(len(m.Trees))
	return math.Pow(2, -mean/averagePathLength(m.SampleSize))
}

// quantile interpolates the q-quantile of sorted ascending values.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	at := int(math.Floor(pos))
	if n-1 <= at {
		return sorted[n-1]
	}
	frac := pos - float64(at)
	return sorted[at]*(1-frac) + sorted[at+1]*frac
}

// Fit learns an isolation forest over the table.
//
// Each tree is grown on its own random subsample. The decision
// threshold is set so that about Contamination of the training rows
// score at or above it.
func Fit(table *dataset.Table, config Config) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	rows := table.NumRows()
	if rows < 2 {
		return nil, fmt.Errorf("isolation needs at least 2 rows, got %d", rows)
	}

	encoder := NewEncoder(table)
	if encoder.Width() == 0 {
		return nil, fmt.Errorf("the dataset has no usable feature columns")
	}
	matrix, err := encoder.Transform(table)
	if err != nil {
		return nil, err
	}

	sampleSize := config.SampleSize
	if sampleSize == 0 {
		sampleSize = DefaultSampleSize
	}
	if rows < sampleSize {
		sampleSize = rows
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))
	if maxDepth < 1 {
		maxDepth = 1
	}

	rng := rand.New(rand.NewSource(config.Seed))

	model := &Model{
		Encoder:    encoder,
		Trees:      make([]*Node, 0, config.NEstimators),
		SampleSize: sampleSize,
	}
	for i := 0; i < config.NEstimators; i++ {
		sample := rng.Perm(rows)[:sampleSize]
		model.Trees = append(model.Trees, buildTree(matrix, sample, 0, maxDepth, rng))
	}

	scores := make([]float64, rows)
	for i, row := range matrix {
		scores[i] = model.anomalyScore(row)
	}
	sort.Float64s(scores)
	model.Threshold = quantile(scores, 1-config.Contamination)

	return model, nil
}

// Score labels every row of the table.
//
// # Returns
//
// - []int: -1 for anomalous rows, 1 for normal ones.
//
// - []float64: anomaly score per row. Deterministic for a fixed model
// and fixed input.
func (m *Model) Score(table *dataset.Table) ([]int, []float64, error) {
	matrix, err := m.Encoder.Transform(table)
	if err != nil {
		return nil, nil, err
	}

	labels := make([]int, len(matrix))
	scores := make([]float64, len(matrix))
	for i, row := range matrix {
		scores[i] = m.anomalyScore(row)
		if m.Threshold <= scores[i] {
			labels[i] = -1
		} else {
			labels[i] = 1
		}
	}
	return labels, scores, nil
}

// Marshal serializes the fitted model to JSON.
func (m *Model) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal restores a model Marshal serialized.
func Unmarshal(data []byte) (*Model, error) {
	model := new(Model)
	if err := json.Unmarshal(data, model); err != nil {
		return nil, err
	}
	if model.Encoder == nil || len(model.Trees) == 0 {
		return nil, fmt.Errorf("the serialized model is broken")
	}
	return model, nil
}
