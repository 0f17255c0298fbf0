package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration read from YAML as a string like "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("failed to parse '%s' as duration: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// PipelineConfig configures one pipeline trigger process.
type PipelineConfig struct {
	// connection string of the registry database.
	DBURI string `yaml:"database"`

	// directory artifacts are stored under. Must be shared with trackd
	// when both run.
	ArtifactRoot string `yaml:"artifactRoot"`

	// experiment the runs are recorded under.
	Experiment string `yaml:"experiment"`

	// CSV file with the dataset to train and score on.
	Dataset string `yaml:"dataset"`

	Train TrainConfig `yaml:"train"`
	Retry RetryConfig `yaml:"retry"`

	// trigger policy: "once" or "every:INTERVAL". Defaults to "once".
	Trigger string `yaml:"trigger"`
}

type TrainConfig struct {
	NEstimators     int     `yaml:"nEstimators"`
	Contamination   float64 `yaml:"contamination"`
	UseDateFeatures bool    `yaml:"useDateFeatures"`
	Seed            int64   `yaml:"seed"`
}

type RetryConfig struct {
	// attempts per stage, including the first.
	MaxAttempts int `yaml:"maxAttempts"`

	// wait between attempts.
	Interval Duration `yaml:"interval"`
}

func LoadPipelineConfig(filepath string) (*PipelineConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (*PipelineConfig, error) {
	var out PipelineConfig
	if err := yaml.Unmarshal(conf, &out); err != nil {
		return nil, err
	}

	for field, value := range map[string]string{
		"database":     out.DBURI,
		"artifactRoot": out.ArtifactRoot,
		"experiment":   out.Experiment,
		"dataset":      out.Dataset,
	} {
		if value == "" {
			return nil, fmt.Errorf(`config misses required field: "%s"`, field)
		}
	}

	if out.Train.NEstimators == 0 {
		out.Train.NEstimators = 200
	}
	if out.Train.Contamination == 0 {
		out.Train.Contamination = 0.1
	}
	if out.Retry.MaxAttempts == 0 {
		out.Retry.MaxAttempts = 2 // one retry
	}
	if out.Retry.Interval == 0 {
		out.Retry.Interval = Duration(1 * time.Minute)
	}
	if out.Trigger == "" {
		out.Trigger = "once"
	}

	return &out, nil
}
