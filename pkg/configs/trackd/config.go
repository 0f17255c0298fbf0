package trackd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TrackdConfig configures the registry API server.
type TrackdConfig struct {
	// port the server listens on.
	ServerPort string `yaml:"port"`

	// connection string of the registry database.
	DBURI string `yaml:"database"`

	// directory artifacts are stored under.
	ArtifactRoot string `yaml:"artifactRoot"`

	// optional TLS. The server speaks plain HTTP when absent.
	TLS *TLSConfig `yaml:"tls,omitempty"`
}

type TLSConfig struct {
	CertPath string `yaml:"cert"`
	KeyPath  string `yaml:"key"`
}

func LoadTrackdConfig(filepath string) (*TrackdConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (*TrackdConfig, error) {
	var out TrackdConfig
	if err := yaml.Unmarshal(conf, &out); err != nil {
		return nil, err
	}

	if out.ServerPort == "" {
		out.ServerPort = "8080"
	}
	if out.DBURI == "" {
		return nil, fmt.Errorf(`config misses required field: "database"`)
	}
	if out.ArtifactRoot == "" {
		return nil, fmt.Errorf(`config misses required field: "artifactRoot"`)
	}
	if out.TLS != nil && (out.TLS.CertPath == "" || out.TLS.KeyPath == "") {
		return nil, fmt.Errorf(`config "tls" needs both "cert" and "key"`)
	}

	return &out, nil
}
