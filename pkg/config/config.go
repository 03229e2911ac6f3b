// Package config implements the single node configuration struct of
// spec.md §6, loaded and round-tripped with gopkg.in/yaml.v3 in the
// cuemby-warren cmd/warren/apply.go idiom (struct tags + yaml.Unmarshal,
// no schema-generation layer on top).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const DefaultGRPCMaxMessageSize = 24 * 1024 * 1024 // 24 MiB

// RESTConfig configures the REST listener.
type RESTConfig struct {
	ListenPort       int               `yaml:"listen_port"`
	CORSAllowOrigins []string          `yaml:"cors_allow_origins,omitempty"`
	ExtraHeaders     map[string]string `yaml:"extra_headers,omitempty"`
}

// GRPCConfig configures the gRPC listener.
type GRPCConfig struct {
	ListenPort     int `yaml:"listen_port"`
	MaxMessageSize int `yaml:"max_message_size,omitempty"`
}

// JaegerConfig configures distributed-trace retention/export limits.
type JaegerConfig struct {
	LookbackHours        int `yaml:"lookback_hours"`
	MaxTraceDurationSecs int `yaml:"max_trace_duration_secs"`
	MaxFetchSpans        int `yaml:"max_fetch_spans"`
}

// TracingConfig wraps the tracing backend configuration.
type TracingConfig struct {
	Jaeger JaegerConfig `yaml:"jaeger"`
}

// BackendKind discriminates a configured storage backend. The abstract
// vector-store kind is named Qdrant rather than Milvus, since Qdrant is
// the only vector client this module actually wires (see DESIGN.md).
type BackendKind string

const (
	BackendNeo4j    BackendKind = "neo4j"
	BackendQdrant   BackendKind = "qdrant"
	BackendPostgres BackendKind = "postgres"
	BackendEmbedded BackendKind = "embedded"
)

// StorageBackendConfig configures one storage backend entry. Only the
// fields relevant to Kind need be set; unused fields are zero-valued.
type StorageBackendConfig struct {
	Kind BackendKind `yaml:"kind"`

	// Neo4j
	URL      string `yaml:"url,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// Qdrant
	Addr       string `yaml:"addr,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`

	// Postgres
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`

	// Embedded (bbolt)
	Path string `yaml:"path,omitempty"`
}

// NodeConfig is the single node configuration struct of spec.md §6.
type NodeConfig struct {
	ClusterID         string `yaml:"cluster_id"`
	NodeID            string `yaml:"node_id"`
	ListenAddress     string `yaml:"listen_address"`
	AdvertiseAddress  string `yaml:"advertise_address"`
	GossipListenPort  int    `yaml:"gossip_listen_port"`

	REST RESTConfig `yaml:"rest"`
	GRPC GRPCConfig `yaml:"grpc"`

	PeerSeeds []string `yaml:"peer_seeds,omitempty"`

	CPUCapacity    float64 `yaml:"cpu_capacity"`
	MemoryCapacity int64   `yaml:"memory_capacity"`

	StorageConfigs []StorageBackendConfig `yaml:"storage_configs,omitempty"`

	Tracing TracingConfig `yaml:"tracing"`

	// NATSURL, when set, is dialed at startup and every pipeline's
	// EventsBatch stream is additionally published to
	// "events.<pipeline_id>.<event_type>" for external observability.
	// Left empty, no NATS connection is attempted.
	NATSURL string `yaml:"nats_url,omitempty"`
}

// Default returns a NodeConfig with spec.md §6's stated defaults applied
// (currently only the gRPC max message size; everything else must be set
// explicitly by the caller or the loaded file).
func Default() NodeConfig {
	return NodeConfig{
		GRPC: GRPCConfig{MaxMessageSize: DefaultGRPCMaxMessageSize},
	}
}

// Load reads and parses a NodeConfig from a YAML file at path, applying
// defaults for any field the file leaves unset.
func Load(path string) (NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return NodeConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.GRPC.MaxMessageSize == 0 {
		cfg.GRPC.MaxMessageSize = DefaultGRPCMaxMessageSize
	}
	return cfg, nil
}

// Save marshals cfg to YAML and writes it to path.
func Save(path string, cfg NodeConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
