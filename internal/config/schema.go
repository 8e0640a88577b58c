package config

// Config holds stitch configuration.
// Stored at: ~/.stitch/config.yaml
type Config struct {
	Server    ServerCfg    `mapstructure:"server" yaml:"server"`
	Database  DatabaseCfg  `mapstructure:"database" yaml:"database"`
	Blobs     BlobsCfg     `mapstructure:"blobs" yaml:"blobs"`
	OpenAI    OpenAICfg    `mapstructure:"openai" yaml:"openai"`
	Worker    WorkerCfg    `mapstructure:"worker" yaml:"worker"`
	Detection DetectionCfg `mapstructure:"detection" yaml:"detection"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// DatabaseCfg selects the relational backend.
type DatabaseCfg struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`
	// DSN is the sqlite file path or postgres connection string. Empty
	// means the default file under the stitch home directory.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// BlobsCfg configures document artifact storage.
type BlobsCfg struct {
	// Root is the blob store directory. Empty means the default
	// directory under the stitch home directory.
	Root string `mapstructure:"root" yaml:"root"`
}

// OpenAICfg configures the embedding and classification provider.
type OpenAICfg struct {
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	EmbeddingModel string  `mapstructure:"embedding_model" yaml:"embedding_model"`
	ChatModel      string  `mapstructure:"chat_model" yaml:"chat_model"`
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
}

// WorkerCfg tunes the background job worker.
type WorkerCfg struct {
	Enabled             bool `mapstructure:"enabled" yaml:"enabled"`
	PollIntervalSeconds int  `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	StaleAfterMinutes   int  `mapstructure:"stale_after_minutes" yaml:"stale_after_minutes"`
	MaxRetries          int  `mapstructure:"max_retries" yaml:"max_retries"`
}

// DetectionCfg tunes the connection detection engines.
type DetectionCfg struct {
	MinStrength float64    `mapstructure:"min_strength" yaml:"min_strength"`
	MaxPairs    int        `mapstructure:"max_pairs" yaml:"max_pairs"`
	Weights     WeightsCfg `mapstructure:"weights" yaml:"weights"`
}

// WeightsCfg scales each engine's raw strength. 1.0 is neutral.
type WeightsCfg struct {
	Semantic      float64 `mapstructure:"semantic" yaml:"semantic"`
	Contradiction float64 `mapstructure:"contradiction" yaml:"contradiction"`
	Bridge        float64 `mapstructure:"bridge" yaml:"bridge"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Database: DatabaseCfg{
			Driver: "sqlite",
		},
		OpenAI: OpenAICfg{
			APIKey:         "${OPENAI_API_KEY}",
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      "gpt-4o-mini",
			RateLimit:      8.0,
			Enabled:        true,
		},
		Worker: WorkerCfg{
			Enabled:             true,
			PollIntervalSeconds: 5,
			StaleAfterMinutes:   30,
			MaxRetries:          5,
		},
		Detection: DetectionCfg{
			MinStrength: 0.3,
			MaxPairs:    50,
			Weights: WeightsCfg{
				Semantic:      1.0,
				Contradiction: 1.0,
				Bridge:        1.0,
			},
		},
	}
}
