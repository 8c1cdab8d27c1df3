package domain

import "time"

// AppConfig is the main application configuration
type AppConfig struct {
	LogLevel  string          `yaml:"log_level"`
	Listen    ListenConfig    `yaml:"listen"`
	Database  DatabaseConfig  `yaml:"database"`
	Providers ProviderConfig  `yaml:"providers"`
	Agent     AgentConfig     `yaml:"agent"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Inventory InventoryConfig `yaml:"inventory"`
}

// ListenConfig configures the HTTP front door
type ListenConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig points at the DuckDB file
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ProviderConfig holds configuration for the text generation providers
type ProviderConfig struct {
	LLM LLMProviderConfig `yaml:"llm"`
}

// LLMProviderConfig configures the LLM provider
type LLMProviderConfig struct {
	Mode         string        `yaml:"mode"`          // "local" or "remote"
	LocalURL     string        `yaml:"local_url"`     // "http://localhost:11434"
	RemoteURL    string        `yaml:"remote_url"`    // "https://api.openai.com/v1"
	APIKey       string        `yaml:"api_key"`       // usually ${AULE_LLM_API_KEY}
	DefaultModel string        `yaml:"default_model"` // "qwen2.5:latest" or "gpt-4o-mini"
	Timeout      time.Duration `yaml:"timeout"`       // HTTP client timeout
}

// AgentConfig tunes the reasoning loop
type AgentConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	MaxNestingLevel int           `yaml:"max_nesting_level"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
	HistoryWindow   int           `yaml:"history_window"`
	Stream          StreamConfig  `yaml:"stream"`
}

// StreamConfig holds the demultiplexer markers for plan and observation streams
type StreamConfig struct {
	PlanStartMarker        string `yaml:"plan_start_marker"`
	PlanFieldMarker        string `yaml:"plan_field_marker"`
	ObservationStartMarker string `yaml:"observation_start_marker"`
	ObservationFieldMarker string `yaml:"observation_field_marker"`
}

// MQTTConfig configures the device alert publisher. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// InventoryConfig points at the inventory REST backend
type InventoryConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns safe defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		LogLevel: "info",
		Listen: ListenConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Database: DatabaseConfig{
			Path: "aule-agent.db",
		},
		Providers: ProviderConfig{
			LLM: LLMProviderConfig{
				Mode:         "local",
				LocalURL:     "http://localhost:11434",
				DefaultModel: "qwen2.5:latest",
				Timeout:      120 * time.Second,
			},
		},
		Agent: AgentConfig{
			MaxRetries:      3,
			MaxNestingLevel: 5,
			CallTimeout:     60 * time.Second,
			HistoryWindow:   20,
			Stream: StreamConfig{
				PlanStartMarker:        `"immediate_response": {`,
				PlanFieldMarker:        `"content": "`,
				ObservationStartMarker: `"is_answered"`,
				ObservationFieldMarker: `"answer": "`,
			},
		},
		MQTT: MQTTConfig{
			ClientID:    "aule-agent",
			TopicPrefix: "aule/devices",
		},
		Inventory: InventoryConfig{
			Timeout: 15 * time.Second,
		},
	}
}
