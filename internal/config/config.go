package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/manthysbr/aule-agent/internal/core/domain"
)

// DefaultSearchPaths returns the config file search order:
// ./aule-agent.yaml, ~/.config/aule-agent/config.yaml, /etc/aule-agent/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"aule-agent.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "aule-agent", "config.yaml"))
	}
	return append(paths, "/etc/aule-agent/config.yaml")
}

// ErrNoConfigFile is returned by FindConfig when no search path exists.
var ErrNoConfigFile = errors.New("no config file found")

// FindConfig locates a config file. If explicit is non-empty, it must exist.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfigFile, DefaultSearchPaths())
}

// Load reads path over the defaults, expanding ${VAR} references first.
// An empty path yields the defaults. Environment overrides and Validate
// are applied in both cases.
func Load(path string) (*domain.AppConfig, error) {
	cfg := domain.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve finds and loads the config, falling back to defaults when no
// file exists and none was requested explicitly.
func Resolve(explicit string) (*domain.AppConfig, string, error) {
	path, err := FindConfig(explicit)
	if err != nil {
		if explicit != "" || !errors.Is(err, ErrNoConfigFile) {
			return nil, "", err
		}
		path = ""
	}
	cfg, err := Load(path)
	return cfg, path, err
}

func applyEnv(cfg *domain.AppConfig) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Database.Path, "AULE_DB_PATH")
	set(&cfg.Listen.Addr, "AULE_LISTEN_ADDR")
	set(&cfg.Providers.LLM.LocalURL, "OLLAMA_HOST")
	set(&cfg.Providers.LLM.APIKey, "AULE_LLM_API_KEY")
	set(&cfg.MQTT.Broker, "AULE_MQTT_BROKER")
	set(&cfg.Inventory.BaseURL, "AULE_INVENTORY_URL")
	set(&cfg.LogLevel, "AULE_LOG_LEVEL")
}

// Validate rejects configurations the agent cannot run with.
func Validate(cfg *domain.AppConfig) error {
	var errs []error

	switch strings.ToLower(strings.TrimSpace(cfg.Providers.LLM.Mode)) {
	case "", "local":
	case "remote":
		if strings.TrimSpace(cfg.Providers.LLM.RemoteURL) == "" {
			errs = append(errs, errors.New("providers.llm.remote_url is required when mode=remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("providers.llm.mode %q is not local or remote", cfg.Providers.LLM.Mode))
	}

	if cfg.Agent.MaxRetries < 0 {
		errs = append(errs, errors.New("agent.max_retries must not be negative"))
	}
	if cfg.Agent.MaxNestingLevel < 1 {
		errs = append(errs, errors.New("agent.max_nesting_level must be at least 1"))
	}
	if cfg.Agent.CallTimeout < 0 {
		errs = append(errs, errors.New("agent.call_timeout must not be negative"))
	}

	s := cfg.Agent.Stream
	for name, v := range map[string]string{
		"plan_start_marker":        s.PlanStartMarker,
		"plan_field_marker":        s.PlanFieldMarker,
		"observation_start_marker": s.ObservationStartMarker,
		"observation_field_marker": s.ObservationFieldMarker,
	} {
		if v == "" {
			errs = append(errs, fmt.Errorf("agent.stream.%s must not be empty", name))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Masked returns a copy safe to log or serve: secrets are replaced.
func Masked(cfg *domain.AppConfig) *domain.AppConfig {
	cp := *cfg
	cp.Listen.AllowedOrigins = append([]string(nil), cfg.Listen.AllowedOrigins...)
	cp.Providers.LLM.APIKey = maskSecret(cfg.Providers.LLM.APIKey)
	cp.MQTT.Password = maskSecret(cfg.MQTT.Password)
	cp.Inventory.Token = maskSecret(cfg.Inventory.Token)
	return &cp
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		if s == "" {
			return ""
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
