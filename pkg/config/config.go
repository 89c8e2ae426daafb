// Package config loads the client configuration: a YAML file, overridden by
// NETGYM_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/boristopalov/networkgym/pkg/adapter"
	"github.com/boristopalov/networkgym/pkg/environment"
	"github.com/boristopalov/networkgym/pkg/northbound"
	"github.com/boristopalov/networkgym/pkg/wrappers"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

const (
	TransportZMQ      = "zmq"
	TransportLoopback = "loopback"

	AgentSystemDefault = "system_default"
	AgentRandom        = "random"
	AgentConstant      = "constant"
)

type Config struct {
	SessionName string `yaml:"session_name"`
	SessionKey  string `yaml:"session_key"`
	// ClientID is the first client id; multi-client runs count up from it.
	ClientID           int          `yaml:"client_id"`
	EnvName            string       `yaml:"env_name"`
	Server             ServerConfig `yaml:"server"`
	EpisodesPerSession int          `yaml:"episodes_per_session"`
	StepsPerEpisode    int          `yaml:"steps_per_episode"`
	MergeableMetrics   []string     `yaml:"mergeable_metrics"`
	// EnvConfig is sent to the server with env-start. Adapters read their parameters
	// from it too.
	EnvConfig map[string]any   `yaml:"env_config"`
	RL        RLConfig         `yaml:"rl_config"`
	Wrappers  wrappers.Options `yaml:"wrappers"`
	Logging   LogConfig        `yaml:"logging"`
	Telemetry TelemetryConfig  `yaml:"telemetry"`
	Recorder  RecorderConfig   `yaml:"recorder"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Transport is zmq for a real server or loopback for the in-process simulator.
	Transport   string        `yaml:"transport"`
	RecvTimeout time.Duration `yaml:"recv_timeout"`
}

type RLConfig struct {
	Agent          string    `yaml:"agent"`
	RewardType     string    `yaml:"reward_type"`
	ConstantAction []float64 `yaml:"constant_action"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}

type RecorderConfig struct {
	CSVPath    string `yaml:"csv_path"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and environment overrides, and validates.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks a Config for logical errors.
func Validate(cfg *Config) error {
	if cfg.SessionName == "" {
		return fmt.Errorf("%w: session_name is required", ErrInvalid)
	}
	if cfg.ClientID < 0 {
		return fmt.Errorf("%w: client_id must be >= 0, got %d", ErrInvalid, cfg.ClientID)
	}
	if !slices.Contains(adapter.Names(), cfg.EnvName) {
		return fmt.Errorf("%w: env_name %q is not one of %v", ErrInvalid, cfg.EnvName, adapter.Names())
	}
	if cfg.StepsPerEpisode < 2 {
		return fmt.Errorf("%w: steps_per_episode must be >= 2, got %d", ErrInvalid, cfg.StepsPerEpisode)
	}
	if cfg.EpisodesPerSession < 1 {
		return fmt.Errorf("%w: episodes_per_session must be >= 1, got %d", ErrInvalid, cfg.EpisodesPerSession)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be 1-65535, got %d", ErrInvalid, cfg.Server.Port)
	}
	if cfg.Server.Transport != TransportZMQ && cfg.Server.Transport != TransportLoopback {
		return fmt.Errorf("%w: server.transport must be %s or %s, got %q", ErrInvalid, TransportZMQ, TransportLoopback, cfg.Server.Transport)
	}
	if cfg.Server.RecvTimeout <= 0 {
		return fmt.Errorf("%w: server.recv_timeout must be positive", ErrInvalid)
	}
	if err := validateTiming(cfg.EnvConfig); err != nil {
		return err
	}
	if err := validateIntervals(cfg.EnvConfig); err != nil {
		return err
	}
	if cfg.StepLengthMs() <= 0 {
		return fmt.Errorf("%w: env_config measurement period must be positive", ErrInvalid)
	}
	switch cfg.RL.Agent {
	case AgentSystemDefault, AgentRandom:
	case AgentConstant:
		if len(cfg.RL.ConstantAction) == 0 {
			return fmt.Errorf("%w: rl_config.constant_action is required for the constant agent", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: rl_config.agent %q is not one of %s, %s, %s",
			ErrInvalid, cfg.RL.Agent, AgentSystemDefault, AgentRandom, AgentConstant)
	}
	if r := cfg.Wrappers.Rescale; r != nil && !(r.Low < r.High) {
		return fmt.Errorf("%w: wrappers.rescale needs low < high, got [%v, %v]", ErrInvalid, r.Low, r.High)
	}
	if _, err := cfg.Logging.level(); err != nil {
		return err
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("%w: logging.format must be text or json, got %q", ErrInvalid, cfg.Logging.Format)
	}
	return nil
}

// validateTiming requires the top-level timing keys, when present, to be non-negative
// numbers. StepLengthMs and EnvEndTimeMs read them.
func validateTiming(envConfig map[string]any) error {
	for _, key := range []string{"measurement_start_time_ms", "measurement_interval_ms", "measurement_guard_interval_ms"} {
		v, err := number(envConfig, key, 0)
		if err != nil {
			return fmt.Errorf("%w: env_config: %w", ErrInvalid, err)
		}
		if v < 0 {
			return fmt.Errorf("%w: env_config.%s must be >= 0, got %v", ErrInvalid, key, v)
		}
	}
	return nil
}

// validateIntervals requires GMA, Wi-Fi and LTE to measure on the same period when
// the env_config has a GMA section.
func validateIntervals(envConfig map[string]any) error {
	if _, ok := envConfig["GMA"]; !ok {
		return nil
	}
	var want float64
	for i, section := range []string{"GMA", "Wi-Fi", "LTE"} {
		period, err := sectionPeriod(envConfig, section)
		if err != nil {
			return err
		}
		if i == 0 {
			want = period
			continue
		}
		if period != want {
			return fmt.Errorf("%w: env_config.%s measurement period is %v ms, GMA uses %v ms", ErrInvalid, section, period, want)
		}
	}
	return nil
}

func sectionPeriod(envConfig map[string]any, section string) (float64, error) {
	m, ok := envConfig[section].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("%w: env_config.%s must be a mapping", ErrInvalid, section)
	}
	interval, err := number(m, "measurement_interval_ms", -1)
	if err != nil || interval < 0 {
		return 0, fmt.Errorf("%w: env_config.%s.measurement_interval_ms is required", ErrInvalid, section)
	}
	guard, err := number(m, "measurement_guard_interval_ms", 0)
	if err != nil {
		return 0, fmt.Errorf("%w: env_config.%s: %w", ErrInvalid, section, err)
	}
	return interval + guard, nil
}

// Identity is the name the first client registers with: session_name-client_id.
func (c *Config) Identity() string {
	return c.IdentityFor(c.ClientID)
}

// IdentityFor names client id within the session.
func (c *Config) IdentityFor(id int) string {
	return fmt.Sprintf("%s-%d", c.SessionName, id)
}

// StepLengthMs is the simulated time one timestep covers.
func (c *Config) StepLengthMs() float64 {
	src := c.EnvConfig
	if gma, ok := src["GMA"].(map[string]any); ok {
		src = gma
	}
	interval, _ := number(src, "measurement_interval_ms", defaultIntervalMs)
	guard, _ := number(src, "measurement_guard_interval_ms", 0)
	return interval + guard
}

// EnvEndTimeMs is when the server stops the simulation. Every episode spends one
// timestep on its reset plus steps_per_episode steps.
func (c *Config) EnvEndTimeMs() int64 {
	start, _ := number(c.EnvConfig, "measurement_start_time_ms", defaultStartMs)
	timesteps := c.EpisodesPerSession * (c.StepsPerEpisode + 1)
	return int64(start + c.StepLengthMs()*float64(timesteps))
}

// ServerEnvConfig is the env_config sent with env-start: the configured section plus
// the session limits and the derived end time.
func (c *Config) ServerEnvConfig() map[string]any {
	out := maps.Clone(c.EnvConfig)
	if out == nil {
		out = make(map[string]any)
	}
	if gma, ok := out["GMA"].(map[string]any); ok {
		for _, k := range []string{"measurement_interval_ms", "measurement_guard_interval_ms"} {
			if v, ok := gma[k]; ok {
				out[k] = v
			}
		}
	}
	out["env"] = c.EnvName
	out["steps_per_episode"] = c.StepsPerEpisode
	out["episodes_per_session"] = c.EpisodesPerSession
	out["env_end_time_ms"] = c.EnvEndTimeMs()
	return out
}

// Endpoint returns the server endpoint for client id.
func (c *Config) Endpoint(id int) northbound.Endpoint {
	return northbound.Endpoint{
		Host:        c.Server.Host,
		Port:        c.Server.Port,
		Identity:    c.IdentityFor(id),
		Username:    c.SessionName,
		Password:    c.SessionKey,
		RecvTimeout: c.Server.RecvTimeout,
	}
}

// Environment returns the environment configuration for client id.
func (c *Config) Environment(id int) environment.Config {
	return environment.Config{
		EnvName:            c.EnvName,
		EpisodesPerSession: c.EpisodesPerSession,
		StepsPerEpisode:    c.StepsPerEpisode,
		Endpoint:           c.Endpoint(id),
		EnvConfig:          c.ServerEnvConfig(),
		Mergeable:          c.MergeableMetrics,
	}
}

// AdapterParams returns what the adapter for env_name is built from.
func (c *Config) AdapterParams() adapter.Params {
	return adapter.Params{EnvConfig: c.EnvConfig, RewardType: c.RL.RewardType}
}

func (l LogConfig) level() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: logging.level %q is not one of debug, info, warn, error", ErrInvalid, l.Level)
	}
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = envStr("NETGYM_HOST", cfg.Server.Host)
	cfg.Server.Port = envInt("NETGYM_PORT", cfg.Server.Port)
	cfg.SessionName = envStr("NETGYM_SESSION_NAME", cfg.SessionName)
	cfg.SessionKey = envStr("NETGYM_SESSION_KEY", cfg.SessionKey)
	cfg.Logging.Level = envStr("NETGYM_LOG_LEVEL", cfg.Logging.Level)
	cfg.Telemetry.OTLPEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// number reads a numeric env_config entry. YAML decodes integers as int.
func number(m map[string]any, key string, def float64) (float64, error) {
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}
