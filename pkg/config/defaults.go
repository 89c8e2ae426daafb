package config

import "time"

const (
	defaultIntervalMs = 100
	defaultStartMs    = 1000
)

func applyDefaults(cfg *Config) {
	if cfg.EnvName == "" {
		cfg.EnvName = "nqos_split"
	}
	if cfg.EpisodesPerSession == 0 {
		cfg.EpisodesPerSession = 1
	}
	if cfg.StepsPerEpisode == 0 {
		cfg.StepsPerEpisode = 100
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8088
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = TransportZMQ
	}
	if cfg.Server.RecvTimeout == 0 {
		cfg.Server.RecvTimeout = 60 * time.Second
	}

	if cfg.RL.Agent == "" {
		cfg.RL.Agent = AgentSystemDefault
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "netgym"
	}
}
