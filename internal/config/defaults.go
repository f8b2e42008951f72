package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			MaxConcurrentMessages: 5,
			CharactersDir:         "~/.personabot/characters",
			DefaultAgent:          "stern",
		},
		Memory: MemoryConfig{
			Driver:      "sqlite",
			DBPath:      "~/.personabot/memory.db",
			RecentLimit: 20,
		},
		LLM: LLMConfig{
			Provider:   "openai",
			SmallModel: "gpt-4o-mini",
			LargeModel: "gpt-4o",
		},
		Routing: RoutingConfig{
			Strategy: "keyword",
		},
		Channels: ChannelsConfig{
			Network: NetworkConfig{
				Enabled:   true,
				Host:      "127.0.0.1",
				Port:      3000,
				WebSocket: true,
			},
			Twitter: TwitterConfig{
				APIBase:                "https://api.twitter.com/2",
				PollingIntervalMinutes: 2,
				RateLimitPerMinute:     15,
			},
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
