package config

// DefaultAutorateConfig returns the coded defaults the YAML document is
// deep-merged over (§4.7: "deep-merge defaults with YAML values").
func DefaultAutorateConfig() *AutorateConfig {
	return &AutorateConfig{
		WANName: "wan",
		Queues:  Queues{Download: "download", Upload: "upload"},
		Download: DirectionConfig{
			MaxCapacityBps: 940_000_000,
			MinCapacityBps: 50_000_000,
			Floors: DirectionFloors{
				Green: 940_000_000, Yellow: 800_000_000,
				SoftRed: 500_000_000, Red: 200_000_000,
			},
		},
		Upload: DirectionConfig{
			MaxCapacityBps: 100_000_000,
			MinCapacityBps: 10_000_000,
			Floors: DirectionFloors{
				Green: 100_000_000, Yellow: 60_000_000, Red: 20_000_000,
			},
		},
		Thresholds: ThresholdsConfig{
			YellowMs: 5, SoftRedMs: 15, RedMs: 30,
			UploadYellowMs: 5, UploadRedMs: 20,
			UpSamplesRequired: 8, DownSamplesRequired: 60,
		},
		EWMA: EWMAConfig{
			AlphaBaseline: 0.001, AlphaLoad: 0.05, BaselineUpdateThresholdMs: 5,
		},
		Ping: PingConfig{
			Hosts: []string{"1.1.1.1", "8.8.8.8", "9.9.9.9"},
			Count: 3, MedianOf: 3, TimeoutSeconds: 2,
			MaxConcurrentProbes: 8,
		},
		Fallback: FallbackConfig{
			Mode: FallbackGracefulDegradation, MaxConsecutiveFailures: 3,
		},
		CycleIntervalMs: 50,
		StateFile:       "/var/lib/wanctl/autorate-state.json",
		LockFile:        "/run/wanctl/autorate.lock",
		Router: RouterConfig{
			Transport: TransportREST, TimeoutSeconds: 10,
		},
		Health:             HealthConfig{Host: "127.0.0.1", Port: 9101},
		Metrics:            MetricsConfig{Enabled: true},
		Storage:            StorageConfig{DBPath: "/var/lib/wanctl/metrics.db", RetentionDays: 30},
		RateLimitMaxWrites: 10,
		RateLimitWindowSec: 60,
	}
}

// DefaultSteerConfig returns the coded defaults for the steering daemon.
func DefaultSteerConfig() *SteerConfig {
	return &SteerConfig{
		IntervalMs: 50,
		Assessment: AssessmentConfig{
			RTTThresholdMs: 30, CakeDropsThreshold: 5, CakeQueueDepthThreshold: 50,
		},
		CakeStateSources:     CakeStateSources{Primary: "/var/lib/wanctl/autorate-state.json"},
		CakeAwareEnabled:     false,
		RedSamplesRequired:   16,
		GreenSamplesRequired: 60,
		HistorySize:          2400,
		Confidence:           ConfidenceConfig{Enabled: false, DryRun: true},
		Router:               RouterConfig{Transport: TransportREST, TimeoutSeconds: 10},
		Health:               HealthConfig{Host: "127.0.0.1", Port: 9102},
		Metrics:              MetricsConfig{Enabled: true},
		Storage:              StorageConfig{DBPath: "/var/lib/wanctl/metrics.db", RetentionDays: 30},
		StateFile:            "/var/lib/wanctl/steer-state.json",
		LockFile:             "/run/wanctl/steer.lock",
		MangleComment:        "wanctl-steer-away",
	}
}
