// =============================================================================
// 📦 Memflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Memory:     DefaultMemoryConfig(),
		Extraction: DefaultExtractionConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultMemoryConfig 返回默认记忆子系统配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		DefaultScope:      "user",
		DefaultImportance: 0.5,
		ShortTermCap:      50,
		Decay: DecayConfig{
			Factor:   0.95,
			Floor:    0.1,
			Grace:    24 * time.Hour,
			Interval: time.Hour,
		},
		Consolidation: ConsolidationConfig{
			GroupThreshold: 10,
			Interval:       6 * time.Hour,
			RunTimeout:     5 * time.Minute,
			Parallelism:    4,
		},
	}
}

// DefaultExtractionConfig 返回默认抽取配置
func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		ModelEnabled: false,
		ModelTimeout: 10 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "memflow",
		Password:        "",
		Name:            "memflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "memflow",
		SampleRate:   0.1,
	}
}
