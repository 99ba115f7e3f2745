package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса мешинга.
type Config struct {
	World    WorldConfig    `yaml:"world"`
	Lighting LightingConfig `yaml:"lighting"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Storage  StorageConfig  `yaml:"storage"`
	Cache    CacheConfig    `yaml:"cache"`
	EventBus EventBusConfig `yaml:"eventbus"`
	Server   ServerConfig   `yaml:"server"`
	Debug    DebugConfig    `yaml:"debug"`
	Blocks   BlocksConfig   `yaml:"blocks"`
	Log      LogConfig      `yaml:"log"`
}

type WorldConfig struct {
	ChunkSize int   `yaml:"chunk_size"`
	Seed      int64 `yaml:"seed"`
	// Radius радиус демо-мира в чанках по X/Z
	Radius int `yaml:"radius"`
	Height int `yaml:"height_chunks"`
}

type LightingConfig struct {
	MaxLight         int `yaml:"max_light"`
	SkyAttenuation   int `yaml:"sky_attenuation"`
	BlockAttenuation int `yaml:"block_attenuation"`
	// BeaconAttenuation затухание маяка строго вверх; в стороны используется BlockAttenuation
	BeaconAttenuation int `yaml:"beacon_attenuation"`
	LightBins         int `yaml:"light_bins"`
	// ExportField прикладывать к мешу поле освещённости по блокам
	ExportField bool `yaml:"export_field"`
}

type RuntimeConfig struct {
	Workers       int `yaml:"workers"`
	QueueSize     int `yaml:"queue_size"`
	ResultsBuffer int `yaml:"results_buffer"`
	// TickMillis период применения пакета результатов
	TickMillis int `yaml:"tick_millis"`
}

type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CacheConfig горячий кеш мешей в Redis; пустой RedisURL отключает кеш
type CacheConfig struct {
	RedisURL    string `yaml:"redis_url"`
	RedisDB     int    `yaml:"redis_db"`
	KeyPrefix   string `yaml:"key_prefix"`
	TTLSeconds  int    `yaml:"ttl_seconds"`
	WriteBehind bool   `yaml:"write_behind"`
}

// TTL срок жизни меша в кеше
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

type ServerConfig struct {
	APIPort     int    `yaml:"api_port"`
	MetricsPort int    `yaml:"metrics_port"`
	Tracing     bool   `yaml:"tracing"`
	ServiceName string `yaml:"service_name"`
}

type DebugConfig struct {
	StrictInvariants bool `yaml:"strict_invariants"`
}

type BlocksConfig struct {
	// Path путь к YAML реестру блоков, пустой путь означает встроенный реестр
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Files bool   `yaml:"files"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		World: WorldConfig{ChunkSize: 16, Seed: 1337, Radius: 2, Height: 2},
		Lighting: LightingConfig{
			MaxLight:          255,
			SkyAttenuation:    16,
			BlockAttenuation:  16,
			BeaconAttenuation: 1,
			LightBins:         16,
		},
		Runtime:  RuntimeConfig{QueueSize: 1024, ResultsBuffer: 256, TickMillis: 16},
		Storage:  StorageConfig{Path: "data"},
		Cache:    CacheConfig{KeyPrefix: "voxel", TTLSeconds: 3600},
		EventBus: EventBusConfig{Stream: "EVENTS", Retention: 24, Buffer: 1024},
		Server:   ServerConfig{ServiceName: "voxel-surface"},
		Log:      LogConfig{Level: "INFO"},
	}
}

// GetAPIPort возвращает порт отладочного API с поддержкой fallback значений
func (s *ServerConfig) GetAPIPort() int {
	return getIntWithEnvFallback(s.APIPort, "VOXEL_API_PORT", 8090)
}

// GetMetricsPort возвращает порт Prometheus метрик с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getIntWithEnvFallback(s.MetricsPort, "VOXEL_METRICS_PORT", 2113)
}

// GetWorkers возвращает число воркеров (0 означает определить по числу ядер).
func (r *RuntimeConfig) GetWorkers() int {
	return getIntWithEnvFallback(r.Workers, "VOXEL_WORKERS", 0)
}

// TickInterval период тика координатора.
func (r *RuntimeConfig) TickInterval() time.Duration {
	if r.TickMillis <= 0 {
		return 16 * time.Millisecond
	}
	return time.Duration(r.TickMillis) * time.Millisecond
}

// RetentionDuration срок хранения событий в стриме.
func (e *EventBusConfig) RetentionDuration() time.Duration {
	return time.Duration(e.Retention) * time.Hour
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configVal int, envVar string, defaultVal int) int {
	if configVal > 0 {
		return configVal
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	return defaultVal
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	if c.World.ChunkSize <= 0 || c.World.ChunkSize > 64 {
		return fmt.Errorf("world.chunk_size вне диапазона 1..64: %d", c.World.ChunkSize)
	}
	l := c.Lighting
	if l.MaxLight <= 0 || l.MaxLight > 255 {
		return fmt.Errorf("lighting.max_light вне диапазона 1..255: %d", l.MaxLight)
	}
	for name, v := range map[string]int{
		"sky_attenuation":    l.SkyAttenuation,
		"block_attenuation":  l.BlockAttenuation,
		"beacon_attenuation": l.BeaconAttenuation,
	} {
		if v <= 0 || v > 255 {
			return fmt.Errorf("lighting.%s вне диапазона 1..255: %d", name, v)
		}
	}
	if l.LightBins <= 0 || l.LightBins > 256 {
		return fmt.Errorf("lighting.light_bins вне диапазона 1..256: %d", l.LightBins)
	}
	if c.Runtime.QueueSize <= 0 {
		return fmt.Errorf("runtime.queue_size должен быть положительным")
	}
	return nil
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV VOXEL_CONFIG, иначе возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
