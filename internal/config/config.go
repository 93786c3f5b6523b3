package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "operator_console.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. OPCON_API_LISTEN.
const EnvPrefix = "OPCON"

// TelemetryConfig controls the telemetry stream.
type TelemetryConfig struct {
	Interval  time.Duration `json:"interval" mapstructure:"interval"`
	Seed      uint64        `json:"seed" mapstructure:"seed"`
	AutoStart bool          `json:"autoStart" mapstructure:"autoStart"`
}

// TrafficConfig holds the traffic simulation constants and layer visibility.
type TrafficConfig struct {
	Visible       bool    `json:"visible" mapstructure:"visible"`
	AgentCount    int     `json:"agentCount" mapstructure:"agentCount"`
	Seed          uint64  `json:"seed" mapstructure:"seed"`
	LaneTolerance float64 `json:"laneTolerance" mapstructure:"laneTolerance"`
	SafeDistance  float64 `json:"safeDistance" mapstructure:"safeDistance"`
	TickScale     float64 `json:"tickScale" mapstructure:"tickScale"`
	RoadLength    float64 `json:"roadLength" mapstructure:"roadLength"`
	Margin        float64 `json:"margin" mapstructure:"margin"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds sqlite storage backend settings. An empty Path keeps the
// database in memory and dumps it to DumpPath every DumpInterval.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// StorageConfig selects and configures the recording backend.
type StorageConfig struct {
	Type          string        `json:"type" mapstructure:"type"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
	TrafficEvery  int           `json:"trafficEvery" mapstructure:"trafficEvery"`
	Memory        MemoryConfig  `json:"memory" mapstructure:"memory"`
	SQLite        SQLiteConfig  `json:"sqlite" mapstructure:"sqlite"`
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// APIConfig controls the HTTP API.
type APIConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// GeoConfig anchors the scene origin on the globe.
type GeoConfig struct {
	AnchorLon float64 `json:"anchorLon" mapstructure:"anchorLon"`
	AnchorLat float64 `json:"anchorLat" mapstructure:"anchorLat"`
}

// InfluxConfig holds InfluxDB settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// MQTTConfig holds the MQTT publisher settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	Broker      string `json:"broker" mapstructure:"broker"`
	ClientID    string `json:"clientId" mapstructure:"clientId"`
	Username    string `json:"username" mapstructure:"username"`
	Password    string `json:"password" mapstructure:"password"`
	TopicPrefix string `json:"topicPrefix" mapstructure:"topicPrefix"`
	QoS         byte   `json:"qos" mapstructure:"qos"`
}

// RedisConfig holds the latest-state cache settings.
type RedisConfig struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	Addr      string        `json:"addr" mapstructure:"addr"`
	Password  string        `json:"password" mapstructure:"password"`
	DB        int           `json:"db" mapstructure:"db"`
	KeyPrefix string        `json:"keyPrefix" mapstructure:"keyPrefix"`
	TTL       time.Duration `json:"ttl" mapstructure:"ttl"`
}

// WebSocketConfig holds the live viewer stream settings.
type WebSocketConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// GraylogConfig holds the GELF log sink settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("scenario", "stuck")

	viper.SetDefault("telemetry.interval", "2s")
	viper.SetDefault("telemetry.seed", 1)
	viper.SetDefault("telemetry.autoStart", true)

	viper.SetDefault("clock.tickRate", 60)

	viper.SetDefault("traffic.visible", true)
	viper.SetDefault("traffic.agentCount", 8)
	viper.SetDefault("traffic.seed", 1)
	viper.SetDefault("traffic.laneTolerance", 2.0)
	viper.SetDefault("traffic.safeDistance", 8.0)
	viper.SetDefault("traffic.tickScale", 0.1)
	viper.SetDefault("traffic.roadLength", 120.0)
	viper.SetDefault("traffic.margin", 10.0)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.flushInterval", "1s")
	viper.SetDefault("storage.trafficEvery", 30)
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "./recordings/console.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "operator_console")

	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.listen", ":8080")

	viper.SetDefault("geo.anchorLon", 0.0)
	viper.SetDefault("geo.anchorLat", 0.0)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "operator-console")
	viper.SetDefault("influx.bucket", "telemetry")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientId", "operator-console")
	viper.SetDefault("mqtt.topicPrefix", "console")
	viper.SetDefault("mqtt.qos", 0)

	viper.SetDefault("websocket.enabled", false)
	viper.SetDefault("websocket.url", "ws://localhost:5000/api/v1/stream")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.keyPrefix", "console")
	viper.SetDefault("redis.ttl", "1m")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
}

// Load sets default values, loads a .env file from configDir if present,
// enables OPCON_* environment overrides and reads the JSON config file.
// configDir is the directory containing the config file. A missing config
// file is reported as an error; defaults stay in effect.
func Load(configDir string) error {
	setDefaults()

	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error reading .env file: %w", err)
	}
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Watch calls onChange whenever the config file changes on disk.
func Watch(onChange func(fsnotify.Event)) {
	viper.OnConfigChange(onChange)
	viper.WatchConfig()
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetTelemetryConfig returns the telemetry stream settings.
func GetTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Interval:  viper.GetDuration("telemetry.interval"),
		Seed:      viper.GetUint64("telemetry.seed"),
		AutoStart: viper.GetBool("telemetry.autoStart"),
	}
}

// GetTrafficConfig returns the traffic simulation settings.
func GetTrafficConfig() TrafficConfig {
	return TrafficConfig{
		Visible:       viper.GetBool("traffic.visible"),
		AgentCount:    viper.GetInt("traffic.agentCount"),
		Seed:          viper.GetUint64("traffic.seed"),
		LaneTolerance: viper.GetFloat64("traffic.laneTolerance"),
		SafeDistance:  viper.GetFloat64("traffic.safeDistance"),
		TickScale:     viper.GetFloat64("traffic.tickScale"),
		RoadLength:    viper.GetFloat64("traffic.roadLength"),
		Margin:        viper.GetFloat64("traffic.margin"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:          viper.GetString("storage.type"),
		FlushInterval: viper.GetDuration("storage.flushInterval"),
		TrafficEvery:  viper.GetInt("storage.trafficEvery"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
	}
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetAPIConfig returns the HTTP API settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		Enabled: viper.GetBool("api.enabled"),
		Listen:  viper.GetString("api.listen"),
	}
}

// GetGeoConfig returns the georeferencing anchor.
func GetGeoConfig() GeoConfig {
	return GeoConfig{
		AnchorLon: viper.GetFloat64("geo.anchorLon"),
		AnchorLat: viper.GetFloat64("geo.anchorLat"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetMQTTConfig returns the MQTT publisher settings.
func GetMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Enabled:     viper.GetBool("mqtt.enabled"),
		Broker:      viper.GetString("mqtt.broker"),
		ClientID:    viper.GetString("mqtt.clientId"),
		Username:    viper.GetString("mqtt.username"),
		Password:    viper.GetString("mqtt.password"),
		TopicPrefix: viper.GetString("mqtt.topicPrefix"),
		QoS:         byte(viper.GetUint("mqtt.qos")),
	}
}

// GetRedisConfig returns the Redis cache settings.
func GetRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:   viper.GetBool("redis.enabled"),
		Addr:      viper.GetString("redis.addr"),
		Password:  viper.GetString("redis.password"),
		DB:        viper.GetInt("redis.db"),
		KeyPrefix: viper.GetString("redis.keyPrefix"),
		TTL:       viper.GetDuration("redis.ttl"),
	}
}

// GetGraylogConfig returns the GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetWebSocketConfig returns the live viewer stream settings.
func GetWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		Enabled: viper.GetBool("websocket.enabled"),
		URL:     viper.GetString("websocket.url"),
		Secret:  viper.GetString("websocket.secret"),
	}
}
