package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{
		"logLevel": "debug",
		"scenario": "nominal",
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "nominal", viper.GetString("scenario"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "stuck", viper.GetString("scenario"))
	assert.Equal(t, 60, viper.GetInt("clock.tickRate"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "operator_console", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, false, viper.GetBool("mqtt.enabled"))
	assert.Equal(t, false, viper.GetBool("redis.enabled"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")

	// defaults are still usable
	assert.Equal(t, 2*time.Second, GetTelemetryConfig().Interval)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("OPCON_API_LISTEN", ":9999")

	dir := t.TempDir()
	writeConfig(t, dir, `{ "api": { "listen": ":7000" } }`)
	require.NoError(t, Load(dir))

	assert.Equal(t, ":9999", GetAPIConfig().Listen)
}

func TestLoad_DotEnv(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Cleanup(func() { os.Unsetenv("OPCON_LOGSDIR") })

	dir := t.TempDir()
	writeConfig(t, dir, `{}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPCON_LOGSDIR=/var/log/console\n"), 0644))

	require.NoError(t, Load(dir))

	assert.Equal(t, "/var/log/console", GetString("logsDir"))
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetTelemetryConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{ "telemetry": { "interval": "500ms", "seed": 9 } }`)
	require.NoError(t, Load(dir))

	cfg := GetTelemetryConfig()
	assert.Equal(t, 500*time.Millisecond, cfg.Interval)
	assert.Equal(t, uint64(9), cfg.Seed)
	assert.True(t, cfg.AutoStart)
}

func TestGetTrafficConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{}`)
	require.NoError(t, Load(dir))

	cfg := GetTrafficConfig()
	assert.Equal(t, TrafficConfig{
		Visible:       true,
		AgentCount:    8,
		Seed:          1,
		LaneTolerance: 2,
		SafeDistance:  8,
		TickScale:     0.1,
		RoadLength:    120,
		Margin:        10,
	}, cfg)
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{}`)
	require.NoError(t, Load(dir))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, time.Second, cfg.FlushInterval)
	assert.Equal(t, 30, cfg.TrafficEvery)
	assert.Equal(t, "./recordings", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, "", cfg.SQLite.Path)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "path": "/tmp/console.db", "dumpInterval": "10m" }
		}
	}`)
	require.NoError(t, Load(dir))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
	assert.Equal(t, "/tmp/console.db", sc.SQLite.Path)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
}

func TestGetSinkConfigs_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{ "mqtt": { "enabled": true, "qos": 1 } }`)
	require.NoError(t, Load(dir))

	mq := GetMQTTConfig()
	assert.True(t, mq.Enabled)
	assert.Equal(t, byte(1), mq.QoS)
	assert.Equal(t, "tcp://localhost:1883", mq.Broker)
	assert.Equal(t, "console", mq.TopicPrefix)

	rc := GetRedisConfig()
	assert.False(t, rc.Enabled)
	assert.Equal(t, "localhost:6379", rc.Addr)
	assert.Equal(t, time.Minute, rc.TTL)

	ic := GetInfluxConfig()
	assert.Equal(t, "telemetry", ic.Bucket)
	assert.Equal(t, "http", ic.Protocol)

	assert.Equal(t, GeoConfig{}, GetGeoConfig())
	assert.Equal(t, "localhost:12201", GetGraylogConfig().Address)
	assert.Equal(t, "postgres", GetDBConfig().Username)
}

func TestWatch_ReportsChanges(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	writeConfig(t, dir, `{ "traffic": { "visible": true } }`)
	require.NoError(t, Load(dir))

	var changed atomic.Bool
	Watch(func(fsnotify.Event) { changed.Store(true) })

	writeConfig(t, dir, `{ "traffic": { "visible": false } }`)

	require.Eventually(t, changed.Load, 5*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool { return !GetTrafficConfig().Visible }, 5*time.Second, 20*time.Millisecond)
}
