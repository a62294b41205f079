// internal/config/load_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
buses:
  - name: rs485-0
    link:
      address: /dev/ttyUSB0
    sources: [2]
    channels: [A0, A1, A2, A3]
`

const fullYAML = `
logging: {level: debug, file: /tmp/acq.log}
http: {listen: "0.0.0.0:9200", rate_limit: 5, burst: 10}
buffer: {capacity: 1000}
buses:
  - name: rs485-0
    link: {transport: rtu, address: /dev/ttyUSB0, baud_rate: 57600, data_bits: 8, parity: e, stop_bits: 1, timeout: 3s}
    retry: {max_retries: 5, retry_delay: 5s, reset_after: 30s}
    decode: {divisor: 100, signed: true}
    poll: {interval: 100ms, min_yield: 1ms, start_enabled: false}
    sources: [2, 3]
    channels: [A0, A1, A2]
  - name: gateway
    link: {transport: tcp, address: "10.0.0.5:502", timeout: 1s}
    sources: [1]
    channels: [V1, V2, V3, V4]
consumers:
  rates: {interval: 2s, window: 1s}
  mqtt: {enabled: true, broker: "tcp://broker:1883", topic_prefix: plant/acq, qos: 1}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acquire.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, DefaultListen, cfg.HTTP.Listen)
	assert.Equal(t, 500, cfg.Buffer.Capacity)

	require.Len(t, cfg.Buses, 1)
	b := cfg.Buses[0]
	assert.Equal(t, "rtu", b.Link.Transport)
	assert.Equal(t, 115200, b.Link.BaudRate)
	assert.Equal(t, 8, b.Link.DataBits)
	assert.Equal(t, "N", b.Link.Parity)
	assert.Equal(t, 1, b.Link.StopBits)
	assert.Equal(t, 2*time.Second, b.Link.Timeout)
	assert.Equal(t, 3, b.Retry.MaxRetries)
	assert.Equal(t, time.Second, b.Retry.Delay())
	assert.Zero(t, b.Retry.ResetAfter)
	assert.Equal(t, 1000.0, b.Decode.Divisor)
	assert.Equal(t, time.Millisecond, b.Poll.MinYield)
	assert.True(t, b.Poll.Enabled())

	assert.Equal(t, time.Second, cfg.Consumers.Rates.Interval)
	assert.False(t, cfg.Consumers.MQTT.Enabled)
	assert.Equal(t, "acq", cfg.Consumers.MQTT.TopicPrefix)
}

func TestLoad_Full(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 1000, cfg.Buffer.Capacity)
	require.Len(t, cfg.Buses, 2)

	b := cfg.Buses[0]
	assert.Equal(t, 57600, b.Link.BaudRate)
	assert.Equal(t, "E", b.Link.Parity)
	assert.Equal(t, 30*time.Second, b.Retry.ResetAfter)
	assert.True(t, b.Decode.Signed)
	assert.False(t, b.Poll.Enabled())
	assert.Equal(t, []uint8{2, 3}, b.Sources)

	g := cfg.Buses[1]
	assert.Equal(t, "tcp", g.Link.Transport)
	assert.Zero(t, g.Link.BaudRate)

	m := cfg.Consumers.MQTT
	assert.True(t, m.Enabled)
	assert.Equal(t, byte(1), m.QoS)
	assert.Equal(t, "plant/acq", m.TopicPrefix)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ACQ_LOG_LEVEL", "warn")
	t.Setenv("ACQ_SERIAL_PORT", "/dev/ttyACM0")
	t.Setenv("ACQ_BAUD_RATE", "9600")
	t.Setenv("ACQ_RETRY_DELAY", "250ms")
	t.Setenv("ACQ_MQTT_ENABLED", "true")
	t.Setenv("ACQ_MQTT_BROKER", "tcp://env:1883")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/dev/ttyACM0", cfg.Buses[0].Link.Address)
	assert.Equal(t, 9600, cfg.Buses[0].Link.BaudRate)
	assert.Equal(t, 250*time.Millisecond, cfg.Buses[0].Retry.Delay())
	assert.True(t, cfg.Consumers.MQTT.Enabled)
	assert.Equal(t, "tcp://env:1883", cfg.Consumers.MQTT.Broker)
}

func TestLoad_BadEnvValueIgnored(t *testing.T) {
	t.Setenv("ACQ_BAUD_RATE", "fast")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, DefaultBaudRate, cfg.Buses[0].Link.BaudRate)
}

func TestLoad_EnvBreaksValidation(t *testing.T) {
	t.Setenv("ACQ_BAUD_RATE", "1200")

	_, err := Load(writeConfig(t, minimalYAML))
	assert.ErrorContains(t, err, "configuration validation failed")
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(""))
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ACQ_TEST_DOTENV=from-file\n"), 0o600))
	t.Setenv("ACQ_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("ACQ_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("ACQ_TEST_DOTENV"))
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "acquire.yaml"))
	require.NoError(t, err)
	require.Len(t, cfg.Buses, 1)
	assert.Equal(t, []string{"A0", "A1", "A2", "A3"}, cfg.Buses[0].Channels)
	assert.Equal(t, "N", cfg.Buses[0].Link.Parity)
}

func TestLoad_ZeroRetryDelayKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
buses:
  - name: rs485-0
    link: {address: /dev/ttyUSB0}
    retry: {max_retries: 3, retry_delay: 0s}
    sources: [2]
    channels: [A0, A1, A2]
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.Buses[0].Retry.RetryDelay)
	assert.Zero(t, cfg.Buses[0].Retry.Delay())
}

func TestLoad_SourceSharedAcrossBuses(t *testing.T) {
	_, err := Load(writeConfig(t, `
buses:
  - name: port-0
    link: {address: /dev/ttyUSB0}
    sources: [2]
    channels: [A0, A1, A2]
  - name: port-1
    link: {address: /dev/ttyUSB1}
    sources: [2]
    channels: [A0, A1, A2]
`))
	assert.ErrorContains(t, err, "source collision")
}
