package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabili207/ax25-go/core/dedupe"
	"github.com/kabili207/ax25-go/device/monitor"
)

const sampleConfig = `
log:
  level: debug
  timestamps: true
serial:
  port: /dev/ttyUSB0
  baud: 9600
mqtt:
  broker: tcp://localhost:1883
  channel: "144.390"
  client_id: igate-1
monitor:
  forward: true
  forward_delay: 250ms
  hexdump: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ax25mon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Timestamps)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "144.390", cfg.MQTT.Channel)
	assert.Equal(t, "igate-1", cfg.MQTT.ClientID)
	assert.Equal(t, "ax25", cfg.MQTT.TopicPrefix)
	assert.True(t, cfg.Monitor.Forward)
	assert.False(t, cfg.Monitor.ForwardToRF, "transmitting is opt-in")
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.ForwardDelay)
	assert.True(t, cfg.Monitor.Hexdump)
	assert.Equal(t, dedupe.DefaultMaxFrameHashes, cfg.Monitor.DedupeSize)
	assert.Equal(t, monitor.DefaultMaxHeard, cfg.Monitor.MaxHeard)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("serial:\n  prot: /dev/ttyS0\n"))
	assert.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestValidate_Defaults(t *testing.T) {
	cfg := Config{Serial: SerialConfig{Port: "/dev/ttyUSB0"}}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, "ax25", cfg.MQTT.TopicPrefix)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "no transport",
			cfg:  Config{},
			want: "at least one of serial.port or mqtt.broker is required",
		},
		{
			name: "broker without channel",
			cfg:  Config{MQTT: MQTTConfig{Broker: "tcp://localhost:1883"}},
			want: "mqtt.channel is required",
		},
		{
			name: "forward with one transport",
			cfg: Config{
				Serial:  SerialConfig{Port: "/dev/ttyUSB0"},
				Monitor: MonitorConfig{Forward: true},
			},
			want: "monitor.forward requires",
		},
		{
			name: "bad log level",
			cfg: Config{
				Log:    LogConfig{Level: "chatty"},
				Serial: SerialConfig{Port: "/dev/ttyUSB0"},
			},
			want: "log.level",
		},
		{
			name: "rf forwarding without forward",
			cfg: Config{
				Serial:  SerialConfig{Port: "/dev/ttyUSB0"},
				MQTT:    MQTTConfig{Broker: "tcp://localhost:1883", Channel: "aprs"},
				Monitor: MonitorConfig{ForwardToRF: true},
			},
			want: "monitor.forward_to_rf requires monitor.forward",
		},
		{
			name: "negative dedupe size",
			cfg: Config{
				Serial:  SerialConfig{Port: "/dev/ttyUSB0"},
				Monitor: MonitorConfig{DedupeSize: -1},
			},
			want: "monitor.dedupe_size",
		},
		{
			name: "negative baud",
			cfg:  Config{Serial: SerialConfig{Port: "/dev/ttyUSB0", Baud: -9600}},
			want: "serial.baud",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFlags_OverrideFile(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	fs, opts := newFlagSet()
	require.NoError(t, fs.Parse([]string{"-p", "/dev/ttyACM0", "--log-level", "warn", "--forward=false", "--forward-to-rf"}))
	opts.apply(fs, &cfg)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.False(t, cfg.Monitor.Forward)
	assert.True(t, cfg.Monitor.ForwardToRF)
	// Flags left at their defaults do not clobber file values.
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.True(t, cfg.Monitor.Hexdump)
}
