package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kabili207/ax25-go/core/dedupe"
	"github.com/kabili207/ax25-go/device/monitor"
	"github.com/kabili207/ax25-go/transport/mqtt"
	"github.com/kabili207/ax25-go/transport/serial"
)

// Config is the ax25mon configuration file.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Serial  SerialConfig  `yaml:"serial"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Monitor MonitorConfig `yaml:"monitor"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Timestamps bool   `yaml:"timestamps"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TLS         bool   `yaml:"tls"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Channel     string `yaml:"channel"`
}

type MonitorConfig struct {
	Forward      bool          `yaml:"forward"`
	ForwardToRF  bool          `yaml:"forward_to_rf"`
	ForwardDelay time.Duration `yaml:"forward_delay"`
	DedupeSize   int           `yaml:"dedupe_size"`
	MaxHeard     int           `yaml:"max_heard"`
	Hexdump      bool          `yaml:"hexdump"`
}

// Load reads a YAML configuration file. Unknown keys are rejected. Defaults
// are not applied; call Validate once flag overrides are in place.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML configuration from b.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate applies defaults and checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if _, err := charmlog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if c.Serial.Baud == 0 {
		c.Serial.Baud = serial.DefaultBaudRate
	}
	if c.Serial.Baud < 0 {
		return fmt.Errorf("serial.baud must be > 0")
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = mqtt.DefaultTopicPrefix
	}
	if c.MQTT.Broker != "" && c.MQTT.Channel == "" {
		return fmt.Errorf("mqtt.channel is required when mqtt.broker is set")
	}

	if c.Serial.Port == "" && c.MQTT.Broker == "" {
		return fmt.Errorf("at least one of serial.port or mqtt.broker is required")
	}
	if c.Monitor.Forward && (c.Serial.Port == "" || c.MQTT.Broker == "") {
		return fmt.Errorf("monitor.forward requires both serial.port and mqtt.broker")
	}

	if c.Monitor.ForwardToRF && !c.Monitor.Forward {
		return fmt.Errorf("monitor.forward_to_rf requires monitor.forward")
	}

	if c.Monitor.DedupeSize == 0 {
		c.Monitor.DedupeSize = dedupe.DefaultMaxFrameHashes
	}
	if c.Monitor.DedupeSize < 0 {
		return fmt.Errorf("monitor.dedupe_size must be > 0")
	}
	if c.Monitor.MaxHeard == 0 {
		c.Monitor.MaxHeard = monitor.DefaultMaxHeard
	}
	if c.Monitor.MaxHeard < 0 {
		return fmt.Errorf("monitor.max_heard must be > 0")
	}
	if c.Monitor.ForwardDelay < 0 {
		return fmt.Errorf("monitor.forward_delay must not be negative")
	}

	return nil
}

// options holds the command-line flags.
type options struct {
	configPath string
	decode     string
	port       string
	baud       int
	broker     string
	channel    string
	forward    bool
	forwardRF  bool
	logLevel   string
	hexdump    bool
}

func newFlagSet() (*pflag.FlagSet, *options) {
	o := &options{}
	fs := pflag.NewFlagSet("ax25mon", pflag.ContinueOnError)
	fs.StringVarP(&o.configPath, "config", "c", "", "Path to a YAML configuration file.")
	fs.StringVarP(&o.decode, "decode", "d", "", "Decode one frame given as hex (FCS included), print it and exit.")
	fs.StringVarP(&o.port, "port", "p", "", "Serial port of the KISS receiver, e.g. /dev/ttyUSB0.")
	fs.IntVarP(&o.baud, "baud", "b", serial.DefaultBaudRate, "Serial port speed.")
	fs.StringVar(&o.broker, "broker", "", "MQTT broker URL, e.g. tcp://localhost:1883.")
	fs.StringVar(&o.channel, "channel", "", "MQTT channel name; frames use topic {prefix}/{channel}.")
	fs.BoolVar(&o.forward, "forward", false, "Forward frames heard on the serial receiver to MQTT.")
	fs.BoolVar(&o.forwardRF, "forward-to-rf", false, "Also forward MQTT frames to the serial TNC, which transmits them.")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn or error.")
	fs.BoolVar(&o.hexdump, "hexdump", false, "Log a hex dump of each frame at debug level.")
	return fs, o
}

// apply copies flags that were set on the command line over cfg.
func (o *options) apply(fs *pflag.FlagSet, cfg *Config) {
	if fs.Changed("port") {
		cfg.Serial.Port = o.port
	}
	if fs.Changed("baud") {
		cfg.Serial.Baud = o.baud
	}
	if fs.Changed("broker") {
		cfg.MQTT.Broker = o.broker
	}
	if fs.Changed("channel") {
		cfg.MQTT.Channel = o.channel
	}
	if fs.Changed("forward") {
		cfg.Monitor.Forward = o.forward
	}
	if fs.Changed("forward-to-rf") {
		cfg.Monitor.ForwardToRF = o.forwardRF
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if fs.Changed("hexdump") {
		cfg.Monitor.Hexdump = o.hexdump
	}
}
