// Command ax25mon monitors AX.25 traffic from a KISS serial receiver and/or an
// MQTT channel, logging every frame and optionally bridging between the two.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/kabili207/ax25-go/core/codec"
	"github.com/kabili207/ax25-go/device/monitor"
	"github.com/kabili207/ax25-go/transport"
	"github.com/kabili207/ax25-go/transport/mqtt"
	"github.com/kabili207/ax25-go/transport/serial"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs, opts := newFlagSet()
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if opts.decode != "" {
		return decodeHex(opts.decode, stdout, stderr)
	}

	var cfg Config
	if opts.configPath != "" {
		var err error
		if cfg, err = Load(opts.configPath); err != nil {
			fmt.Fprintf(stderr, "ax25mon: %v\n", err)
			return 2
		}
	}
	opts.apply(fs, &cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "ax25mon: %v\n", err)
		return 2
	}

	logger := newLogger(stderr, cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("ax25mon failed", "error", err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer, cfg LogConfig) *slog.Logger {
	level, err := charmlog.ParseLevel(cfg.Level)
	if err != nil {
		level = charmlog.InfoLevel
	}
	handler := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level,
		ReportTimestamp: cfg.Timestamps,
		TimeFormat:      time.DateTime,
	})
	return slog.New(handler)
}

// serve runs the transports and the monitor until ctx is cancelled.
func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	mon := monitor.New(monitor.Config{
		Forward:      cfg.Monitor.Forward,
		ForwardToRF:  cfg.Monitor.ForwardToRF,
		ForwardDelay: cfg.Monitor.ForwardDelay,
		DedupeSize:   cfg.Monitor.DedupeSize,
		MaxHeard:     cfg.Monitor.MaxHeard,
		Logger:       logger,
	})
	mon.SetFrameHandler(frameLogger(logger, cfg.Monitor.Hexdump))

	var transports []transport.Transport
	if cfg.Serial.Port != "" {
		t := serial.New(serial.Config{
			Port:     cfg.Serial.Port,
			BaudRate: cfg.Serial.Baud,
			Logger:   logger,
		})
		mon.AddTransport(t, transport.FrameSourceSerial)
		transports = append(transports, t)
	}
	if cfg.MQTT.Broker != "" {
		t := mqtt.New(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			UseTLS:      cfg.MQTT.TLS,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Channel:     cfg.MQTT.Channel,
			Logger:      logger,
		})
		mon.AddTransport(t, transport.FrameSourceMQTT)
		transports = append(transports, t)
	}

	stateLog := func(t transport.Transport, ev transport.Event) {
		logger.Debug("transport state changed", "event", ev)
	}
	for i, t := range transports {
		t.SetStateHandler(stateLog)
		if err := t.Start(ctx); err != nil {
			for _, started := range transports[:i] {
				_ = started.Stop()
			}
			return err
		}
	}

	mon.Start(ctx)
	logger.Info("monitoring", "transports", len(transports), "forward", cfg.Monitor.Forward)

	<-ctx.Done()

	mon.Stop()
	for _, t := range transports {
		if err := t.Stop(); err != nil {
			logger.Warn("error stopping transport", "error", err)
		}
	}

	logCounters(logger, mon.Counters())
	return nil
}

func frameLogger(logger *slog.Logger, hexdump bool) monitor.FrameHandler {
	return func(f *codec.Frame, meta transport.RxMeta) {
		attrs := []any{
			"type", codec.ControlName(f.Control),
			"via", meta.Source,
		}
		if pid, ok := f.ProtocolID(); ok {
			attrs = append(attrs, "pid", codec.PIDName(pid))
		}
		if meta.RSSI != 0 || meta.SNR != 0 {
			attrs = append(attrs, "rssi", meta.RSSI, "snr", meta.SNR)
		}
		logger.Info(f.String(), attrs...)
		if hexdump {
			logger.Debug("raw frame\n" + hex.Dump(f.Raw))
		}
	}
}

func logCounters(logger *slog.Logger, s monitor.CountersSnapshot) {
	logger.Info("final counters",
		"received", s.FramesRecv,
		"info", s.RecvInfo,
		"supervisory", s.RecvSuper,
		"unnumbered", s.RecvUnnum,
		"duplicates", s.Duplicates,
		"echoes", s.Echoes,
		"forwarded", s.Forwarded,
		"forward_errors", s.ForwardErrors,
		"decode_errors", s.DecodeErrors(),
		"bad_fcs", s.ErrChecksum,
		"kiss_errors", s.ErrFraming,
	)
}

// decodeHex decodes a single frame from hex and prints its fields. Spaces and
// colons in the input are ignored.
func decodeHex(input string, stdout, stderr io.Writer) int {
	cleaned := strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(input)
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		fmt.Fprintf(stderr, "ax25mon: invalid hex: %v\n", err)
		return 1
	}

	f, err := codec.Decode(raw)
	if err != nil {
		fmt.Fprintf(stderr, "ax25mon: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, f.String())
	fmt.Fprintf(stdout, "  destination: %s\n", f.Destination)
	fmt.Fprintf(stdout, "  source:      %s\n", f.Source)
	if len(f.Relays) > 0 {
		via := f.Path()
		via = via[strings.IndexByte(via, ',')+1:]
		fmt.Fprintf(stdout, "  via:         %s\n", via)
	}
	fmt.Fprintf(stdout, "  control:     0x%02X %s (%s)\n", f.Control, codec.ControlName(f.Control), f.Kind)
	if pid, ok := f.ProtocolID(); ok {
		fmt.Fprintf(stdout, "  pid:         0x%02X %s\n", pid, codec.PIDName(pid))
	}
	fmt.Fprintf(stdout, "  payload:     %d bytes\n", len(f.Payload))
	return 0
}
