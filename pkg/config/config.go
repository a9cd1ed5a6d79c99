// Package config loads the YAML file describing a node deployment: device
// credentials, node behaviour, the modem transport, logging, metrics and the
// Redis bridge.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"avaneesh/lorawan-node/pkg/channel"
	"avaneesh/lorawan-node/pkg/internal/logger"
	"avaneesh/lorawan-node/pkg/lorawan"
	"avaneesh/lorawan-node/pkg/modem"
	"avaneesh/lorawan-node/pkg/node"
)

// Transport kinds
const (
	TransportTCP    = "tcp"
	TransportQUIC   = "quic"
	TransportSerial = "serial"
)

var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration written as a Go duration string ("3s", "250ms")
type Duration time.Duration

// UnmarshalYAML accepts a duration string or a plain number of nanoseconds
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		var ns int64
		if nerr := value.Decode(&ns); nerr != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		parsed = time.Duration(ns)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Device holds the OTAA credentials as hex strings
type Device struct {
	DevEUI string `yaml:"dev_eui"`
	AppEUI string `yaml:"app_eui"`
	AppKey string `yaml:"app_key"`
}

// TxRetry mirrors node.TxRetryPolicy
type TxRetry struct {
	MaxRetries int      `yaml:"max_retries"`
	Backoff    Duration `yaml:"backoff"`
	Multiplier float64  `yaml:"multiplier"`
}

// Node mirrors the tunable part of node.Config
type Node struct {
	WaitUntilConnected bool     `yaml:"wait_until_connected"`
	ConfirmedRetries   uint8    `yaml:"confirmed_retries"`
	AdaptiveDataRate   bool     `yaml:"adaptive_data_rate"`
	StrictInit         bool     `yaml:"strict_init"`
	RetryDelay         Duration `yaml:"retry_delay"`
	TxRetry            TxRetry  `yaml:"tx_retry"`
	QueueCapacity      int      `yaml:"queue_capacity"`
	NbTrials           uint8    `yaml:"nb_trials"`
	JoinTimeout        Duration `yaml:"join_timeout"`
}

// Transport describes the link to the modem
type Transport struct {
	Kind            string   `yaml:"kind"`
	Address         string   `yaml:"address"`
	Server          bool     `yaml:"server"`
	Port            string   `yaml:"port"`
	BaudRate        int      `yaml:"baud_rate"`
	ReconnectDelay  Duration `yaml:"reconnect_delay"`
	DialTimeout     Duration `yaml:"dial_timeout"`
	ResponseTimeout Duration `yaml:"response_timeout"`
}

// Log configures the default logger
type Log struct {
	Level string `yaml:"level"`
}

// Metrics configures the prometheus endpoint; empty Address disables it
type Metrics struct {
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// Redis configures the bridge; empty Address disables it
type Redis struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	UplinkList      string `yaml:"uplink_list"`
	DownlinkChannel string `yaml:"downlink_channel"`
	EventChannel    string `yaml:"event_channel"`
}

// Config is the root of the configuration file
type Config struct {
	Device    Device    `yaml:"device"`
	Node      Node      `yaml:"node"`
	Transport Transport `yaml:"transport"`
	Log       Log       `yaml:"log"`
	Metrics   Metrics   `yaml:"metrics"`
	Redis     Redis     `yaml:"redis"`
}

// Default returns a configuration with every optional value filled in
func Default() Config {
	return Config{
		Node: Node{
			WaitUntilConnected: true,
			ConfirmedRetries:   node.DefaultConfirmedRetries,
			AdaptiveDataRate:   true,
			RetryDelay:         Duration(node.DefaultRetryDelay),
			TxRetry: TxRetry{
				MaxRetries: node.DefaultTxErrorRetries,
				Backoff:    Duration(node.DefaultRetryDelay),
				Multiplier: 1,
			},
			NbTrials:    lorawan.DefaultNbTrials,
			JoinTimeout: Duration(2 * time.Minute),
		},
		Transport: Transport{
			Kind:            TransportTCP,
			Address:         "127.0.0.1:7700",
			BaudRate:        channel.DefaultBaudRate,
			ReconnectDelay:  Duration(5 * time.Second),
			DialTimeout:     Duration(5 * time.Second),
			ResponseTimeout: Duration(modem.DefaultResponseTimeout),
		},
		Log: Log{Level: "info"},
		Metrics: Metrics{
			Path: "/metrics",
		},
		Redis: Redis{
			UplinkList:      "lorawan:uplinks",
			DownlinkChannel: "lorawan:downlinks",
			EventChannel:    "lorawan:events",
		},
	}
}

// Load reads path on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg as YAML
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Keys parses the device credentials
func (c Config) Keys() (lorawan.Keys, error) {
	return lorawan.ParseKeys(c.Device.DevEUI, c.Device.AppEUI, c.Device.AppKey)
}

// Validate checks every section
func (c Config) Validate() error {
	var errs []error

	if _, err := c.Keys(); err != nil {
		errs = append(errs, fmt.Errorf("device: %w", err))
	}

	switch c.Transport.Kind {
	case TransportTCP, TransportQUIC:
		if c.Transport.Address == "" {
			errs = append(errs, fmt.Errorf("transport: address required for %s", c.Transport.Kind))
		}
	case TransportSerial:
		if c.Transport.Port == "" {
			errs = append(errs, errors.New("transport: port required for serial"))
		}
		if c.Transport.BaudRate < 0 {
			errs = append(errs, fmt.Errorf("transport: invalid baud rate %d", c.Transport.BaudRate))
		}
	default:
		errs = append(errs, fmt.Errorf("transport: unknown kind %q", c.Transport.Kind))
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	if c.Redis.Address != "" && c.Redis.UplinkList == "" {
		errs = append(errs, errors.New("redis: uplink_list required"))
	}

	nc, err := c.NodeConfig()
	if err == nil {
		if verr := nc.Validate(); verr != nil {
			errs = append(errs, fmt.Errorf("node: %w", verr))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// NodeConfig converts the file into a node.Config. Callbacks and Logger are
// left for the caller.
func (c Config) NodeConfig() (node.Config, error) {
	keys, err := c.Keys()
	if err != nil {
		return node.Config{}, err
	}

	nc := node.DefaultConfig(keys)
	nc.WaitUntilConnected = c.Node.WaitUntilConnected
	nc.ConfirmedRetries = c.Node.ConfirmedRetries
	nc.AdaptiveDataRate = c.Node.AdaptiveDataRate
	nc.StrictInit = c.Node.StrictInit
	nc.RetryDelay = c.Node.RetryDelay.Std()
	nc.TxRetry = node.TxRetryPolicy{
		MaxRetries: c.Node.TxRetry.MaxRetries,
		Backoff:    c.Node.TxRetry.Backoff.Std(),
		Multiplier: c.Node.TxRetry.Multiplier,
	}
	nc.QueueCapacity = c.Node.QueueCapacity
	nc.NbTrials = c.Node.NbTrials
	return nc, nil
}
