// Package board describes how an ENC28J60 is wired to the host: which SPI
// interface, which interrupt source, and the network settings used by the
// encspi tool.
package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/OpenTraceLab/encspi/pkg/enc28j60"
	"github.com/OpenTraceLab/encspi/pkg/spi"
)

// IRQ kinds
const (
	IRQGPIO = "gpio"
	IRQPoll = "poll"
	IRQNone = "none"
)

// Duration is a time.Duration stored as a string such as "10ms"
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// BusConfig selects the SPI interface
type BusConfig struct {
	Kind    spi.InterfaceKind `json:"kind"`
	Device  string            `json:"device,omitempty"` // spidev path
	SpeedHz int               `json:"speed_hz,omitempty"`
}

// IRQConfig selects the interrupt source
type IRQConfig struct {
	Kind         string   `json:"kind"`
	GPIO         int      `json:"gpio,omitempty"`
	PollInterval Duration `json:"poll_interval,omitempty"`
}

// Config is the persisted board description
type Config struct {
	Name          string    `json:"name"`
	Bus           BusConfig `json:"bus"`
	IRQ           IRQConfig `json:"irq"`
	MAC           string    `json:"mac,omitempty"`
	FullDuplex    bool      `json:"full_duplex"`
	Promiscuous   bool      `json:"promiscuous"`
	TapName       string    `json:"tap_name,omitempty"`
	RedisAddr     string    `json:"redis_addr,omitempty"`
	StatsInterval Duration  `json:"stats_interval,omitempty"`
}

// Default returns a configuration that runs against the simulator
func Default() *Config {
	return &Config{
		Name:          "enc0",
		Bus:           BusConfig{Kind: spi.InterfaceKindSim, SpeedHz: 8_000_000},
		IRQ:           IRQConfig{Kind: IRQPoll, PollInterval: Duration(10 * time.Millisecond)},
		TapName:       "enc0",
		StatsInterval: Duration(5 * time.Second),
	}
}

// DefaultPath returns the config file location: %APPDATA%\encspi on
// Windows, ~/.config/encspi elsewhere.
func DefaultPath() (string, error) {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "encspi", "board.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "encspi", "board.json"), nil
}

// Load reads path. A missing file yields Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("board: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("board: %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON, creating the directory
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Validate checks the fields that cannot be fixed up later
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("board: name is empty")
	}
	switch c.Bus.Kind {
	case spi.InterfaceKindSim, spi.InterfaceKindCH341:
	case spi.InterfaceKindSpidev:
		if c.Bus.Device == "" {
			return errors.New("board: spidev bus needs a device path")
		}
	default:
		return fmt.Errorf("board: unknown bus kind %q", c.Bus.Kind)
	}
	if c.Bus.SpeedHz < 0 {
		return fmt.Errorf("board: negative bus speed %d", c.Bus.SpeedHz)
	}
	switch c.IRQ.Kind {
	case IRQGPIO:
		if c.IRQ.GPIO < 0 {
			return fmt.Errorf("board: invalid GPIO %d", c.IRQ.GPIO)
		}
	case IRQPoll, IRQNone:
	default:
		return fmt.Errorf("board: unknown irq kind %q", c.IRQ.Kind)
	}
	if _, err := c.HardwareAddr(); err != nil {
		return err
	}
	return nil
}

// HardwareAddr parses MAC. An empty MAC returns nil so the driver picks a
// random address.
func (c *Config) HardwareAddr() (net.HardwareAddr, error) {
	if c.MAC == "" {
		return nil, nil
	}
	mac, err := net.ParseMAC(c.MAC)
	if err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	if len(mac) != 6 || mac[0]&0x01 != 0 {
		return nil, fmt.Errorf("board: %s is not a unicast Ethernet address", c.MAC)
	}
	return mac, nil
}

// DriverOptions converts the network settings to driver options
func (c *Config) DriverOptions() ([]enc28j60.Option, error) {
	mac, err := c.HardwareAddr()
	if err != nil {
		return nil, err
	}
	opts := []enc28j60.Option{
		enc28j60.WithFullDuplex(c.FullDuplex),
		enc28j60.WithPromiscuous(c.Promiscuous),
	}
	if mac != nil {
		opts = append(opts, enc28j60.WithMAC(mac))
	}
	return opts, nil
}
