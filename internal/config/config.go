package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	LinkLowpan = "lowpan"
	LinkGPS    = "gps"
)

type Config struct {
	GPS     GPSConfig     `yaml:"gps"`
	Lowpan  LowpanConfig  `yaml:"lowpan"`
	Capture CaptureConfig `yaml:"capture"`
	Replay  ReplayConfig  `yaml:"replay"`
	UDP     UDPConfig     `yaml:"udp"`
	Web     WebConfig     `yaml:"web"`
	Debug   bool          `yaml:"debug"`
}

type GPSConfig struct {
	Enable   bool   `yaml:"enable"`
	Source   string `yaml:"source"`
	GPSDAddr string `yaml:"gpsd_addr"`
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	Backend  string `yaml:"backend"`
}

type LowpanConfig struct {
	Enable       bool          `yaml:"enable"`
	Device       string        `yaml:"device"`
	Baud         int           `yaml:"baud"`
	Backend      string        `yaml:"backend"`
	ResetGPIO    int           `yaml:"reset_gpio"`
	ResetPulse   time.Duration `yaml:"reset_pulse"`
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
	MaxFrame     int           `yaml:"max_frame"`
	SoftReset    bool          `yaml:"soft_reset"`
}

type CaptureConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
	Link   string `yaml:"link"`
}

type ReplayConfig struct {
	Enable bool    `yaml:"enable"`
	Path   string  `yaml:"path"`
	Speed  float64 `yaml:"speed"`
	Loop   bool    `yaml:"loop"`
	Link   string  `yaml:"link"`
}

type UDPConfig struct {
	Dest string `yaml:"dest"`
}

// WebConfig enables the status endpoint when Listen is set (e.g. ":8080").
type WebConfig struct {
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes and validates a YAML document. Unknown keys are rejected so
// typos do not silently fall back to defaults.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) && allUnknownFields(te.Errors) {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", strings.Join(te.Errors, "; "))
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := applyGPS(&cfg.GPS); err != nil {
		return Config{}, err
	}
	if err := applyLowpan(&cfg.Lowpan); err != nil {
		return Config{}, err
	}
	if err := applyCapture(&cfg.Capture); err != nil {
		return Config{}, err
	}
	if err := applyReplay(&cfg.Replay); err != nil {
		return Config{}, err
	}
	if cfg.Capture.Enable && cfg.Replay.Enable {
		return Config{}, fmt.Errorf("capture and replay cannot both be enabled")
	}
	cfg.UDP.Dest = strings.TrimSpace(cfg.UDP.Dest)
	cfg.Web.Listen = strings.TrimSpace(cfg.Web.Listen)

	return cfg, nil
}

func applyGPS(c *GPSConfig) error {
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	if c.Source == "" {
		c.Source = "nmea"
	}
	if c.Source != "nmea" && c.Source != "gpsd" {
		return fmt.Errorf("gps.source must be 'nmea' or 'gpsd'")
	}
	if c.Baud == 0 {
		c.Baud = 9600
	}
	if c.Baud < 0 {
		return fmt.Errorf("gps.baud must be > 0")
	}
	return validBackend("gps", &c.Backend)
}

func applyLowpan(c *LowpanConfig) error {
	if c.Enable && strings.TrimSpace(c.Device) == "" {
		return fmt.Errorf("lowpan.device is required when lowpan.enable is true")
	}
	if c.Baud == 0 {
		c.Baud = 115200
	}
	if c.Baud < 0 {
		return fmt.Errorf("lowpan.baud must be > 0")
	}
	if c.ResetGPIO < 0 {
		return fmt.Errorf("lowpan.reset_gpio must be >= 0")
	}
	if c.ResetPulse <= 0 {
		c.ResetPulse = 10 * time.Millisecond
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = 250 * time.Millisecond
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 10 * time.Second
	}
	if c.ReconnectMax < c.ReconnectMin {
		return fmt.Errorf("lowpan.reconnect_max must be >= lowpan.reconnect_min")
	}
	if c.MaxFrame == 0 {
		c.MaxFrame = 1300
	}
	if c.MaxFrame < 0 {
		return fmt.Errorf("lowpan.max_frame must be > 0")
	}
	return validBackend("lowpan", &c.Backend)
}

func applyCapture(c *CaptureConfig) error {
	if !c.Enable {
		return nil
	}
	if c.Path == "" {
		return fmt.Errorf("capture.path is required when capture.enable is true")
	}
	return validLink("capture", &c.Link)
}

func applyReplay(c *ReplayConfig) error {
	if !c.Enable {
		return nil
	}
	if c.Path == "" {
		return fmt.Errorf("replay.path is required when replay.enable is true")
	}
	if c.Speed == 0 {
		c.Speed = 1
	}
	if c.Speed < 0 {
		return fmt.Errorf("replay.speed must be > 0")
	}
	return validLink("replay", &c.Link)
}

func validLink(section string, link *string) error {
	v := strings.ToLower(strings.TrimSpace(*link))
	if v == "" {
		v = LinkLowpan
	}
	if v != LinkLowpan && v != LinkGPS {
		return fmt.Errorf("%s.link must be '%s' or '%s'", section, LinkLowpan, LinkGPS)
	}
	*link = v
	return nil
}

func validBackend(section string, backend *string) error {
	v := strings.ToLower(strings.TrimSpace(*backend))
	if v == "" {
		v = "portable"
	}
	if v != "portable" && v != "termios" {
		return fmt.Errorf("%s.backend must be 'portable' or 'termios'", section)
	}
	*backend = v
	return nil
}

func allUnknownFields(msgs []string) bool {
	for _, m := range msgs {
		if !strings.Contains(m, "not found in type") {
			return false
		}
	}
	return len(msgs) > 0
}
