// Package config loads the agent's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Device  DeviceConfig  `toml:"device" mapstructure:"device"`
	Sensor  SensorConfig  `toml:"sensor" mapstructure:"sensor"`
	MQTT    MQTTConfig    `toml:"mqtt" mapstructure:"mqtt"`
	Update  UpdateConfig  `toml:"update" mapstructure:"update"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
}

type DeviceConfig struct {
	ID        string `toml:"id" mapstructure:"id"`
	FwTitle   string `toml:"fw_title" mapstructure:"fw_title"`
	FwVersion string `toml:"fw_version" mapstructure:"fw_version"`
}

type SensorConfig struct {
	W1Dir          string        `toml:"w1_dir" mapstructure:"w1_dir"`
	SampleInterval time.Duration `toml:"sample_interval" mapstructure:"sample_interval"`
	Simulate       bool          `toml:"simulate" mapstructure:"simulate"`
}

type MQTTConfig struct {
	BrokerURL      string        `toml:"broker_url" mapstructure:"broker_url"`
	Username       string        `toml:"username" mapstructure:"username"`
	Password       string        `toml:"password" mapstructure:"password"`
	ClientID       string        `toml:"client_id" mapstructure:"client_id"`
	TelemetryTopic string        `toml:"telemetry_topic" mapstructure:"telemetry_topic"`
	CommandTopic   string        `toml:"command_topic" mapstructure:"command_topic"`
	ConnectTimeout time.Duration `toml:"connect_timeout" mapstructure:"connect_timeout"`
	PublishTimeout time.Duration `toml:"publish_timeout" mapstructure:"publish_timeout"`
}

type UpdateConfig struct {
	Dir            string        `toml:"dir" mapstructure:"dir"`
	SlotCapacity   uint64        `toml:"slot_capacity" mapstructure:"slot_capacity"`
	RecordPath     string        `toml:"record_path" mapstructure:"record_path"`
	JournalPath    string        `toml:"journal_path" mapstructure:"journal_path"`
	ConfirmWindow  time.Duration `toml:"confirm_window" mapstructure:"confirm_window"`
	AllowDowngrade bool          `toml:"allow_downgrade" mapstructure:"allow_downgrade"`
	InMemory       bool          `toml:"in_memory" mapstructure:"in_memory"`
}

type ServerConfig struct {
	Listen       string        `toml:"listen" mapstructure:"listen"`
	ReadTimeout  time.Duration `toml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout" mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type HistoryConfig struct {
	DSNs []string `toml:"dsns" mapstructure:"dsns"`
}

// Defaults applied when the file omits a key.
const (
	defaultSampleInterval = 3 * time.Second
	defaultConfirmWindow  = 5 * time.Minute
	defaultSlotCapacity   = 4 << 20
	defaultListen         = ":8080"
)

// Load reads and validates the TOML config at path.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Clean(path))
	v.SetConfigType("toml")
	v.SetEnvPrefix("THERMOAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	fc.applyDefaults()
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (c *FileConfig) applyDefaults() {
	if c.Sensor.SampleInterval <= 0 {
		c.Sensor.SampleInterval = defaultSampleInterval
	}
	if c.Update.SlotCapacity == 0 {
		c.Update.SlotCapacity = defaultSlotCapacity
	}
	if c.Update.ConfirmWindow <= 0 {
		c.Update.ConfirmWindow = defaultConfirmWindow
	}
	if c.Update.Dir != "" {
		if c.Update.RecordPath == "" {
			c.Update.RecordPath = filepath.Join(c.Update.Dir, "boot.rec")
		}
		if c.Update.JournalPath == "" {
			c.Update.JournalPath = filepath.Join(c.Update.Dir, "update.db")
		}
	}
	if c.Update.JournalPath == "" {
		c.Update.JournalPath = "update.db"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}
	if c.Device.FwTitle == "" {
		c.Device.FwTitle = "thermoagent"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.Device.ID
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects configs the agent cannot start with.
func (c *FileConfig) Validate() error {
	if c.Device.ID == "" {
		return errors.New("device.id is required")
	}
	if c.Device.FwVersion == "" {
		return errors.New("device.fw_version is required")
	}
	if c.MQTT.BrokerURL == "" {
		return errors.New("mqtt.broker_url is required")
	}
	if !c.Update.InMemory {
		if c.Update.Dir == "" {
			return errors.New("update.dir is required unless update.in_memory is set")
		}
		if c.Update.RecordPath == "" {
			return errors.New("update.record_path is required")
		}
	}
	if c.Update.JournalPath == "" {
		return errors.New("update.journal_path is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}
