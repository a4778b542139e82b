package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config defines agent configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Transport  TransportConfig  `yaml:"transport" toml:"transport"`
	DB         DBConfig         `yaml:"db" toml:"db"`
	Log        LogConfig        `yaml:"log" toml:"log"`
	API        APIConfig        `yaml:"api" toml:"api"`
	Realtime   RealtimeConfig   `yaml:"realtime" toml:"realtime"`
	Attendance AttendanceConfig `yaml:"attendance" toml:"attendance"`
	Desktop    DesktopConfig    `yaml:"desktop" toml:"desktop"`
	Identity   IdentityConfig   `yaml:"identity" toml:"identity"`
}

type ServerConfig struct {
	Host  string `yaml:"host" toml:"host"`
	Port  int    `yaml:"port" toml:"port"`
	Token string `yaml:"token" toml:"token"`
}

// TransportConfig selects the presentation surface: "http" or "stdio" (MCP).
type TransportConfig struct {
	Mode string `yaml:"mode" toml:"mode"`
}

type DBConfig struct {
	Path string `yaml:"path" toml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

type APIConfig struct {
	BaseURL string   `yaml:"base_url" toml:"base_url"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

type RealtimeConfig struct {
	URL               string   `yaml:"url" toml:"url"`
	Path              string   `yaml:"path" toml:"path"`
	ReconnectAttempts int      `yaml:"reconnect_attempts" toml:"reconnect_attempts"`
	ReconnectDelay    Duration `yaml:"reconnect_delay" toml:"reconnect_delay"`
}

type AttendanceConfig struct {
	LateAfter       Clock  `yaml:"late_after" toml:"late_after"`
	EarlyBefore     Clock  `yaml:"early_before" toml:"early_before"`
	StandardMinutes int    `yaml:"standard_minutes" toml:"standard_minutes"`
	DefaultLocation string `yaml:"default_location" toml:"default_location"`
	Timezone        string `yaml:"timezone" toml:"timezone"`
}

type DesktopConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// IdentityConfig overrides the identity read from the stored user profile.
type IdentityConfig struct {
	Role   string `yaml:"role" toml:"role"`
	UserID string `yaml:"user_id" toml:"user_id"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7474,
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		DB: DBConfig{
			Path: "officedesk.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		API: APIConfig{
			BaseURL: "http://localhost:5000/api",
			Timeout: Duration(10 * time.Second),
		},
		Realtime: RealtimeConfig{
			URL:               "http://localhost:5000",
			Path:              "/socket.io/",
			ReconnectAttempts: 5,
			ReconnectDelay:    Duration(time.Second),
		},
		Attendance: AttendanceConfig{
			LateAfter:       Clock(9 * 60),
			EarlyBefore:     Clock(17 * 60),
			StandardMinutes: 480,
			DefaultLocation: "Office",
		},
	}
}

// Load reads configuration from an optional YAML or TOML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("OFFICEDESK_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c Config) Validate() error {
	switch c.Transport.Mode {
	case "http", "stdio":
	default:
		return fmt.Errorf("invalid transport mode %q", c.Transport.Mode)
	}
	if c.Realtime.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect_attempts must not be negative")
	}
	if c.Attendance.StandardMinutes <= 0 {
		return fmt.Errorf("standard_minutes must be positive, got %d", c.Attendance.StandardMinutes)
	}
	if c.Attendance.Timezone != "" {
		if _, err := time.LoadLocation(c.Attendance.Timezone); err != nil {
			return fmt.Errorf("invalid attendance timezone: %w", err)
		}
	}
	return nil
}

// Location resolves the attendance time zone, falling back to the host zone.
func (c AttendanceConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("OFFICEDESK_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("OFFICEDESK_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid OFFICEDESK_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if token := os.Getenv("OFFICEDESK_SERVER_TOKEN"); token != "" {
		cfg.Server.Token = token
	}
	if mode := os.Getenv("OFFICEDESK_TRANSPORT"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if dbPath := os.Getenv("OFFICEDESK_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("OFFICEDESK_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if baseURL := os.Getenv("OFFICEDESK_API_URL"); baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	if socketURL := os.Getenv("OFFICEDESK_SOCKET_URL"); socketURL != "" {
		cfg.Realtime.URL = socketURL
	}
	if desktop := os.Getenv("OFFICEDESK_DESKTOP_NOTIFICATIONS"); desktop != "" {
		enabled, err := strconv.ParseBool(desktop)
		if err != nil {
			return fmt.Errorf("invalid OFFICEDESK_DESKTOP_NOTIFICATIONS: %w", err)
		}
		cfg.Desktop.Enabled = enabled
	}
	if role := os.Getenv("OFFICEDESK_ROLE"); role != "" {
		cfg.Identity.Role = role
	}
	if userID := os.Getenv("OFFICEDESK_USER_ID"); userID != "" {
		cfg.Identity.UserID = userID
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
