// Package config loads the TOML configuration files for ridgeline's
// three processes (spec.md §6 "Configuration").
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// SchedulerConfig is the scheduler process's TOML configuration.
type SchedulerConfig struct {
	WorkersEndpoint    string `toml:"workers_endpoint"`
	ControllerEndpoint string `toml:"controller_endpoint"`
	VerbosityLevel     string `toml:"verbosity_level"`

	EventBusCapacity          int `toml:"event_bus_capacity"`
	WorkerQueueCapacity       int `toml:"worker_queue_capacity"`
	SubscriptionQueueCapacity int `toml:"subscription_queue_capacity"`
}

func (c *SchedulerConfig) applyDefaults() {
	if c.VerbosityLevel == "" {
		c.VerbosityLevel = "info"
	}
	if c.EventBusCapacity == 0 {
		c.EventBusCapacity = 1024
	}
	if c.WorkerQueueCapacity == 0 {
		c.WorkerQueueCapacity = 1024
	}
	if c.SubscriptionQueueCapacity == 0 {
		c.SubscriptionQueueCapacity = 1024
	}
}

// LoadSchedulerConfig reads and parses a scheduler TOML file at path.
func LoadSchedulerConfig(path string) (*SchedulerConfig, error) {
	var cfg SchedulerConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if cfg.WorkersEndpoint == "" {
		return nil, fmt.Errorf("config: %s: workers_endpoint is required", path)
	}
	return &cfg, nil
}

// ControllerConfig is the controller process's TOML configuration.
type ControllerConfig struct {
	SchedulerEndpoint string `toml:"scheduler_endpoint"`
	HTTPAddr          string `toml:"http_addr"`
	SQLitePath        string `toml:"sqlite_path"`
	VerbosityLevel    string `toml:"verbosity_level"`
}

func (c *ControllerConfig) applyDefaults() {
	if c.VerbosityLevel == "" {
		c.VerbosityLevel = "info"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "ridgeline-controller.db"
	}
}

// LoadControllerConfig reads and parses a controller TOML file at path.
func LoadControllerConfig(path string) (*ControllerConfig, error) {
	var cfg ControllerConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if cfg.SchedulerEndpoint == "" {
		return nil, fmt.Errorf("config: %s: scheduler_endpoint is required", path)
	}
	return &cfg, nil
}

// RuntimeConfig is the node agent's [runtime] sub-section.
type RuntimeConfig struct {
	ContainerdSocket string `toml:"containerd_socket"`
	Namespace        string `toml:"namespace"`
}

// ImageManagerConfig is the node agent's [image_manager] sub-section.
type ImageManagerConfig struct {
	PullConcurrency int    `toml:"pull_concurrency"`
	CacheDir        string `toml:"cache_dir"`
}

// AgentConfig is the node agent process's TOML configuration.
type AgentConfig struct {
	Scheduler    string             `toml:"scheduler"`
	Hostname     string             `toml:"hostname"`
	DataDir      string             `toml:"data_dir"`
	Runtime      RuntimeConfig      `toml:"runtime"`
	ImageManager ImageManagerConfig `toml:"image_manager"`
}

func (c *AgentConfig) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "/var/lib/ridgeline-agent"
	}
	if c.Runtime.ContainerdSocket == "" {
		c.Runtime.ContainerdSocket = "/run/containerd/containerd.sock"
	}
	if c.Runtime.Namespace == "" {
		c.Runtime.Namespace = "ridgeline"
	}
	if c.ImageManager.PullConcurrency == 0 {
		c.ImageManager.PullConcurrency = 3
	}
	if c.ImageManager.CacheDir == "" {
		c.ImageManager.CacheDir = c.DataDir + "/images"
	}
}

// LoadAgentConfig reads and parses a node agent TOML file at path.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	var cfg AgentConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if cfg.Scheduler == "" {
		return nil, fmt.Errorf("config: %s: scheduler is required", path)
	}
	if cfg.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("config: %s: hostname not set and os.Hostname failed: %w", path, err)
		}
		cfg.Hostname = hostname
	}
	return &cfg, nil
}

func load(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}
