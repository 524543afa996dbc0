// Package config provides configuration management for the classgraph service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/junjiewwang/classgraph/internal/classfile"
)

// Config holds all configuration for the application.
type Config struct {
	Scan      ScanConfig      `mapstructure:"scan"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	APM       APMConfig       `mapstructure:"apm"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

// ScanConfig holds the scan policy flags plus the session-level knobs
// (data directory, worker count) that control one invocation of the
// classfile scanner.
type ScanConfig struct {
	Version   string `mapstructure:"version"`
	DataDir   string `mapstructure:"data_dir"`
	MaxWorker int    `mapstructure:"max_worker"`

	IgnoreClassVisibility                         bool `mapstructure:"ignore_class_visibility"`
	IgnoreFieldVisibility                          bool `mapstructure:"ignore_field_visibility"`
	IgnoreMethodVisibility                         bool `mapstructure:"ignore_method_visibility"`
	EnableFieldInfo                                bool `mapstructure:"enable_field_info"`
	EnableMethodInfo                               bool `mapstructure:"enable_method_info"`
	EnableAnnotationInfo                           bool `mapstructure:"enable_annotation_info"`
	DisableRuntimeInvisibleAnnotations              bool `mapstructure:"disable_runtime_invisible_annotations"`
	EnableStaticFinalFieldConstantInitializerValues bool `mapstructure:"enable_static_final_field_constant_initializer_values"`
	EnableInterClassDependencies                    bool `mapstructure:"enable_inter_class_dependencies"`
	ExtendScanningUpwardsToExternalClasses          bool `mapstructure:"extend_scanning_upwards_to_external_classes"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // postgres, mysql, or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration for classpath caching.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// APMConfig holds APM callback configuration.
type APMConfig struct {
	URL           string `mapstructure:"url"`
	RequestYunAPI bool   `mapstructure:"request_yunapi"`
	Enabled       bool   `mapstructure:"enabled"`
}

// SchedulerConfig holds work queue scheduling configuration.
type SchedulerConfig struct {
	PollInterval  int `mapstructure:"poll_interval"` // in seconds
	WorkerCount   int `mapstructure:"worker_count"`
	PrioritySlots int `mapstructure:"priority_slots"`
	TaskBatchSize int `mapstructure:"task_batch_size"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/classgraph")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.version", "1.0.0")
	v.SetDefault("scan.data_dir", "./data")
	v.SetDefault("scan.max_worker", 5)
	v.SetDefault("scan.enable_field_info", true)
	v.SetDefault("scan.enable_method_info", true)
	v.SetDefault("scan.enable_annotation_info", true)
	v.SetDefault("scan.enable_inter_class_dependencies", true)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	v.SetDefault("scheduler.poll_interval", 2)
	v.SetDefault("scheduler.worker_count", 5)
	v.SetDefault("scheduler.priority_slots", 2)
	v.SetDefault("scheduler.task_batch_size", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "./logs")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	switch c.Database.Type {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.Scheduler.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	return nil
}

// EnsureDataDir creates the scan data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if c.Scan.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Scan.DataDir, 0755)
}

// GetTaskDir returns the snapshot directory path for one scan session.
func (c *Config) GetTaskDir(sessionUUID string) string {
	return filepath.Join(c.Scan.DataDir, sessionUUID)
}

// ToScanSpec projects the policy flags into a classfile.ScanSpec.
func (c *ScanConfig) ToScanSpec() *classfile.ScanSpec {
	return &classfile.ScanSpec{
		IgnoreClassVisibility:                           c.IgnoreClassVisibility,
		IgnoreFieldVisibility:                            c.IgnoreFieldVisibility,
		IgnoreMethodVisibility:                           c.IgnoreMethodVisibility,
		EnableFieldInfo:                                  c.EnableFieldInfo,
		EnableMethodInfo:                                 c.EnableMethodInfo,
		EnableAnnotationInfo:                              c.EnableAnnotationInfo,
		DisableRuntimeInvisibleAnnotations:                c.DisableRuntimeInvisibleAnnotations,
		EnableStaticFinalFieldConstantInitializerValues:   c.EnableStaticFinalFieldConstantInitializerValues,
		EnableInterClassDependencies:                      c.EnableInterClassDependencies,
		ExtendScanningUpwardsToExternalClasses:            c.ExtendScanningUpwardsToExternalClasses,
	}
}
