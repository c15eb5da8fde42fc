package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for ingest.
type Config struct {
	BaseDir     string            `toml:"base_dir" yaml:"base_dir"`
	LogDir      string            `toml:"log_dir" yaml:"log_dir"`
	ArchiveRoot string            `toml:"archive_root" yaml:"archive_root"`
	Database    DatabaseConfig    `toml:"database" yaml:"database"`
	RawBackup   RawBackupConfig   `toml:"raw_backup" yaml:"raw_backup"`
	FileTypes   FileTypesConfig   `toml:"file_types" yaml:"file_types"`
	Devices     DevicesConfig     `toml:"devices" yaml:"devices"`
	Duplicates  DuplicatesConfig  `toml:"duplicates" yaml:"duplicates"`
	Performance PerformanceConfig `toml:"performance" yaml:"performance"`
	Filesystem  FilesystemConfig  `toml:"filesystem" yaml:"filesystem"`
	Metrics     MetricsConfig     `toml:"metrics" yaml:"metrics"`
	Logging     LoggingConfig     `toml:"logging" yaml:"logging"`
}

// DatabaseConfig represents configuration for the fingerprint store.
// The Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type" yaml:"type"`                             // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty" yaml:"data_dir,omitempty"` // only used for type=sqlite
}

// RawBackupConfig controls the structure-preserving raw backup.
type RawBackupConfig struct {
	Enabled    bool   `toml:"enabled" yaml:"enabled"`
	BackupRoot string `toml:"backup_root" yaml:"backup_root"`
	// TimestampFormat is a Go time layout.
	TimestampFormat string `toml:"timestamp_format" yaml:"timestamp_format"`
}

// FileTypesConfig lists supported extensions per category, without dots.
type FileTypesConfig struct {
	Raw   []string `toml:"raw" yaml:"raw"`
	JPEG  []string `toml:"jpeg" yaml:"jpeg"`
	Video []string `toml:"video" yaml:"video"`
}

// DevicesConfig maps camera metadata to device folder names.
type DevicesConfig struct {
	// Mappings maps a camera model string to a folder name.
	Mappings map[string]string `toml:"mappings" yaml:"mappings"`
	// Identifiers are tried in order; all fields of one must match.
	Identifiers []DeviceIdentifierConfig `toml:"identifiers" yaml:"identifiers"`
}

type DeviceIdentifierConfig struct {
	Code   string            `toml:"code" yaml:"code"`
	Fields map[string]string `toml:"fields" yaml:"fields"`
}

type DuplicatesConfig struct {
	// SimilarityThreshold is the maximum perceptual distance in bits; -1
	// disables perceptual matching.
	SimilarityThreshold int    `toml:"similarity_threshold" yaml:"similarity_threshold"`
	SimilarPolicy       string `toml:"similar_policy" yaml:"similar_policy"` // "treat_as_new" or "skip"
}

type PerformanceConfig struct {
	ParallelWorkers   int `toml:"parallel_workers" yaml:"parallel_workers"`
	BatchSize         int `toml:"batch_size" yaml:"batch_size"`
	MetadataCacheSize int `toml:"metadata_cache_size" yaml:"metadata_cache_size"`
}

// FilesystemConfig holds scanner settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore" yaml:"ignore"`
}

// MetricsConfig enables writing run counters in the Prometheus text format.
type MetricsConfig struct {
	TextfilePath string `toml:"textfile_path,omitempty" yaml:"textfile_path,omitempty"`
}

// LoggingConfig controls log file rotation.
type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
}

// NewConfig creates a Config rooted at baseDir with defaults filled in.
func NewConfig(baseDir string) *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		BaseDir:     baseDir,
		LogDir:      filepath.Join(baseDir, "log"),
		ArchiveRoot: filepath.Join(home, "Photos", "Archive"),
		Database:    DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		RawBackup: RawBackupConfig{
			BackupRoot:      filepath.Join(home, "Photos", "RawBackups"),
			TimestampFormat: "2006-01-02_150405",
		},
		FileTypes: FileTypesConfig{
			Raw:   []string{"nef", "cr3", "cr2", "arw", "dng", "orf", "raf", "rw2"},
			JPEG:  []string{"jpg", "jpeg", "heic", "heif"},
			Video: []string{"mp4", "mov", "avi", "mkv"},
		},
		Devices:     DevicesConfig{Mappings: map[string]string{}},
		Duplicates:  DuplicatesConfig{SimilarityThreshold: 5, SimilarPolicy: "treat_as_new"},
		Performance: PerformanceConfig{ParallelWorkers: 4, BatchSize: 100, MetadataCacheSize: 4096},
		Filesystem:  FilesystemConfig{Ignore: []string{".DS_Store", "._*", "Thumbs.db"}},
		Logging:     LoggingConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30},
	}
}

// Validate checks the configuration once at load time.
func (c *Config) Validate() error {
	var problems []string
	if c.ArchiveRoot == "" && !c.RawBackup.Enabled {
		problems = append(problems, "archive_root is required unless raw_backup is enabled")
	}
	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			problems = append(problems, "database.data_dir is required for sqlite")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("database.type %q is not one of sqlite, memory", c.Database.Type))
	}
	if c.RawBackup.Enabled && c.RawBackup.BackupRoot == "" {
		problems = append(problems, "raw_backup.backup_root is required when raw backup is enabled")
	}
	if len(c.FileTypes.Raw)+len(c.FileTypes.JPEG)+len(c.FileTypes.Video) == 0 {
		problems = append(problems, "file_types lists no extensions")
	}
	for _, group := range [][]string{c.FileTypes.Raw, c.FileTypes.JPEG, c.FileTypes.Video} {
		for _, ext := range group {
			if strings.TrimSpace(strings.TrimPrefix(ext, ".")) == "" {
				problems = append(problems, "file_types contains an empty extension")
			}
		}
	}
	for model, folder := range c.Devices.Mappings {
		if strings.TrimSpace(model) == "" || strings.TrimSpace(folder) == "" {
			problems = append(problems, "devices.mappings entries need a model and a folder name")
		}
	}
	for i, id := range c.Devices.Identifiers {
		if strings.TrimSpace(id.Code) == "" {
			problems = append(problems, fmt.Sprintf("devices.identifiers[%d] has no code", i))
		}
		if len(id.Fields) == 0 {
			problems = append(problems, fmt.Sprintf("devices.identifiers[%d] (%s) has no fields", i, id.Code))
		}
	}
	if c.Duplicates.SimilarityThreshold < -1 || c.Duplicates.SimilarityThreshold > 64 {
		problems = append(problems, "duplicates.similarity_threshold must be between -1 and 64")
	}
	switch c.Duplicates.SimilarPolicy {
	case "", "treat_as_new", "skip":
	default:
		problems = append(problems, fmt.Sprintf("duplicates.similar_policy %q is not one of treat_as_new, skip", c.Duplicates.SimilarPolicy))
	}
	if c.Performance.ParallelWorkers < 0 {
		problems = append(problems, "performance.parallel_workers must not be negative")
	}
	if c.Performance.BatchSize < 0 {
		problems = append(problems, "performance.batch_size must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// expandPaths substitutes ${VAR} references in every path setting.
func (c *Config) expandPaths() {
	for _, p := range []*string{&c.BaseDir, &c.LogDir, &c.ArchiveRoot, &c.Database.DataDir, &c.RawBackup.BackupRoot, &c.Metrics.TextfilePath} {
		*p = os.ExpandEnv(*p)
	}
}

// Format is a config file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding from the file extension. Anything that
// is not .yaml or .yml is TOML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatTOML
}

// Manager handles reading and writing configuration.
type Manager struct {
	Format Format
}

// Read decodes a Config from the provided reader. Values not present in
// the input keep their defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := NewConfig("")
	cfg.BaseDir, cfg.LogDir, cfg.Database.DataDir = "", "", ""

	switch m.Format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(cfg); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to decode yaml config: %w", err)
		}
	default:
		if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	cfg.expandPaths()
	return cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	switch m.Format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode yaml config: %w", err)
		}
		return enc.Close()
	default:
		if err := toml.NewEncoder(w).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path, refusing to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
