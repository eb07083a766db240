// Package config handles configuration loading for the cellkit toolkit.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the toolkit configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Data   DataConfig   `yaml:"data"`
	QC     QCConfig     `yaml:"qc"`
	Cache  CacheConfig  `yaml:"cache"`
	Plot   PlotConfig   `yaml:"plot"`
	Store  StoreConfig  `yaml:"store"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Title       string   `yaml:"title"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatasetConfig describes one dataset bundle on disk.
type DatasetConfig struct {
	BundlePath string `yaml:"bundle_path"`
}

// DataConfig contains the dataset catalog. Datasets keep their YAML order;
// the first one listed is the default.
type DataConfig struct {
	DefaultDataset string
	Datasets       map[string]DatasetConfig

	order []string
}

// UnmarshalYAML accepts either the catalog form (dataset name to settings)
// or the legacy single-dataset form with a bare bundle_path key.
func (d *DataConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("config: data section must be a mapping")
	}

	d.Datasets = make(map[string]DatasetConfig)
	d.order = nil

	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value

		if key == "bundle_path" {
			var path string
			if err := value.Content[i+1].Decode(&path); err != nil {
				return err
			}
			d.Datasets["default"] = DatasetConfig{BundlePath: path}
			d.order = append(d.order, "default")
			continue
		}

		var ds DatasetConfig
		if err := value.Content[i+1].Decode(&ds); err != nil {
			return fmt.Errorf("config: dataset %q: %w", key, err)
		}
		d.Datasets[key] = ds
		d.order = append(d.order, key)
	}

	if len(d.order) > 0 {
		d.DefaultDataset = d.order[0]
	}
	return nil
}

// DatasetIDs returns dataset names in configuration order.
func (d *DataConfig) DatasetIDs() []string {
	ids := make([]string, len(d.order))
	copy(ids, d.order)
	return ids
}

// QCConfig contains default QC calculation settings.
type QCConfig struct {
	ControlFeatures []string `yaml:"control_features"`
	NMADs           float64  `yaml:"n_mads"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	ChunkCacheSizeMB  int `yaml:"chunk_cache_size_mb"`
	DistanceCacheSize int `yaml:"distance_cache_size"`
}

// PlotConfig contains plot rendering settings.
type PlotConfig struct {
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	DefaultColormap string `yaml:"default_colormap"`
}

// StoreConfig contains QC run storage settings.
type StoreConfig struct {
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Title:       "cellkit",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Data: DataConfig{
			DefaultDataset: "default",
			Datasets: map[string]DatasetConfig{
				"default": {BundlePath: "./data/bundle"},
			},
			order: []string{"default"},
		},
		QC: QCConfig{
			NMADs: 5,
		},
		Cache: CacheConfig{
			ChunkCacheSizeMB:  64,
			DistanceCacheSize: 16,
		},
		Plot: PlotConfig{
			Width:           640,
			Height:          480,
			DefaultColormap: "viridis",
		},
		Store: StoreConfig{
			DBPath:        "./data/qc.db",
			RetentionDays: 30,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if len(cfg.Data.Datasets) == 0 {
		cfg.Data = defaults.Data
	}
	if cfg.QC.NMADs == 0 {
		cfg.QC.NMADs = defaults.QC.NMADs
	}
	if cfg.Cache.ChunkCacheSizeMB == 0 {
		cfg.Cache.ChunkCacheSizeMB = defaults.Cache.ChunkCacheSizeMB
	}
	if cfg.Cache.DistanceCacheSize == 0 {
		cfg.Cache.DistanceCacheSize = defaults.Cache.DistanceCacheSize
	}
	if cfg.Plot.Width == 0 {
		cfg.Plot.Width = defaults.Plot.Width
	}
	if cfg.Plot.Height == 0 {
		cfg.Plot.Height = defaults.Plot.Height
	}
	if cfg.Plot.DefaultColormap == "" {
		cfg.Plot.DefaultColormap = defaults.Plot.DefaultColormap
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = defaults.Store.DBPath
	}
	if cfg.Store.RetentionDays == 0 {
		cfg.Store.RetentionDays = defaults.Store.RetentionDays
	}
}
