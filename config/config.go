// Package config loads the yaml application config and watches it for
// training-default changes.
package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the application configuration.
type Config struct {
	Http struct {
		Port int `yaml:"port"`
	} `yaml:"http"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"log"`
	Sessions struct {
		MaxActive int `yaml:"max_active"`
	} `yaml:"sessions"`
	Training struct {
		ImageGridSize        int   `yaml:"image_grid_size"`
		ImageClassCap        int   `yaml:"image_class_cap"`
		MaxImageClasses      int   `yaml:"max_image_classes"`
		ClassUniqueThreshold int   `yaml:"class_unique_threshold"`
		Seed                 int64 `yaml:"seed"`
	} `yaml:"training"`
}

// Load reads the config file and applies defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Http.Port == 0 {
		c.Http.Port = 8080
	}
	if c.Database.Path == "" {
		c.Database.Path = "mllab.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Sessions.MaxActive == 0 {
		c.Sessions.MaxActive = 64
	}
	if c.Training.ImageGridSize == 0 {
		c.Training.ImageGridSize = 64
	}
	if c.Training.ImageClassCap == 0 {
		c.Training.ImageClassCap = 100
	}
	if c.Training.MaxImageClasses == 0 {
		c.Training.MaxImageClasses = 5
	}
	if c.Training.ClassUniqueThreshold == 0 {
		c.Training.ClassUniqueThreshold = 10
	}
}
