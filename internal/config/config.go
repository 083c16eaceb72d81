package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"github.com/mentat-is/muty-go/internal/log"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	LoggingConfig struct {
		Level      string `yaml:"level" validate:"required,oneof=none debug normal"`
		File       string `yaml:"file,omitempty" sanitize:"path_clean,assure_dir_exists_for_file" validate:"omitempty,filepath"`
		Mode       string `yaml:"mode,omitempty" validate:"omitempty,oneof=append overwrite"`
		MaxSizeMB  int    `yaml:"max_size_mb" validate:"min=1"`
		MaxBackups int    `yaml:"max_backups" validate:"min=1"`
		Compress   bool   `yaml:"compress"`
	}

	ExtractConfig struct {
		Format             string `yaml:"format" validate:"oneof=auto zip rar"`
		TempDir            string `yaml:"temp_dir,omitempty" validate:"omitempty,dirpath"`
		Flatten            bool   `yaml:"flatten"`
		AllowSymlinks      bool   `yaml:"allow_symlinks"`
		MaxTotalBytes      int64  `yaml:"max_total_bytes" validate:"gte=0"`
		MaxDictionaryBytes int64  `yaml:"max_dictionary_bytes" validate:"gte=0"`
	}

	UploadConfig struct {
		ChunkSize int    `yaml:"chunk_size" validate:"min=1"`
		TempDir   string `yaml:"temp_dir,omitempty" validate:"omitempty,dirpath"`
	}

	PluginsConfig struct {
		Dir     string        `yaml:"dir,omitempty" validate:"omitempty,dirpath"`
		Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	}

	TimeConfig struct {
		NTPServer string `yaml:"ntp_server" validate:"omitempty,hostname_port|hostname"`
	}

	Config struct {
		Version int           `yaml:"version" validate:"eq=1"`
		Logging LoggingConfig `yaml:"logging"`
		Extract ExtractConfig `yaml:"extract"`
		Upload  UploadConfig  `yaml:"upload"`
		Plugins PluginsConfig `yaml:"plugins"`
		Time    TimeConfig    `yaml:"time"`
	}
)

// Prepare builds the logger described by conf. debug and quiet come from the
// command line and win over the configured level.
func (conf *LoggingConfig) Prepare(stdout, stderr io.Writer, debug, quiet bool) (*log.Logger, error) {
	return log.New(log.Options{
		Quiet:      quiet || conf.Level == "none",
		Verbose:    debug || conf.Level == "debug",
		Stdout:     stdout,
		Stderr:     stderr,
		File:       conf.File,
		MaxSizeMB:  conf.MaxSizeMB,
		MaxBackups: conf.MaxBackups,
		Append:     conf.Mode != "overwrite",
		Compress:   conf.Compress,
	})
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// Only fields defined above are accepted, so yaml.Unmarshal cannot be
	// used directly.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration expands the built-in template, overlays the file at path
// (when given) and validates the result.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare returns the expanded default configuration.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}
