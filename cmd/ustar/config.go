package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

type logConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type cacheConfig struct {
	Dir       string `yaml:"dir"`
	Blocks    int    `yaml:"blocks"`
	MaxBytes  int64  `yaml:"maxBytes"`
	BlockSize int64  `yaml:"blockSize"`
}

type config struct {
	Logs        logConfig         `yaml:"logs"`
	Cache       cacheConfig       `yaml:"cache"`
	MaxLinkHops int               `yaml:"maxLinkHops"`
	Concurrency int               `yaml:"concurrency"`
	HTTPHeaders map[string]string `yaml:"httpHeaders"`
	TempDir     string            `yaml:"tempDir"`
}

func defaultConfig() config {
	return config{
		Logs: logConfig{
			Level:      "warn",
			MaxSizeMB:  25,
			MaxAgeDays: 7,
			MaxBackups: 5,
		},
		Cache: cacheConfig{
			BlockSize: 64 << 10,
		},
		Concurrency: runtime.NumCPU(),
	}
}

// loadConfig reads a YAML config file over the defaults. Zero values in the
// file keep the default.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path) //nolint:gosec // user-provided config path
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	var file config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.merge(file)
	return cfg, nil
}

func (c *config) merge(o config) {
	if o.Logs.Level != "" {
		c.Logs.Level = o.Logs.Level
	}
	if o.Logs.File != "" {
		c.Logs.File = o.Logs.File
	}
	if o.Logs.MaxSizeMB > 0 {
		c.Logs.MaxSizeMB = o.Logs.MaxSizeMB
	}
	if o.Logs.MaxAgeDays > 0 {
		c.Logs.MaxAgeDays = o.Logs.MaxAgeDays
	}
	if o.Logs.MaxBackups > 0 {
		c.Logs.MaxBackups = o.Logs.MaxBackups
	}
	c.Logs.Compress = c.Logs.Compress || o.Logs.Compress
	if o.Cache.Dir != "" {
		c.Cache.Dir = o.Cache.Dir
	}
	if o.Cache.Blocks > 0 {
		c.Cache.Blocks = o.Cache.Blocks
	}
	if o.Cache.MaxBytes > 0 {
		c.Cache.MaxBytes = o.Cache.MaxBytes
	}
	if o.Cache.BlockSize > 0 {
		c.Cache.BlockSize = o.Cache.BlockSize
	}
	if o.MaxLinkHops > 0 {
		c.MaxLinkHops = o.MaxLinkHops
	}
	if o.Concurrency > 0 {
		c.Concurrency = o.Concurrency
	}
	if len(o.HTTPHeaders) > 0 {
		c.HTTPHeaders = o.HTTPHeaders
	}
	if o.TempDir != "" {
		c.TempDir = o.TempDir
	}
}

// newLogger builds the text logger described by cfg. Logs go to stderr
// unless a file is configured, in which case they rotate through lumberjack.
func newLogger(cfg logConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	var w io.Writer = stderr
	var closer io.Closer = closerFunc(func() error { return nil })
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		w, closer = rotator, rotator
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer, nil
}
