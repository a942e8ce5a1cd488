package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codewandler/clstr-dispatch/core/message"
	"github.com/codewandler/clstr-dispatch/core/unit"
)

const defaultQueueCapacity = 1024

type Config struct {
	Node       NodeConfig       `yaml:"node"`
	Transport  TransportConfig  `yaml:"transport"`
	Codec      string           `yaml:"codec"`
	Translator TranslatorConfig `yaml:"translator"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Units      []UnitConfig     `yaml:"units"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	LogLevel   string           `yaml:"log_level"`
}

type NodeConfig struct {
	ID        string   `yaml:"id"`
	Addresses []string `yaml:"addresses"`
}

type TransportConfig struct {
	// Kind is "nats" or "mem".
	Kind          string `yaml:"kind"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type TranslatorConfig struct {
	// Kind is "native" or "cloudevents".
	Kind   string `yaml:"kind"`
	Source string `yaml:"source"`
	Type   string `yaml:"type"`
}

type DispatchConfig struct {
	Target string `yaml:"target"`
	Mode   string `yaml:"mode"`
	// QueueCapacity is a pointer so an explicit non-positive value reaches
	// the dispatcher and fails startup instead of being defaulted.
	QueueCapacity   *int          `yaml:"queue_capacity"`
	Workers         int           `yaml:"workers"`
	ReplyTimeout    time.Duration `yaml:"reply_timeout"`
	ContinueOnError bool          `yaml:"continue_on_error"`
}

type UnitConfig struct {
	ID    string `yaml:"id"`
	Type  string `yaml:"type"`
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LoadConfig reads the YAML file at path. NATS_URL overrides transport.url.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.Transport.URL = url
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Transport.Kind == "" {
		c.Transport.Kind = "mem"
	}
	if c.Transport.SubjectPrefix == "" {
		c.Transport.SubjectPrefix = "clstr"
	}
	if c.Codec == "" {
		c.Codec = "json"
	}
	if c.Translator.Kind == "" {
		c.Translator.Kind = "native"
	}
	if c.Dispatch.QueueCapacity == nil {
		n := defaultQueueCapacity
		c.Dispatch.QueueCapacity = &n
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) translator() (message.Translator, error) {
	switch strings.ToLower(c.Translator.Kind) {
	case "native":
		return message.NewNativeTranslator(c.Codec)
	case "cloudevents":
		return message.CloudEventsTranslator{Source: c.Translator.Source, Type: c.Translator.Type}, nil
	default:
		return nil, fmt.Errorf("unknown translator %q", c.Translator.Kind)
	}
}

func (c *Config) units() ([]unit.ProcessingUnit, error) {
	units := make([]unit.ProcessingUnit, 0, len(c.Units))
	for i, uc := range c.Units {
		id := uc.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", uc.Type, i)
		}
		switch uc.Type {
		case "upper":
			units = append(units, unit.Upper(id))
		case "set_header":
			if uc.Key == "" {
				return nil, fmt.Errorf("unit %s: key is required", id)
			}
			units = append(units, unit.SetHeader(id, uc.Key, uc.Value))
		case "log":
			units = append(units, unit.Log(id, nil, slog.LevelInfo))
		case "fail":
			units = append(units, unit.Fail(id, uc.Value))
		default:
			return nil, fmt.Errorf("unit %s: unknown type %q", id, uc.Type)
		}
	}
	return units, nil
}
