package manoka

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/gekko3d/manoka/voxelrt/rt/gpu"

	"gopkg.in/yaml.v3"
)

type WindowConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Title  string `yaml:"title"`
}

// Config drives the chunk renderer. MaxChunks is part of the shader binding
// layout: changing it requires a pipeline built from a shader generated for
// the new value.
type Config struct {
	MaxChunks     int          `yaml:"max_chunks"`
	WorkgroupEdge int          `yaml:"workgroup_edge"`
	ChunkLayout   string       `yaml:"chunk_layout"`
	EncodeWorkers int          `yaml:"encode_workers"`
	Debug         bool         `yaml:"debug"`
	LogPrefix     string       `yaml:"log_prefix"`
	Window        WindowConfig `yaml:"window"`
}

func DefaultConfig() Config {
	return Config{
		MaxChunks:     gpu.DefaultMaxChunks,
		WorkgroupEdge: gpu.WorkgroupEdge,
		ChunkLayout:   gpu.LayoutSplit.String(),
		EncodeWorkers: runtime.NumCPU(),
		LogPrefix:     "manoka",
		Window: WindowConfig{
			Width:  1280,
			Height: 720,
			Title:  "Manoka",
		},
	}
}

// LoadConfig reads a YAML file over the defaults. Missing keys keep their
// default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Layout() gpu.ChunkLayout {
	l, _ := gpu.ParseChunkLayout(c.ChunkLayout)
	return l
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxChunks < 1 {
		errs = append(errs, fmt.Errorf("max_chunks must be at least 1, got %d", c.MaxChunks))
	}
	if c.WorkgroupEdge != gpu.WorkgroupEdge {
		errs = append(errs, fmt.Errorf("workgroup_edge is fixed at %d by the shader, got %d", gpu.WorkgroupEdge, c.WorkgroupEdge))
	}
	if _, err := gpu.ParseChunkLayout(c.ChunkLayout); err != nil {
		errs = append(errs, err)
	}
	if c.EncodeWorkers < 1 {
		errs = append(errs, fmt.Errorf("encode_workers must be at least 1, got %d", c.EncodeWorkers))
	}
	if c.Window.Width < 1 || c.Window.Height < 1 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height))
	}
	return errors.Join(errs...)
}
