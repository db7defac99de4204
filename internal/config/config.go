// Package config handles fracture tool configuration loading and management.
package config

import (
	"github.com/Faultbox/fracture/pkg/fracture"
	"github.com/Faultbox/fracture/pkg/hull"
)

// Config holds all tool settings. A fracture descriptor file is a Config
// with only the sections it needs.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Fracture FractureConfig `yaml:"fracture"`
	Cutout   CutoutConfig   `yaml:"cutout"`
	Output   OutputConfig   `yaml:"output"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// FractureConfig holds the settings shared by slicing and chipping.
type FractureConfig struct {
	Seed       uint64      `yaml:"seed"`
	HullMethod hull.Method `yaml:"hull_method"`
	// InteriorMaterial names the submesh for faces exposed by cuts. It is
	// added to the mesh when missing; empty keeps cut faces on submesh 0
	// without material frames.
	InteriorMaterial string                    `yaml:"interior_material"`
	ExportCore       bool                      `yaml:"export_core"`
	Processing       fracture.ProcessingParams `yaml:"processing"`
	Slice            fracture.SliceDesc        `yaml:"slice"`
	Material         fracture.MaterialDesc     `yaml:"material"`
}

// CutoutConfig holds cutout set building and chipping settings.
type CutoutConfig struct {
	SnapThreshold float64             `yaml:"snap_threshold"`
	Desc          fracture.CutoutDesc `yaml:"desc"`
	// PreviewScale is the pixel size of one bitmap pixel in previews.
	PreviewScale int `yaml:"preview_scale"`
}

// OutputConfig holds result writing settings.
type OutputConfig struct {
	Dir string `yaml:"dir"`
	// Depth selects the hierarchy level written as OBJ; -1 writes the leaves.
	Depth int `yaml:"depth"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Textfile, when set, receives the run's metrics in the Prometheus text
	// format after each command.
	Textfile string `yaml:"textfile"`
	// Listen, when set, serves /metrics while a command runs.
	Listen string `yaml:"listen"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
		Fracture: FractureConfig{
			Seed:             1,
			HullMethod:       hull.Method6DOP,
			InteriorMaterial: "interior",
			Slice: fracture.SliceDesc{
				MaxDepth: 1,
				Levels: []fracture.SliceParameters{{
					Order:         fracture.OrderXYZ,
					SplitsPerPass: [3]int{1, 1, 1},
				}},
			},
		},
		Cutout: CutoutConfig{
			SnapThreshold: 2,
			Desc: fracture.CutoutDesc{
				Directions: []fracture.CutoutDirection{{Dir: fracture.DirPosZ}},
			},
			PreviewScale: 4,
		},
		Output: OutputConfig{
			Dir:   ".",
			Depth: -1,
		},
	}
}
