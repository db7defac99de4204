package config

import "flag"

// Flags are the command-line overrides shared by the tool's commands.
type Flags struct {
	Config  *string
	Debug   *bool
	Seed    *uint64
	Workers *int
	Depth   *int
	Out     *string
	Hull    *string
}

// RegisterFlags adds the shared override flags to fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		Config:  fs.String("config", "", "Path to config file"),
		Debug:   fs.Bool("debug", false, "Enable debug logging"),
		Seed:    fs.Uint64("seed", 0, "Random seed (0 keeps the configured seed)"),
		Workers: fs.Int("workers", 0, "Parallel part workers (0 keeps the configured count)"),
		Depth:   fs.Int("depth", 0, "Maximum slice depth (0 keeps the configured depth)"),
		Out:     fs.String("out", "", "Output directory"),
		Hull:    fs.String("hull", "", "Collision hull method"),
	}
}

// ConfigPath returns the explicit config path if provided via --config flag.
func (f *Flags) ConfigPath() string {
	if f == nil || f.Config == nil {
		return ""
	}
	return *f.Config
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) error {
	if f == nil {
		return nil
	}
	if f.Debug != nil && *f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.Seed != nil && *f.Seed != 0 {
		cfg.Fracture.Seed = *f.Seed
	}
	if f.Workers != nil && *f.Workers > 0 {
		cfg.Fracture.Processing.Workers = *f.Workers
	}
	if f.Depth != nil && *f.Depth > 0 {
		cfg.Fracture.Slice.MaxDepth = *f.Depth
	}
	if f.Out != nil && *f.Out != "" {
		cfg.Output.Dir = *f.Out
	}
	if f.Hull != nil && *f.Hull != "" {
		return cfg.Fracture.HullMethod.UnmarshalText([]byte(*f.Hull))
	}
	return nil
}
