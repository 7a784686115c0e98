// Package runconfig loads the ambient configuration an embedding process
// uses to initialize logging, pick a default solver, and bind the live
// monitor, separate from the programmatic construction of a simulation
// itself (§4.J). It is a convenience layer, not a replacement for building
// a discipline/master in code.
package runconfig

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvOverride is the one environment variable the ambient stack reads: an
// optional path to the config document, checked by the embedding process
// before falling back to its own default path.
const EnvOverride = "COSIM_CONFIG"

// outerConfig is viper's loosely-typed read of the document; Def is
// remarshaled into Config below. A two-stage viper-read-then-yaml-remarshal
// is used because this config document is a loosely-typed outer envelope
// ("kind: cosim" plus a free-form body) around a strongly-typed inner
// block.
type outerConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// Config is the strongly-typed ambient configuration block. viper
// lowercases every key it reads, so the yaml tags are lowercase; a document
// may spell them in any case (e.g. "logLevel").
type Config struct {
	// LogLevel selects the standard library log verbosity this process
	// should run at: "debug", "info", "warn", or "error".
	LogLevel string `yaml:"loglevel"`
	// DefaultSolver names the integrator.Solver a model-exchange
	// discipline should use when its construction does not specify one.
	DefaultSolver string `yaml:"defaultsolver"`
	// MonitorAddr is the bind address the live monitor listens on, if the
	// embedding process starts one.
	MonitorAddr string `yaml:"monitoraddr"`
	// DefaultStrategy selects "gauss-seidel" or "jacobi" when a master is
	// constructed without an explicit coupling.Strategy.
	DefaultStrategy string `yaml:"defaultstrategy"`
}

// Defaults returns the configuration used when no document is found.
func Defaults() *Config {
	return &Config{
		LogLevel:        "info",
		DefaultSolver:   "bdf1",
		MonitorAddr:     ":8080",
		DefaultStrategy: "gauss-seidel",
	}
}

// Load reads the YAML document at path and returns its Config; any field
// the document leaves out keeps its Defaults() value.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	if err := vp.ReadInConfig(); err != nil {
		return nil, err
	}

	outer := &outerConfig{}
	if err := vp.Unmarshal(outer); err != nil {
		return nil, err
	}

	spec, err := yaml.Marshal(outer.Def)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(spec, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnvironment resolves the config path from EnvOverride, falling
// back to defaultPath when the environment variable is unset, and to
// Defaults() when neither file exists.
func LoadFromEnvironment(defaultPath string) (*Config, error) {
	path := defaultPath
	if override, ok := os.LookupEnv(EnvOverride); ok {
		path = override
	}
	if path == "" {
		return Defaults(), nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return nil, err
	}
	return Load(path)
}
