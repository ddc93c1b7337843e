package main

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
	"github.com/vkngwrapper/mmalloc/memutils"
	"github.com/vkngwrapper/mmalloc/memutils/arena"
	"github.com/vkngwrapper/mmalloc/memutils/metadata"
	"gopkg.in/yaml.v3"
)

const envVarPrefix = "MMDRIVER"

// Config controls how traces are replayed. Values come from the defaults, then the YAML file
// named by --config, then MMDRIVER_* environment variables, then command line flags.
type Config struct {
	TraceDir  string `envconfig:"TRACE_DIR"  yaml:"traceDir"`
	ChunkSize int    `envconfig:"CHUNK_SIZE" yaml:"chunkSize"`
	MaxHeap   int    `envconfig:"MAX_HEAP"   yaml:"maxHeap"`
	Strategy  string `envconfig:"STRATEGY"   yaml:"strategy"`
	Mapped    bool   `envconfig:"MMAP"       yaml:"mmap"`
	Validate  bool   `envconfig:"VALIDATE"   yaml:"validate"`
}

func defaultConfig() Config {
	return Config{
		TraceDir:  "traces",
		ChunkSize: metadata.DefaultChunkSize,
		MaxHeap:   arena.DefaultMaxSize,
		Strategy:  "first-fit",
		// Debug builds check every op unless told otherwise
		Validate:  memutils.DebugValidation,
	}
}

// LoadConfig reads the configuration file at path, if path is not empty, and applies environment
// overrides on top of it
func LoadConfig(path string) (Config, error) {
	c := defaultConfig()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return c, errors.Wrap(err, "reading config file")
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		err = decoder.Decode(&c)
		if err != nil {
			return c, errors.Wrapf(err, "unmarshaling config file %s", path)
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return c, errors.Wrap(err, "parsing environment variables")
	}

	return c, c.validate()
}

func (c Config) validate() error {
	if c.MaxHeap <= 0 {
		return errors.Newf("maxHeap must be positive, but was %d", c.MaxHeap)
	}

	if c.ChunkSize < 0 {
		return errors.Newf("chunkSize cannot be negative, but was %d", c.ChunkSize)
	}

	_, err := parseStrategy(c.Strategy)
	return err
}

var strategyNames = map[string]metadata.AllocationStrategy{
	"":              0,
	"first-fit":     0,
	"best-fit":      metadata.AllocationStrategyMinMemory,
	"lowest-offset": metadata.AllocationStrategyMinOffset,
}

func parseStrategy(name string) (metadata.AllocationStrategy, error) {
	strategy, ok := strategyNames[strings.ToLower(name)]
	if !ok {
		return 0, errors.Newf("unknown strategy %q: expected first-fit, best-fit or lowest-offset", name)
	}

	return strategy, nil
}
