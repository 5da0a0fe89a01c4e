// Package config loads and saves YAML run configurations.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"haplotrack/internal/population"
	"haplotrack/internal/storage"
)

var ErrInvalid = errors.New("invalid config")

// Recombination kinds.
const (
	KindTrivial         = "trivial"
	KindSingleCrossover = "single-crossover"
	KindUniform         = "uniform"
	KindGeneticMap      = "genetic-map"
	KindComposite       = "composite"
)

type Config struct {
	Run           RunConfig           `yaml:"run"`
	Population    PopulationConfig    `yaml:"population"`
	Recombination RecombinationConfig `yaml:"recombination"`
	Storage       StorageConfig       `yaml:"storage"`
}

type RunConfig struct {
	Seed        int64 `yaml:"seed"`
	Generations int   `yaml:"generations"`
	// Workers building children; zero uses GOMAXPROCS.
	Workers int `yaml:"workers"`
	// SnapshotEvery stores the population every n generations. The founders
	// and the final generation are always stored.
	SnapshotEvery        int    `yaml:"snapshot_every"`
	ArtifactsDir         string `yaml:"artifacts_dir"`
	WriteFinalPopulation bool   `yaml:"write_final_population"`
}

type PopulationConfig struct {
	Layout string `yaml:"layout"`
	// Size of every bred generation; zero keeps the founder count.
	Size              int      `yaml:"size"`
	ChromosomeLengths []uint32 `yaml:"chromosome_lengths"`
	Subpopulations    []int    `yaml:"subpopulations"`
}

type RecombinationConfig struct {
	Kind string `yaml:"kind"`
	// Rate is the expected crossover count per chromosome for uniform.
	Rate        float64                   `yaml:"rate"`
	GeneticMaps []string                  `yaml:"genetic_maps,omitempty"`
	Chromosomes []ChromosomeRecombination `yaml:"chromosomes,omitempty"`
}

// ChromosomeRecombination overrides the source of one chromosome pair in a
// composite configuration. Chromosome numbers start at 1.
type ChromosomeRecombination struct {
	Chromosome int     `yaml:"chromosome"`
	Kind       string  `yaml:"kind"`
	Rate       float64 `yaml:"rate,omitempty"`
	GeneticMap string  `yaml:"genetic_map,omitempty"`
}

type StorageConfig struct {
	// Kind is memory or sqlite; empty picks the build default.
	Kind   string `yaml:"kind"`
	DBPath string `yaml:"db_path"`
}

func Default() *Config {
	return &Config{
		Run: RunConfig{
			Seed:          1,
			Generations:   10,
			SnapshotEvery: 0,
			ArtifactsDir:  "artifacts",
		},
		Population: PopulationConfig{
			Layout:            string(population.LayoutOrganisms),
			ChromosomeLengths: []uint32{100_000_000, 50_000_000},
			Subpopulations:    []int{50, 50},
		},
		Recombination: RecombinationConfig{
			Kind: KindUniform,
			Rate: 1,
		},
		Storage: StorageConfig{
			DBPath: storage.DefaultSQLitePath,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Population.ChromosomeLengths = append([]uint32(nil), c.Population.ChromosomeLengths...)
	out.Population.Subpopulations = append([]int(nil), c.Population.Subpopulations...)
	out.Recombination.GeneticMaps = append([]string(nil), c.Recombination.GeneticMaps...)
	out.Recombination.Chromosomes = append([]ChromosomeRecombination(nil), c.Recombination.Chromosomes...)
	return &out
}

// InitConfig writes the default config unless path already exists.
func InitConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := Default().Save(path); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Config) Founders() population.FounderConfig {
	return population.FounderConfig{
		Layout:              population.Layout(c.Population.Layout),
		ChromosomePairCount: len(c.Population.ChromosomeLengths),
		Subpopulations:      append([]int(nil), c.Population.Subpopulations...),
	}
}

func (c *Config) Validate() error {
	if c.Run.Generations < 0 {
		return fmt.Errorf("generations %d is negative: %w", c.Run.Generations, ErrInvalid)
	}
	if c.Run.Workers < 0 {
		return fmt.Errorf("workers %d is negative: %w", c.Run.Workers, ErrInvalid)
	}
	if c.Run.SnapshotEvery < 0 {
		return fmt.Errorf("snapshot_every %d is negative: %w", c.Run.SnapshotEvery, ErrInvalid)
	}
	if c.Population.Size < 0 {
		return fmt.Errorf("population size %d is negative: %w", c.Population.Size, ErrInvalid)
	}
	if _, err := population.ParseLayout(c.Population.Layout); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for i, l := range c.Population.ChromosomeLengths {
		if l == 0 {
			return fmt.Errorf("chromosome %d has zero length: %w", i+1, ErrInvalid)
		}
	}
	if err := c.Founders().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !storage.SupportedKind(c.Storage.Kind) {
		return fmt.Errorf("unknown store kind %q: %w", c.Storage.Kind, ErrInvalid)
	}
	return c.Recombination.validate(len(c.Population.ChromosomeLengths))
}

func (r RecombinationConfig) validate(pairCount int) error {
	switch r.Kind {
	case KindTrivial, KindSingleCrossover:
		return nil
	case KindUniform:
		if r.Rate < 0 {
			return fmt.Errorf("uniform rate %g is negative: %w", r.Rate, ErrInvalid)
		}
		return nil
	case KindGeneticMap:
		if len(r.GeneticMaps) != pairCount {
			return fmt.Errorf("%d genetic maps for %d chromosomes: %w", len(r.GeneticMaps), pairCount, ErrInvalid)
		}
		for i, path := range r.GeneticMaps {
			if path == "" {
				return fmt.Errorf("chromosome %d has no genetic map: %w", i+1, ErrInvalid)
			}
		}
		return nil
	case KindComposite:
		seen := make(map[int]bool, len(r.Chromosomes))
		for _, c := range r.Chromosomes {
			if c.Chromosome < 1 || c.Chromosome > pairCount {
				return fmt.Errorf("composite chromosome %d outside [1,%d]: %w", c.Chromosome, pairCount, ErrInvalid)
			}
			if seen[c.Chromosome] {
				return fmt.Errorf("composite chromosome %d assigned twice: %w", c.Chromosome, ErrInvalid)
			}
			seen[c.Chromosome] = true
			switch c.Kind {
			case KindTrivial, KindSingleCrossover:
			case KindUniform:
				if c.Rate < 0 {
					return fmt.Errorf("composite chromosome %d rate %g is negative: %w", c.Chromosome, c.Rate, ErrInvalid)
				}
			case KindGeneticMap:
				if c.GeneticMap == "" {
					return fmt.Errorf("composite chromosome %d has no genetic map: %w", c.Chromosome, ErrInvalid)
				}
			default:
				return fmt.Errorf("composite chromosome %d has kind %q: %w", c.Chromosome, c.Kind, ErrInvalid)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown recombination kind %q: %w", r.Kind, ErrInvalid)
	}
}
