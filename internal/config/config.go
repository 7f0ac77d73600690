package config

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/flashdeck/internal/fsrs"
	"github.com/conorfennell/flashdeck/internal/study"
)

// EnvPrefix is the prefix of environment overrides. Nested keys use a double
// underscore, e.g. FLASHDECK_SERVER__ADDR.
const EnvPrefix = "FLASHDECK_"

// ErrHelp is returned by Load when the user asked for usage.
var ErrHelp = pflag.ErrHelp

// Config holds all configuration for the application.
type Config struct {
	Command   string          `koanf:"-" validate:"oneof=serve sync"` // first positional argument
	DB        string          `koanf:"db" validate:"required"`
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Sampler   SamplerConfig   `koanf:"sampler"`
	Sync      SyncConfig      `koanf:"sync"`
	Demo      DemoConfig      `koanf:"demo"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// SchedulerConfig holds the tunable review scheduler parameters.
type SchedulerConfig struct {
	DesiredRetention float64  `koanf:"desired_retention" validate:"gt=0,lt=1"`
	MaximumInterval  int      `koanf:"maximum_interval" validate:"gte=1"`
	EnableFuzz       bool     `koanf:"enable_fuzz"`
	LearningSteps    []string `koanf:"learning_steps"`
	RelearningSteps  []string `koanf:"relearning_steps"`
	Seed             int64    `koanf:"seed"` // 0 seeds from the clock
}

// SamplerConfig overrides the base session weights per state. Zero keeps
// the default.
type SamplerConfig struct {
	New        float64 `koanf:"new" validate:"gte=0"`
	Learning   float64 `koanf:"learning" validate:"gte=0"`
	Relearning float64 `koanf:"relearning" validate:"gte=0"`
	Review     float64 `koanf:"review" validate:"gte=0"`
}

// SyncConfig holds deck source sync configuration.
type SyncConfig struct {
	ReposDir   string `koanf:"repos_dir" validate:"required"`
	FetchLimit int    `koanf:"fetch_limit" validate:"gte=1,lte=64"`
}

// DemoConfig controls the demo deck created on an empty database.
type DemoConfig struct {
	Seed bool `koanf:"seed"`
}

// Flags returns the flag set carrying every option and its default.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("flashdeck", pflag.ContinueOnError)
	f.StringP("config", "c", "", "Path to a YAML config file")
	f.String("db", "flashdeck.db", "Path to the SQLite database file")
	f.String("server.addr", ":8080", "HTTP listen address")
	f.String("log.level", "info", "Log level: debug, info, warn or error")
	f.String("log.format", "text", "Log format: text or json")
	f.Float64("scheduler.desired_retention", 0.9, "Target probability of recall at the due date")
	f.Int("scheduler.maximum_interval", 36500, "Longest review interval in days")
	f.Bool("scheduler.enable_fuzz", true, "Randomise review intervals slightly")
	f.StringSlice("scheduler.learning_steps", []string{"1m", "10m"}, "Learning step durations")
	f.StringSlice("scheduler.relearning_steps", []string{"10m"}, "Relearning step durations")
	f.Int64("scheduler.seed", 0, "Random seed for fuzz and sampling (0 = clock)")
	f.Float64("sampler.new", 0, "Base session weight of new cards (0 = default)")
	f.Float64("sampler.learning", 0, "Base session weight of learning cards (0 = default)")
	f.Float64("sampler.relearning", 0, "Base session weight of relearning cards (0 = default)")
	f.Float64("sampler.review", 0, "Base session weight of review cards (0 = default)")
	f.String("sync.repos_dir", "repos", "Directory for git source checkouts")
	f.Int("sync.fetch_limit", 4, "Git repositories fetched concurrently")
	f.Bool("demo.seed", true, "Create a demo deck when the database is empty")
	return f
}

// Load parses args and merges, from lowest to highest priority, flag
// defaults, the optional config file, environment variables and flags set
// on the command line.
func Load(args []string) (*Config, error) {
	f := Flags()
	if err := f.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if path, _ := f.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}

	// Unchanged flags only fill keys nothing else set.
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("error reading flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Command = "serve"
	if f.NArg() > 0 {
		cfg.Command = f.Arg(0)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps FLASHDECK_SCHEDULER__ENABLE_FUZZ to scheduler.enable_fuzz.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration, including that the step lists parse.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.SchedulerParams(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SchedulerParams builds validated scheduler parameters from the config.
func (c *Config) SchedulerParams() (*fsrs.Params, error) {
	learning, err := parseSteps(c.Scheduler.LearningSteps)
	if err != nil {
		return nil, fmt.Errorf("learning steps: %w", err)
	}
	relearning, err := parseSteps(c.Scheduler.RelearningSteps)
	if err != nil {
		return nil, fmt.Errorf("relearning steps: %w", err)
	}

	p := fsrs.DefaultParams()
	p.DesiredRetention = c.Scheduler.DesiredRetention
	p.MaximumInterval = c.Scheduler.MaximumInterval
	p.EnableFuzz = c.Scheduler.EnableFuzz
	p.LearningSteps = learning
	p.RelearningSteps = relearning
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// SamplerWeights returns the session weights with configured overrides.
func (c *Config) SamplerWeights() study.Weights {
	w := study.DefaultWeights()
	overrides := []struct {
		value float64
		dst   *float64
	}{
		{c.Sampler.New, &w.New},
		{c.Sampler.Learning, &w.Learning},
		{c.Sampler.Relearning, &w.Relearning},
		{c.Sampler.Review, &w.Review},
	}
	for _, o := range overrides {
		if o.value > 0 {
			*o.dst = o.value
		}
	}
	return w
}

// Rand returns a new random source for the scheduler or sampler. A fixed seed
// makes runs reproducible.
func (c *Config) Rand() *rand.Rand {
	seed := c.Scheduler.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func parseSteps(raw []string) ([]time.Duration, error) {
	steps := make([]time.Duration, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, err
		}
		steps = append(steps, d)
	}
	return steps, nil
}
