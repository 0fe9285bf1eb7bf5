package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Paths are the host-side directories the batch operates on.
type Paths struct {
	// Submissions is the root directory with one subdirectory per submission.
	Submissions string `toml:"submissions"`
	// Results is the output root; one subdirectory per submission is
	// created under it on demand.
	Results string `toml:"results"`
	// Database is the SQLite file the aggregation step writes to.
	Database string `toml:"database"`
}

// Isolation pins the grading image and the mount points inside it.
// These are fixed configuration, not per-run parameters.
type Isolation struct {
	Image           string   `toml:"image"`
	Platform        string   `toml:"platform"`
	SubmissionMount string   `toml:"submission_mount"`
	OutputMount     string   `toml:"output_mount"`
	EntryCmd        []string `toml:"entry_cmd"`
}

// Limits are optional per-entry resource limits. Zero disables a limit.
type Limits struct {
	WallMs    int64 `toml:"wall_ms"`
	MemoryMiB int64 `toml:"memory_mib"`
}

type Batch struct {
	Workers int `toml:"workers"`
}

// Gatherer holds optional progress publishing targets.
type Gatherer struct {
	NatsUrl     string `toml:"nats_url"`
	NatsSubject string `toml:"nats_subject"`
	SqsUrl      string `toml:"sqs_url"`
}

type Config struct {
	Paths     Paths     `toml:"paths"`
	Isolation Isolation `toml:"isolation"`
	Limits    Limits    `toml:"limits"`
	Batch     Batch     `toml:"batch"`
	Gatherer  Gatherer  `toml:"gatherer"`
}

// Default mirrors the layout grading images conventionally expect:
// submission at /autograder/submission, results at /autograder/results,
// entry point /autograder/run_autograder.
func Default() Config {
	return Config{
		Paths: Paths{
			Submissions: "submissions",
			Results:     "results",
			Database:    "results.sqlite",
		},
		Isolation: Isolation{
			Image:           "autograder",
			Platform:        "linux/amd64",
			SubmissionMount: "/autograder/submission",
			OutputMount:     "/autograder/results",
			EntryCmd:        []string{"/autograder/run_autograder"},
		},
		Batch: Batch{Workers: 1},
	}
}

// Load reads the TOML config at path on top of the defaults, then
// applies environment overrides. A missing file is not an error; the
// defaults plus environment are used.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AUTOGRADER_SUBMISSIONS"); v != "" {
		cfg.Paths.Submissions = v
	}
	if v := os.Getenv("AUTOGRADER_RESULTS"); v != "" {
		cfg.Paths.Results = v
	}
	if v := os.Getenv("AUTOGRADER_DB"); v != "" {
		cfg.Paths.Database = v
	}
	if v := os.Getenv("AUTOGRADER_IMAGE"); v != "" {
		cfg.Isolation.Image = v
	}
	if v := os.Getenv("AUTOGRADER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Batch.Workers = n
		}
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Gatherer.NatsUrl = v
	}
	if v := os.Getenv("NATS_SUBJECT"); v != "" {
		cfg.Gatherer.NatsSubject = v
	}
	if v := os.Getenv("RESULT_SQS_URL"); v != "" {
		cfg.Gatherer.SqsUrl = v
	}
}

func (c *Config) validate() error {
	if c.Isolation.Image == "" {
		return fmt.Errorf("isolation.image must not be empty")
	}
	if len(c.Isolation.EntryCmd) == 0 {
		return fmt.Errorf("isolation.entry_cmd must not be empty")
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1, got %d", c.Batch.Workers)
	}
	return nil
}
