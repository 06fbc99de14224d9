package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/lcarev/internal/revision"
	toml "github.com/pelletier/go-toml/v2"
)

// NodeAuto selects a random revision node discriminator on every start.
const NodeAuto int64 = -1

type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Revisions RevisionsConfig `toml:"revisions"`
	Logging   LoggingConfig   `toml:"logging"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type RevisionsConfig struct {
	// NodeID is the revision id node discriminator; NodeAuto picks one at random.
	NodeID         int64  `toml:"node_id"`
	DefaultAuthors string `toml:"default_authors"`
	Head           string `toml:"head"`
	// Workers bounds concurrent delta generation; zero uses every CPU.
	Workers int `toml:"workers"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Revisions: RevisionsConfig{
			NodeID: NodeAuto,
			Head:   "main",
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".lcarev/log",
			},
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	if c.Revisions.NodeID != NodeAuto && (c.Revisions.NodeID < 0 || c.Revisions.NodeID > revision.MaxNode) {
		return fmt.Errorf("revisions.node_id must be between 0 and %d, or %d for random", revision.MaxNode, NodeAuto)
	}
	if strings.TrimSpace(c.Revisions.Head) == "" {
		return errors.New("revisions.head is required")
	}
	if c.Revisions.Workers < 0 {
		return errors.New("revisions.workers must be >= 0")
	}

	if _, err := charmLog.ParseLevel(strings.TrimSpace(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	return nil
}

// Generator builds the revision id generator the configuration selects.
func (c RevisionsConfig) Generator() (*revision.Generator, error) {
	if c.NodeID == NodeAuto {
		return revision.NewRandomGenerator()
	}
	return revision.NewGenerator(c.NodeID)
}

// Save writes cfg as TOML, creating the parent directory.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	content, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
