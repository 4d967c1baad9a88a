// Package config loads self-play settings from an optional YAML file,
// GOMOKU_* environment variables and built-in defaults, in that order of
// precedence after explicit flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brensch/gomoku/executor/convert"
	"github.com/brensch/gomoku/executor/inference"
	"github.com/brensch/gomoku/executor/mcts"
	"github.com/brensch/gomoku/executor/selfplay"
	"github.com/brensch/gomoku/rules"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

const EnvPrefix = "GOMOKU"

// Oracle kinds.
const (
	OracleUniform = "uniform"
	OracleRandom  = "random"
	OracleOnnx    = "onnx"
)

var oracleKinds = []string{OracleUniform, OracleRandom, OracleOnnx}

type Config struct {
	Board    Board    `mapstructure:"board"`
	Search   Search   `mapstructure:"search"`
	Oracle   Oracle   `mapstructure:"oracle"`
	SelfPlay SelfPlay `mapstructure:"selfplay"`
	Log      Log      `mapstructure:"log"`
}

type Board struct {
	Size          int `mapstructure:"size"`
	WinLength     int `mapstructure:"win_length"`
	OpeningStones int `mapstructure:"opening_stones"`
	OpeningRadius int `mapstructure:"opening_radius"`
}

type Search struct {
	Cpuct             float64       `mapstructure:"cpuct"`
	Simulations       int           `mapstructure:"simulations"`
	Temperature       float64       `mapstructure:"temperature"`
	Strategy          string        `mapstructure:"strategy"`
	StrategyChangePly int           `mapstructure:"strategy_change_ply"`
	AddNoise          bool          `mapstructure:"add_noise"`
	DirichletAlpha    float64       `mapstructure:"dirichlet_alpha"`
	NoiseEps          float64       `mapstructure:"noise_eps"`
	MoveTime          time.Duration `mapstructure:"move_time"`
	Seed              uint64        `mapstructure:"seed"`
}

type Oracle struct {
	Kind           string        `mapstructure:"kind"`
	ModelPath      string        `mapstructure:"model_path"`
	Sessions       int           `mapstructure:"sessions"`
	DisableCUDA    bool          `mapstructure:"disable_cuda"`
	Threads        int           `mapstructure:"threads"`
	History        int           `mapstructure:"history"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	QueueSize      int           `mapstructure:"queue_size"`
	RetryAttempts  uint          `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	Seed           uint64        `mapstructure:"seed"`
}

type SelfPlay struct {
	Workers        int    `mapstructure:"workers"`
	MaxGames       int64  `mapstructure:"max_games"`
	GamesPerFlush  int    `mapstructure:"games_per_flush"`
	OutDir         string `mapstructure:"out_dir"`
	CheckpointPath string `mapstructure:"checkpoint_path"`
	Seed           uint64 `mapstructure:"seed"`
}

type Log struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	search := mcts.DefaultConfig()
	batcher := inference.DefaultBatcherConfig()

	v.SetDefault("board.size", 15)
	v.SetDefault("board.win_length", rules.DefaultWinLength)
	v.SetDefault("board.opening_stones", 0)
	v.SetDefault("board.opening_radius", rules.DefaultOpeningSettings.Radius)

	v.SetDefault("search.cpuct", float64(search.Cpuct))
	v.SetDefault("search.simulations", search.Simulations)
	v.SetDefault("search.temperature", search.Temperature)
	v.SetDefault("search.strategy", search.Strategy.String())
	v.SetDefault("search.strategy_change_ply", search.StrategyChangePly)
	v.SetDefault("search.add_noise", true)
	v.SetDefault("search.dirichlet_alpha", search.DirichletAlpha)
	v.SetDefault("search.noise_eps", search.NoiseEps)
	v.SetDefault("search.move_time", time.Duration(0))
	v.SetDefault("search.seed", uint64(0))

	v.SetDefault("oracle.kind", OracleUniform)
	v.SetDefault("oracle.model_path", "models/gomoku_net.onnx")
	v.SetDefault("oracle.sessions", 1)
	v.SetDefault("oracle.disable_cuda", false)
	v.SetDefault("oracle.threads", 0)
	v.SetDefault("oracle.history", convert.DefaultHistory)
	v.SetDefault("oracle.batch_size", batcher.BatchSize)
	v.SetDefault("oracle.batch_timeout", batcher.BatchTimeout)
	v.SetDefault("oracle.request_timeout", batcher.RequestTimeout)
	v.SetDefault("oracle.queue_size", 0)
	v.SetDefault("oracle.retry_attempts", uint(3))
	v.SetDefault("oracle.retry_delay", 50*time.Millisecond)
	v.SetDefault("oracle.seed", uint64(0))

	v.SetDefault("selfplay.workers", 64)
	v.SetDefault("selfplay.max_games", int64(0))
	v.SetDefault("selfplay.games_per_flush", 50)
	v.SetDefault("selfplay.out_dir", "data/generated")
	v.SetDefault("selfplay.checkpoint_path", "data/checkpoints/inprogress.json")
	v.SetDefault("selfplay.seed", uint64(0))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Load reads path (if not empty) over the defaults and applies GOMOKU_*
// environment overrides, e.g. GOMOKU_SEARCH_SIMULATIONS=800.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file or environment is set.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return cfg
}

func (c Config) Validate() error {
	var errs []error
	if c.Board.Size < 1 {
		errs = append(errs, fmt.Errorf("board.size must be positive, got %d", c.Board.Size))
	}
	if c.Board.WinLength < 1 || c.Board.WinLength > c.Board.Size {
		errs = append(errs, fmt.Errorf("board.win_length must be in [1, %d], got %d", c.Board.Size, c.Board.WinLength))
	}
	if !lo.Contains(oracleKinds, c.Oracle.Kind) {
		errs = append(errs, fmt.Errorf("oracle.kind must be one of %s, got %q", strings.Join(oracleKinds, ", "), c.Oracle.Kind))
	}
	if c.Oracle.Kind == OracleOnnx && c.Oracle.ModelPath == "" {
		errs = append(errs, errors.New("oracle.model_path is required for onnx"))
	}
	if c.SelfPlay.Workers < 1 {
		errs = append(errs, fmt.Errorf("selfplay.workers must be positive, got %d", c.SelfPlay.Workers))
	}
	if _, err := c.MCTS(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MCTS returns the search configuration.
func (c Config) MCTS() (mcts.Config, error) {
	strategy, err := mcts.ParseStrategy(c.Search.Strategy)
	if err != nil {
		return mcts.Config{}, err
	}
	cfg := mcts.Config{
		Cpuct:             float32(c.Search.Cpuct),
		Simulations:       c.Search.Simulations,
		Temperature:       c.Search.Temperature,
		Strategy:          strategy,
		StrategyChangePly: c.Search.StrategyChangePly,
		AddNoise:          c.Search.AddNoise,
		DirichletAlpha:    c.Search.DirichletAlpha,
		NoiseEps:          c.Search.NoiseEps,
		MoveTime:          c.Search.MoveTime,
		Seed:              c.Search.Seed,
	}
	if err := cfg.Validate(); err != nil {
		return mcts.Config{}, fmt.Errorf("search: %w", err)
	}
	return cfg, nil
}

func (c Config) Batcher() inference.BatcherConfig {
	return inference.BatcherConfig{
		BatchSize:      c.Oracle.BatchSize,
		BatchTimeout:   c.Oracle.BatchTimeout,
		RequestTimeout: c.Oracle.RequestTimeout,
		QueueSize:      c.Oracle.QueueSize,
		History:        c.Oracle.History,
	}
}

func (c Config) Onnx() inference.OnnxConfig {
	return inference.OnnxConfig{
		ModelPath:   c.Oracle.ModelPath,
		BoardSize:   c.Board.Size,
		Channels:    convert.Channels(c.Oracle.History),
		DisableCUDA: c.Oracle.DisableCUDA,
		Threads:     c.Oracle.Threads,
	}
}

func (c Config) Rules() rules.Gomoku {
	return rules.Gomoku{WinLength: c.Board.WinLength}
}

func (c Config) Game() selfplay.GameSettings {
	modelPath := ""
	if c.Oracle.Kind == OracleOnnx {
		modelPath = c.Oracle.ModelPath
	}
	return selfplay.GameSettings{
		BoardSize: c.Board.Size,
		Opening:   rules.OpeningSettings{Stones: c.Board.OpeningStones, Radius: c.Board.OpeningRadius},
		Source:    selfplay.DefaultSource,
		ModelPath: modelPath,
		Seed:      c.SelfPlay.Seed,
	}
}

// Coordinator assembles the self-play configuration.
func (c Config) Coordinator() (selfplay.Config, error) {
	search, err := c.MCTS()
	if err != nil {
		return selfplay.Config{}, err
	}
	return selfplay.Config{
		Workers:        c.SelfPlay.Workers,
		MaxGames:       c.SelfPlay.MaxGames,
		GamesPerFlush:  c.SelfPlay.GamesPerFlush,
		OutDir:         c.SelfPlay.OutDir,
		CheckpointPath: c.SelfPlay.CheckpointPath,
		Game:           c.Game(),
		Search:         search,
		Rules:          c.Rules(),
	}, nil
}
