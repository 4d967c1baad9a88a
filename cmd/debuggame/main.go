package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brensch/gomoku/config"
	"github.com/brensch/gomoku/executor/mcts"
	"github.com/brensch/gomoku/executor/selfplay"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file")
	oracle := flag.String("oracle", "", "Oracle: uniform, random or onnx")
	modelPath := flag.String("model", "", "Path to ONNX model")
	outDir := flag.String("out-dir", "debug_games", "Output directory for debug games")
	boardSize := flag.Int("board", 0, "Board size")
	sims := flag.Int("sims", 100, "Number of MCTS simulations per move")
	cpuct := flag.Float64("cpuct", 1.0, "MCTS exploration constant")
	depth := flag.Int("depth", 2, "Tree depth captured per move (0 = whole tree)")
	planes := flag.Bool("planes", false, "Also print the encoded input planes each ply")
	cuda := flag.Bool("cuda", true, "Enable CUDA for inference")
	seed := flag.Uint64("seed", 0, "Seed for the opening and search (0 = random)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Give up after this long")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "oracle":
			cfg.Oracle.Kind = *oracle
		case "model":
			cfg.Oracle.ModelPath = *modelPath
		case "board":
			cfg.Board.Size = *boardSize
		}
	})
	cfg.Search.Simulations = *sims
	cfg.Search.Cpuct = *cpuct
	cfg.Search.Seed = *seed
	cfg.SelfPlay.Seed = *seed
	cfg.Oracle.DisableCUDA = !*cuda
	// A single game never fills a batch.
	cfg.Oracle.BatchSize = 1
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	orc, err := cfg.Open(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("open oracle")
	}
	defer orc.Close()

	searchCfg, err := cfg.MCTS()
	if err != nil {
		log.Fatal().Err(err).Msg("search config")
	}
	search, err := mcts.NewSearch(cfg.Board.Size, searchCfg, cfg.Rules(), orc.Predictor, mcts.WithLogger(log.Logger))
	if err != nil {
		log.Fatal().Err(err).Msg("create search")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	history := 0
	if *planes {
		history = cfg.Oracle.History
	}

	log.Info().Int("sims", searchCfg.Simulations).Float32("cpuct", searchCfg.Cpuct).Msg("generating debug game")
	result, err := selfplay.PlayDebugGame(ctx, search, cfg.Rules(), cfg.Game(), *depth, func(p selfplay.DebugProgress) {
		fmt.Printf("  Ply %3d | %-5s -> %3d | root N %4d | tree %6d | captured %5d\n",
			p.Ply, p.Player, p.Action, p.RootVisits, p.TreeSize, p.Nodes)
		if err := selfplay.PrintBoard(os.Stdout, p.State, history); err != nil {
			log.Error().Err(err).Msg("print board")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("debug game failed")
	}
	log.Info().Int("plies", result.Plies).Stringer("winner", result.Winner).Msg("game complete")

	path, err := selfplay.WriteDebugGame(*outDir, result, cfg.Board.Size, searchCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("write debug game")
	}
	log.Info().Str("path", path).Int("nodes", len(result.Rows)).Msg("debug game written")
}
