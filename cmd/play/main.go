package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/gomoku/config"
	"github.com/brensch/gomoku/executor/mcts"
	"github.com/brensch/gomoku/game"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file")
	oracle := flag.String("oracle", "", "Oracle: uniform, random or onnx")
	modelPath := flag.String("model", "", "Path to ONNX model")
	boardSize := flag.Int("board", 0, "Board size")
	sims := flag.Int("sims", 0, "Number of MCTS simulations per engine move")
	moveTime := flag.Duration("move-time", 0, "Time limit per engine move")
	aiFirst := flag.Bool("ai-first", false, "Engine plays Black and moves first")
	verbose := flag.Bool("v", false, "Log search details")
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level).With().Timestamp().Logger()

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
		case "sims":
			cfg.Search.Simulations = *sims
		case "move-time":
			cfg.Search.MoveTime = *moveTime
		}
	})
	// Play the strongest move rather than sampling.
	cfg.Search.Strategy = mcts.Deterministic.String()
	cfg.Search.AddNoise = false
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	human := game.Black
	if *aiFirst {
		human = game.White
	}
	m := &match{
		search: search,
		rules:  cfg.Rules(),
		human:  human,
		in:     bufio.NewScanner(os.Stdin),
		out:    os.Stdout,
	}
	fmt.Printf("You are %s on a %dx%d board, five in a row wins.\n", human, cfg.Board.Size, cfg.Board.Size)
	if _, err := m.run(ctx, cfg.Board.Size); err != nil && !errors.Is(err, errQuit) {
		log.Fatal().Err(err).Msg("game failed")
	}
}
