package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/gomoku/config"
	"github.com/brensch/gomoku/executor/selfplay"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file (GOMOKU_* env vars override it)")
	jsonLogs := flag.Bool("json-logs", false, "Write JSON logs instead of console output")
	useTUI := flag.Bool("tui", false, "Show the live stats view; logs go to -log-file")
	logFile := flag.String("log-file", "selfplay.log", "Log file used while the TUI is active")
	outDir := flag.String("out-dir", "", "Output directory for generated training parquet batches")
	workers := flag.Int("workers", 0, "Number of self-play workers")
	gamesPerFlush := flag.Int("games-per-flush", 0, "Number of games to buffer per parquet flush")
	maxGames := flag.Int64("max-games", 0, "If > 0, stop after generating this many games (across all workers)")
	boardSize := flag.Int("board", 0, "Board size")
	sims := flag.Int("sims", 0, "MCTS simulations per move")
	cpuct := flag.Float64("cpuct", 0, "MCTS exploration constant")
	oracle := flag.String("oracle", "", "Oracle: uniform, random or onnx")
	modelPath := flag.String("model", "", "Path to ONNX model")
	onnxSessions := flag.Int("onnx-sessions", 0, "Number of ONNX Runtime sessions, each with its own batching loop")
	batchSize := flag.Int("batch-size", 0, "Oracle batch size")
	batchTimeout := flag.Duration("batch-timeout", 0, "Max time to wait for filling an oracle batch")
	checkpoint := flag.String("checkpoint", "", "File holding unfinished games between runs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Flags override the config only when given.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "json-logs":
			cfg.Log.JSON = *jsonLogs
		case "out-dir":
			cfg.SelfPlay.OutDir = *outDir
		case "workers":
			cfg.SelfPlay.Workers = *workers
		case "games-per-flush":
			cfg.SelfPlay.GamesPerFlush = *gamesPerFlush
		case "max-games":
			cfg.SelfPlay.MaxGames = *maxGames
		case "board":
			cfg.Board.Size = *boardSize
		case "sims":
			cfg.Search.Simulations = *sims
		case "cpuct":
			cfg.Search.Cpuct = *cpuct
		case "oracle":
			cfg.Oracle.Kind = *oracle
		case "model":
			cfg.Oracle.ModelPath = *modelPath
		case "onnx-sessions":
			cfg.Oracle.Sessions = *onnxSessions
		case "batch-size":
			cfg.Oracle.BatchSize = *batchSize
		case "batch-timeout":
			cfg.Oracle.BatchTimeout = *batchTimeout
		case "checkpoint":
			cfg.SelfPlay.CheckpointPath = *checkpoint
		}
	})

	var out io.Writer = os.Stderr
	if *useTUI {
		f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	log.Logger = newLogger(out, cfg.Log)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.Oracle.Kind == config.OracleOnnx {
		if _, err := os.Stat(cfg.Oracle.ModelPath); err != nil {
			log.Fatal().Err(err).Str("model", cfg.Oracle.ModelPath).Msg("model file not found")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orc, err := cfg.Open(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("open oracle")
	}
	defer orc.Close()

	spCfg, err := cfg.Coordinator()
	if err != nil {
		log.Fatal().Err(err).Msg("coordinator config")
	}
	// Each worker has about one request in flight, so larger batches never fill.
	if cfg.Oracle.BatchSize > spCfg.Workers {
		log.Warn().
			Int("batch_size", cfg.Oracle.BatchSize).
			Int("workers", spCfg.Workers).
			Msg("batch size exceeds max in-flight requests; batches will cap near the worker count")
	}

	coord, err := selfplay.NewCoordinator(spCfg, orc.Predictor, selfplay.WithLogger(log.Logger))
	if err != nil {
		log.Fatal().Err(err).Msg("create coordinator")
	}

	log.Info().
		Int("workers", spCfg.Workers).
		Int("board", spCfg.Game.BoardSize).
		Int("sims", spCfg.Search.Simulations).
		Str("out_dir", spCfg.OutDir).
		Msg("starting self-play")

	if *useTUI {
		err = runWithTUI(ctx, coord)
	} else {
		err = runWithLogs(ctx, coord)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("self-play failed")
		orc.Close()
		os.Exit(1)
	}
}

func newLogger(out io.Writer, cfg config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// runWithLogs runs the coordinator and logs throughput every second.
func runWithLogs(ctx context.Context, coord *selfplay.Coordinator) error {
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return err
		case u := <-coord.Updates():
			log.Debug().
				Int("worker", u.WorkerID).
				Stringer("winner", u.Result.Winner).
				Int("plies", u.Result.Plies).
				Int("examples", u.Examples).
				Msg("game")
		case <-ticker.C:
			st := coord.Stats()
			secs := st.Elapsed().Seconds()
			log.Info().
				Int64("games", st.Games).
				Float64("moves_per_sec", float64(st.Moves)/secs).
				Float64("inf_per_sec", float64(st.Inferences)/secs).
				Float64("batch_avg", st.Oracle.AvgBatchSize).
				Int64("batch_last", st.Oracle.LastBatchSize).
				Int("queue", st.Oracle.QueueLen).
				Float64("run_avg_ms", st.Oracle.AvgRunMs).
				Msg("stats")
		}
	}
}

// runWithTUI runs the coordinator behind the bubbletea stats view. Quitting
// the view stops the run and waits for the checkpoint.
func runWithTUI(ctx context.Context, coord *selfplay.Coordinator) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(initialModel(coord.Stats, coord.Updates()), tea.WithAltScreen(), tea.WithContext(ctx))

	done := make(chan error, 1)
	go func() {
		err := coord.Run(ctx)
		done <- err
		p.Send(runDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		return errors.Join(err, <-done)
	}
	cancel()
	return <-done
}
