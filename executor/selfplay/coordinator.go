package selfplay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brensch/gomoku/executor/inference"
	"github.com/brensch/gomoku/executor/mcts"
	"github.com/brensch/gomoku/game"
	"github.com/brensch/gomoku/rules"
	"github.com/brensch/gomoku/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Workers int
	// MaxGames stops the run after this many finished games. 0 runs until
	// the context ends.
	MaxGames      int64
	GamesPerFlush int
	// OutDir receives parquet batches. Empty disables writing.
	OutDir string
	// CheckpointPath stores unfinished games on shutdown and resumes them on
	// the next run. Empty disables checkpointing.
	CheckpointPath string

	Game   GameSettings
	Search mcts.Config
	Rules  rules.Gomoku
}

// GameUpdate is published for every finished game.
type GameUpdate struct {
	WorkerID int
	Result   GameResult
	Examples int
}

// Stats is a snapshot of a run.
type Stats struct {
	Started    time.Time
	Games      int64
	Rows       int64
	Moves      int64
	Inferences int64
	BlackWins  int64
	WhiteWins  int64
	Draws      int64
	Files      int
	Aborted    int64
	Oracle     inference.RuntimeStats
}

func (s Stats) Elapsed() time.Duration { return time.Since(s.Started) }

// Coordinator runs Workers concurrent self-play games against one shared
// oracle. Finished games flow to a single aggregator that owns the parquet
// writer and the counters.
type Coordinator struct {
	cfg       Config
	predictor mcts.Predictor
	log       zerolog.Logger

	moves      atomic.Int64
	inferences atomic.Int64
	aborted    atomic.Int64

	updates chan GameUpdate

	mu    sync.Mutex
	stats Stats
}

type Option func(*Coordinator)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

func NewCoordinator(cfg Config, predictor mcts.Predictor, opts ...Option) (*Coordinator, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if cfg.Game.BoardSize <= 0 {
		return nil, fmt.Errorf("board size must be positive, got %d", cfg.Game.BoardSize)
	}
	if err := cfg.Search.Validate(); err != nil {
		return nil, fmt.Errorf("search config: %w", err)
	}
	if cfg.GamesPerFlush <= 0 {
		cfg.GamesPerFlush = 50
	}

	c := &Coordinator{
		cfg:       cfg,
		predictor: predictor,
		log:       zerolog.Nop(),
		updates:   make(chan GameUpdate, cfg.Workers*4),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Updates delivers finished games. Updates are dropped when nobody reads.
func (c *Coordinator) Updates() <-chan GameUpdate { return c.updates }

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	st := c.stats
	c.mu.Unlock()

	st.Moves = c.moves.Load()
	st.Inferences = c.inferences.Load()
	st.Aborted = c.aborted.Load()
	if sp, ok := c.predictor.(interface{ Stats() inference.RuntimeStats }); ok {
		st.Oracle = sp.Stats()
	}
	return st
}

// countingPredictor counts oracle calls.
type countingPredictor struct {
	mcts.Predictor
	n *atomic.Int64
}

func (p countingPredictor) Predict(ctx context.Context, state *game.State) (mcts.Prediction, error) {
	p.n.Add(1)
	return p.Predictor.Predict(ctx, state)
}

type finishedGame struct {
	workerID int
	outcome  PlayGameOutcome
}

// Run plays games until ctx ends or MaxGames is reached. Unfinished games are
// checkpointed when CheckpointPath is set.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.stats.Started = time.Now()
	c.mu.Unlock()

	resumeCh := make(chan *InProgressGame, c.cfg.Workers)
	if c.cfg.CheckpointPath != "" {
		resumed, err := LoadCheckpoints(c.cfg.CheckpointPath)
		if err != nil {
			return err
		}
		c.log.Info().Int("games", len(resumed)).Str("path", c.cfg.CheckpointPath).Msg("loaded checkpoints")
		resumeCh = make(chan *InProgressGame, len(resumed)+c.cfg.Workers)
		for _, g := range resumed {
			resumeCh <- g
		}
	}

	games := make(chan finishedGame, c.cfg.Workers*4)
	checkpoints := make(chan *InProgressGame, c.cfg.Workers+cap(resumeCh))

	aggErr := make(chan error, 1)
	go func() {
		aggErr <- c.aggregate(games, cancel)
	}()

	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		eg.Go(func() error {
			return c.worker(egCtx, i, resumeCh, games, checkpoints)
		})
	}
	workErr := eg.Wait()
	close(games)
	err := <-aggErr

	close(resumeCh)
	close(checkpoints)
	var pending []*InProgressGame
	for cp := range checkpoints {
		pending = append(pending, cp)
	}
	// Games that were never picked up stay pending.
	for g := range resumeCh {
		pending = append(pending, g)
	}
	if c.cfg.CheckpointPath != "" {
		if cpErr := SaveCheckpoints(c.cfg.CheckpointPath, pending); cpErr != nil {
			err = errors.Join(err, cpErr)
		} else {
			c.log.Info().Int("games", len(pending)).Msg("saved checkpoints")
		}
	}

	st := c.Stats()
	c.log.Info().
		Int64("games", st.Games).
		Int64("rows", st.Rows).
		Int("files", st.Files).
		Dur("elapsed", st.Elapsed()).
		Msg("self-play finished")

	return errors.Join(workErr, err)
}

func (c *Coordinator) worker(ctx context.Context, id int, resumeCh <-chan *InProgressGame, games chan<- finishedGame, checkpoints chan<- *InProgressGame) error {
	log := c.log.With().Int("worker", id).Logger()

	searchCfg := c.cfg.Search
	if searchCfg.Seed != 0 {
		searchCfg.Seed += uint64(id)
	}
	oracle := countingPredictor{Predictor: c.predictor, n: &c.inferences}
	search, err := mcts.NewSearch(c.cfg.Game.BoardSize, searchCfg, c.cfg.Rules, oracle, mcts.WithLogger(log))
	if err != nil {
		return err
	}

	settings := c.cfg.Game
	log.Debug().Msg("worker started")
	for n := 0; ; n++ {
		if ctx.Err() != nil {
			return nil
		}

		var resume *InProgressGame
		select {
		case resume = <-resumeCh:
		default:
		}
		if c.cfg.Game.Seed != 0 {
			settings.Seed = c.cfg.Game.Seed + uint64(id)*1_000_003 + uint64(n)
		}

		out, err := PlayGame(ctx, id, search, c.cfg.Rules, settings, PlayGameOptions{
			Resume: resume,
			OnMove: func(int, game.Action) { c.moves.Add(1) },
			Log:    log,
		})
		if err != nil {
			var aee *mcts.AlreadyExpandedError
			if errors.As(err, &aee) {
				log.Error().Err(err).Msg("search invariant violated")
				return err
			}
			if errors.Is(err, inference.ErrClosed) {
				return err
			}
			c.aborted.Add(1)
			log.Warn().Err(err).Str("game", out.Result.GameID).Msg("game aborted")
			continue
		}
		if out.Checkpoint != nil {
			checkpoints <- out.Checkpoint
			return nil
		}
		games <- finishedGame{workerID: id, outcome: out}
	}
}

// aggregate owns the batch writer. It drains games until the channel closes.
func (c *Coordinator) aggregate(games <-chan finishedGame, stop context.CancelFunc) error {
	var bw *store.BatchWriter
	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}
	published := func(b *store.Batch) {
		if b == nil {
			return
		}
		c.mu.Lock()
		c.stats.Files++
		c.mu.Unlock()
		c.log.Info().Str("path", b.Path).Int("games", b.Games).Int("rows", b.Rows).Msg("parquet flush ok")
	}

	if c.cfg.OutDir != "" {
		var err error
		bw, err = store.NewBatchWriter(c.cfg.OutDir, c.cfg.GamesPerFlush)
		if err != nil {
			c.log.Error().Err(err).Msg("open batch writer")
			fail(err)
			stop()
		}
	}

	for fg := range games {
		out := fg.outcome

		if bw != nil && len(out.Rows) > 0 {
			b, err := bw.WriteGame(out.Rows)
			if err != nil {
				c.log.Error().Err(err).Str("game", out.Result.GameID).Msg("write game")
				fail(err)
			}
			published(b)
		}

		c.mu.Lock()
		c.stats.Games++
		c.stats.Rows += int64(len(out.Rows))
		switch out.Result.Winner {
		case game.Black:
			c.stats.BlackWins++
		case game.White:
			c.stats.WhiteWins++
		default:
			c.stats.Draws++
		}
		total := c.stats.Games
		c.mu.Unlock()

		c.log.Info().
			Int("worker", fg.workerID).
			Str("game", out.Result.GameID).
			Stringer("winner", out.Result.Winner).
			Int("plies", out.Result.Plies).
			Int64("total", total).
			Msg("game finished")

		select {
		case c.updates <- GameUpdate{WorkerID: fg.workerID, Result: out.Result, Examples: len(out.Rows)}:
		default:
		}

		if c.cfg.MaxGames > 0 && total >= c.cfg.MaxGames {
			stop()
		}
	}

	if bw != nil {
		b, err := bw.Flush()
		if err != nil {
			c.log.Error().Err(err).Msg("parquet flush failed")
			fail(err)
		}
		published(b)
	}
	return firstErr
}
