package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brensch/gomoku/game"
	"github.com/brensch/gomoku/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	dataDir := flag.String("data-dir", "data/generated", "Directory holding self-play parquet batches")
	debugFile := flag.String("debug", "", "Debug game parquet file to print instead")
	ply := flag.Int("ply", -1, "With -debug, only print this ply")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	if *debugFile != "" {
		rows, err := store.ReadDebugGame(*debugFile)
		if err != nil {
			log.Fatal().Err(err).Msg("read debug game")
		}
		for _, r := range rows {
			if *ply >= 0 && int(r.Ply) != *ply {
				continue
			}
			mark := " "
			if r.Chosen {
				mark = "*"
			}
			fmt.Printf("ply %3d %s depth %d node %5d parent %5d action %4d %-5s N %5d Q %+.3f P %.3f\n",
				r.Ply, mark, r.Depth, r.NodeID, r.ParentID, r.Action, game.Player(r.ToMove), r.Visits, r.Q, r.Prior)
		}
		return
	}

	s, err := store.Summarize(context.Background(), *dataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("summarize")
	}
	fmt.Printf("Files:       %d\n", s.Files)
	fmt.Printf("Games:       %d\n", s.Games)
	fmt.Printf("Rows:        %d\n", s.Rows)
	fmt.Printf("Black wins:  %d\n", s.BlackWins)
	fmt.Printf("White wins:  %d\n", s.WhiteWins)
	fmt.Printf("Draws:       %d\n", s.Draws)
	fmt.Printf("Avg plies:   %.1f\n", s.AvgPlies)
	fmt.Printf("Avg moves:   %.1f (recorded, opening excluded)\n", s.AvgMoves)
}
