package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Summary aggregates the training files of one output directory.
type Summary struct {
	Files     int
	Games     int64
	Rows      int64
	BlackWins int64
	WhiteWins int64
	Draws     int64
	// AvgPlies is the mean final ply, opening stones included.
	AvgPlies float64
	// AvgMoves is the mean number of recorded rows per game.
	AvgMoves float64
}

// Summarize queries every finished batch in dir with DuckDB. Files still in
// dir/tmp are not counted.
func Summarize(ctx context.Context, dir string) (Summary, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		return Summary{}, err
	}
	if len(files) == 0 {
		return Summary{}, nil
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return Summary{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()
	_, _ = db.ExecContext(ctx, "PRAGMA threads=4")

	glob := "'" + escapeSQLString(filepath.Join(dir, "*.parquet")) + "'"
	// The first recorded row of a game tells the result from Black's side. The
	// last recorded move ends the game, and opening stones come before the
	// first row, so the final ply is max(ply)+1.
	query := `
		WITH games AS (
			SELECT
				game_id,
				count(*) AS moves,
				max(ply) + 1 AS plies,
				arg_min(CASE WHEN to_move = 1 THEN value ELSE -value END, ply) AS black_result
			FROM read_parquet(` + glob + `)
			GROUP BY game_id
		)
		SELECT
			count(*),
			CAST(coalesce(sum(moves), 0) AS BIGINT),
			count(*) FILTER (WHERE black_result > 0),
			count(*) FILTER (WHERE black_result < 0),
			count(*) FILTER (WHERE black_result = 0),
			coalesce(avg(plies), 0),
			coalesce(avg(moves), 0)
		FROM games`

	s := Summary{Files: len(files)}
	row := db.QueryRowContext(ctx, query)
	if err := row.Scan(&s.Games, &s.Rows, &s.BlackWins, &s.WhiteWins, &s.Draws, &s.AvgPlies, &s.AvgMoves); err != nil {
		return Summary{}, fmt.Errorf("summarize %s: %w", dir, err)
	}
	return s, nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
