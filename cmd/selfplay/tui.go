package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/brensch/gomoku/executor/selfplay"
	tea "github.com/charmbracelet/bubbletea"
)

const recentGames = 10

type model struct {
	stats       func() selfplay.Stats
	updates     <-chan selfplay.GameUpdate
	snapshot    selfplay.Stats
	recentGames []string
	done        bool
}

func initialModel(stats func() selfplay.Stats, updates <-chan selfplay.GameUpdate) model {
	return model{
		stats:    stats,
		updates:  updates,
		snapshot: stats(),
	}
}

type tickMsg time.Time

// runDoneMsg is sent when the coordinator returns.
type runDoneMsg struct{ err error }

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*250, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(updates <-chan selfplay.GameUpdate) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		m.snapshot = m.stats()
		return m, tickCmd()
	case runDoneMsg:
		m.done = true
		m.snapshot = m.stats()
		return m, tea.Quit
	case selfplay.GameUpdate:
		line := fmt.Sprintf("Worker %3d: %-5s wins, plies %3d, ex %3d  %s",
			msg.WorkerID, msg.Result.Winner, msg.Result.Plies, msg.Examples, msg.Result.GameID)
		m.recentGames = append([]string{line}, m.recentGames...)
		if len(m.recentGames) > recentGames {
			m.recentGames = m.recentGames[:recentGames]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	st := m.snapshot
	elapsed := st.Elapsed()
	perSec := func(n int64) float64 {
		if elapsed < time.Second {
			return 0
		}
		return float64(n) / elapsed.Seconds()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Games Played:     %d  (black %d / white %d / draw %d)\n", st.Games, st.BlackWins, st.WhiteWins, st.Draws)
	fmt.Fprintf(&b, "Total Examples:   %d\n", st.Rows)
	fmt.Fprintf(&b, "Total Moves:      %d\n", st.Moves)
	fmt.Fprintf(&b, "Total Inferences: %d\n", st.Inferences)
	fmt.Fprintf(&b, "Parquet Files:    %d\n", st.Files)
	fmt.Fprintf(&b, "Aborted Games:    %d\n", st.Aborted)
	fmt.Fprintf(&b, "Duration:         %s\n", elapsed.Round(time.Second))
	fmt.Fprintf(&b, "Games/Sec:        %.2f\n", perSec(st.Games))
	fmt.Fprintf(&b, "Moves/Sec:        %.2f\n", perSec(st.Moves))
	fmt.Fprintf(&b, "Inferences/Sec:   %.2f\n", perSec(st.Inferences))
	fmt.Fprintf(&b, "Batch avg=%.1f last=%d queue=%d run avg=%.2fms\n\n",
		st.Oracle.AvgBatchSize, st.Oracle.LastBatchSize, st.Oracle.QueueLen, st.Oracle.AvgRunMs)

	b.WriteString("Recent Games:\n")
	for _, g := range m.recentGames {
		b.WriteString(g + "\n")
	}

	if m.done {
		b.WriteString("\nDone.\n")
	} else {
		b.WriteString("\nPress q to stop (games in progress are checkpointed).\n")
	}
	return b.String()
}
