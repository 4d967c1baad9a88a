package selfplay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SaveCheckpoints writes the unfinished games to path atomically. An empty
// list removes the file.
func SaveCheckpoints(path string, games []*InProgressGame) error {
	if len(games) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove checkpoint: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir checkpoint dir: %w", err)
	}

	data, err := json.Marshal(games)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoints reads games saved by SaveCheckpoints. A missing file is not
// an error. Entries without a state are skipped.
func LoadCheckpoints(path string) ([]*InProgressGame, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var games []*InProgressGame
	if err := json.Unmarshal(data, &games); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	out := games[:0]
	for _, g := range games {
		if g == nil || g.State == nil || g.GameID == "" {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}
