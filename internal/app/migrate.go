package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Migrate applies the SQL files under database.migrations_path in
// lexical order. Files are expected to be idempotent (IF NOT EXISTS).
func (a *App) Migrate(ctx context.Context) error {
	path := a.Config.Database.MigrationsPath
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no .sql files found in %s", path)
	}
	sort.Strings(files)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	for _, name := range files {
		sql, err := os.ReadFile(filepath.Join(path, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := store.ExecRaw(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		a.Logger.Info().Str("migration", name).Msg("applied")
	}

	return nil
}
