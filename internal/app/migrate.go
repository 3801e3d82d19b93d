package app

import (
	"context"
	"errors"
)

// Migrate applies pending SQL migrations from the configured directory.
func (a *App) Migrate(ctx context.Context, dir string) error {
	if dir == "" {
		dir = a.Config.Database.MigrationsPath
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot migrate")
	}
	if closeStore != nil {
		defer closeStore()
	}

	applied, err := store.Migrate(ctx, dir)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		a.Logger.Info().Str("dir", dir).Msg("schema is up to date")
		return nil
	}
	for _, name := range applied {
		a.Logger.Info().Str("migration", name).Msg("applied migration")
	}
	return nil
}
