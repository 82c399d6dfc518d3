package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/tikpoptv/terrahost/internal/blobstore"
	"github.com/tikpoptv/terrahost/internal/config"
	"github.com/tikpoptv/terrahost/internal/database"
)

// app holds what every subcommand opens: settings, the database and the
// blob store.
type app struct {
	cfg   *config.Config
	db    *database.DB
	store blobstore.Store
}

func openApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg.SlogLevel())

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store, err := blobstore.Open(cfg.Storage.Backend, cfg.Storage.Root)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening blob store: %w", err)
	}

	return &app{cfg: cfg, db: db, store: store}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("closing blob store", "error", err)
	}
	if err := a.db.Close(); err != nil {
		slog.Error("closing database", "error", err)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
