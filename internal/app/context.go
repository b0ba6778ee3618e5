package app

import (
	"context"
	"database/sql"
	"fmt"

	"brewboard/internal/config"
	"brewboard/internal/db"
	"brewboard/internal/engine"
	"brewboard/internal/migrate"
)

// App bundles the open database and engine for a workspace.
type App struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open prepares a workspace for use: opens the database, runs pending
// migrations, loads brewboard.yml (falling back to defaults when absent) and
// grants the configured bootstrap admins. Callers own Close.
func Open(ctx context.Context, workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	eng := engine.New(conn, cfg)
	for _, actorID := range cfg.Bootstrap.Admins {
		if err := eng.EnsureAdmin(ctx, actorID); err != nil {
			conn.Close()
			return nil, fmt.Errorf("bootstrap admin %s: %w", actorID, err)
		}
	}
	return &App{DB: conn, Config: cfg, Engine: eng}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
