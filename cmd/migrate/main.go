package main

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"

	"github.com/cassiomorais/orders/internal/infrastructure/config"
	"github.com/cassiomorais/orders/internal/infrastructure/observability"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var (
		direction string
		dbURL     string
		path      string
		steps     int
	)

	flag.StringVar(&direction, "direction", "up", "Migration direction: up, down, steps or version")
	flag.StringVar(&dbURL, "db", "", "Database URL (defaults to DATABASE_URL, then the ORDERS_DATABASE_* settings)")
	flag.StringVar(&path, "path", "internal/repository/postgres/migrations", "Path to migration files")
	flag.IntVar(&steps, "n", 1, "Number of steps for -direction=steps (negative rolls back)")
	flag.Parse()

	logger := observability.InitLogger("info", "console", "orders-migrate", os.Stderr)

	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Fatal().Err(err).Msg("No database URL given and config could not be loaded")
		}
		dbURL = postgresURL(&cfg.Database)
	}

	m, err := migrate.New("file://"+path, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create migrate instance")
	}
	defer m.Close()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		err = m.Steps(steps)
	case "version":
		v, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			logger.Fatal().Err(verr).Msg("Failed to read schema version")
		}
		logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("Schema version")
		return
	default:
		logger.Fatal().Str("direction", direction).Msg("Unknown direction (use up, down, steps or version)")
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal().Err(err).Str("direction", direction).Msg("Migration failed")
	}
	logger.Info().Str("direction", direction).Msg("Migrations applied")
}

func postgresURL(c *config.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}
