package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/winfeed/backend/migrations"
)

// Schema management for the ledger database. The API binary applies the
// embedded migrations itself on startup; this tool exists for rollbacks,
// version inspection, and repairing a dirty state.
//
// Usage: migrate [-database URL] [-dir PATH] <up|down|version|force N|drop>
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		databaseURL string
		dir         string
	)
	flag.StringVar(&databaseURL, "database", os.Getenv("DATABASE_URL"), "Postgres URL")
	flag.StringVar(&dir, "dir", "", "Read migrations from a directory instead of the embedded set")
	flag.Parse()

	if databaseURL == "" {
		log.Fatal().Msg("A database URL is required (-database flag or DATABASE_URL)")
	}

	m, err := newMigrator(databaseURL, dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize migrator")
	}
	defer m.Close()

	args := flag.Args()
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "up":
		err = m.Up()
	case "down":
		// One step at a time; repeat to roll back further.
		err = m.Steps(-1)
	case "version":
		reportVersion(m)
		return
	case "force":
		if len(args) < 2 {
			log.Fatal().Msg("force requires a version argument")
		}
		version, perr := strconv.Atoi(args[1])
		if perr != nil {
			log.Fatal().Str("version", args[1]).Msg("force version must be an integer")
		}
		err = m.Force(version)
	case "drop":
		err = m.Drop()
	default:
		log.Fatal().Str("command", command).Msg("Unknown command (want up, down, version, force, drop)")
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("Schema already up to date")
			return
		}
		log.Fatal().Err(err).Str("command", command).Msg("Migration failed")
	}

	log.Info().Str("command", command).Msg("Migration completed")
}

// newMigrator builds a migrator over the embedded migration set, or over a
// filesystem directory when one is given.
func newMigrator(databaseURL, dir string) (*migrate.Migrate, error) {
	if dir != "" {
		return migrate.New(fmt.Sprintf("file://%s", dir), databaseURL)
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return migrate.NewWithSourceInstance("iofs", src, databaseURL)
}

func reportVersion(m *migrate.Migrate) {
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("No schema migrations recorded")
			return
		}
		log.Fatal().Err(err).Msg("Failed to read migration version")
	}
	log.Info().
		Uint("version", version).
		Bool("dirty", dirty).
		Msg("Current schema version")
}
