package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/k-code-yt/go-storefront/pkg/db/postgres"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var (
		dir   string
		steps int
	)

	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or roll back schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrate.New("file://"+dir, postgres.GetMigrateURL(postgres.NewPostgresConfig("storefront")))
			if err != nil {
				return fmt.Errorf("create migrate instance: %w", err)
			}
			defer m.Close()
			return runMigration(m, args[0], steps)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory holding the migration files")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply or roll back (0 = all)")
	return cmd
}

type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
}

func runMigration(m migrator, action string, steps int) error {
	var err error
	switch action {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, vErr := m.Version()
		if errors.Is(vErr, migrate.ErrNilVersion) {
			logrus.Info("MIGRATE:NO_VERSION")
			return nil
		}
		if vErr != nil {
			return vErr
		}
		logrus.WithFields(logrus.Fields{
			"version": version,
			"dirty":   dirty,
		}).Info("MIGRATE:VERSION")
		return nil
	default:
		return fmt.Errorf("unknown action %q (use up, down or version)", action)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logrus.WithField("action", action).Info("MIGRATE:NO_CHANGE")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", action, err)
	}
	logrus.WithField("action", action).Info("MIGRATE:APPLIED")
	return nil
}
