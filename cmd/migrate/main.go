// Command migrate manages the schema of the SQLite post store.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"review_bot/migrations"
)

var (
	dbPath   string
	db       *sql.DB
	provider *goose.Provider
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Manage the SQLite post store schema",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		db, err = sql.Open("sqlite", dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		provider, err = migrations.NewProvider(db)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return db.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", envOrDefault("DATABASE_PATH", "./data/posts.db"), "path to sqlite database")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Migrate to the latest version",
			RunE: func(cmd *cobra.Command, args []string) error {
				results, err := provider.Up(cmd.Context())
				for _, r := range results {
					fmt.Fprintln(cmd.OutOrStdout(), r)
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "up-one",
			Short: "Migrate one version up",
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := provider.UpByOne(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), r)
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back one version",
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := provider.Down(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), r)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(cmd *cobra.Command, args []string) error {
				statuses, err := provider.Status(cmd.Context())
				if err != nil {
					return err
				}
				for _, s := range statuses {
					applied := "-"
					if !s.AppliedAt.IsZero() {
						applied = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-20s %s\n", s.State, applied, s.Source.Path)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show current version",
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := provider.GetDBVersion(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d\n", v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Roll back all migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				results, err := provider.DownTo(cmd.Context(), 0)
				for _, r := range results {
					fmt.Fprintln(cmd.OutOrStdout(), r)
				}
				return err
			},
		},
	)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
