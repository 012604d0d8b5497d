// Command migrate inspects and changes the database schema.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"canopy/internal/config"
	"canopy/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// target is the database a command runs against, opened without applying
// the schema.
type target struct {
	db  *gorm.DB
	cfg *config.Config
}

type opener func() (*target, error)

func openConfigured() (*target, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &target{db: db, cfg: cfg}, nil
}

var errSQLiteSQL = errors.New("the embedded migrations are PostgreSQL DDL; sqlite schemas are built with `migrate auto`")

func newRootCmd(open opener) *cobra.Command {
	tg := &target{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Canopy schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			t, err := open()
			if err != nil {
				return err
			}
			*tg = *t
			return nil
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending SQL migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if tg.cfg.DBDriver == "sqlite" {
					return errSQLiteSQL
				}
				ms, err := database.Migrations()
				if err != nil {
					return err
				}
				ran, err := database.Migrate(cmd.Context(), tg.db, ms)
				if err != nil {
					return fmt.Errorf("sql migrations failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ %d migration(s) applied\n", ran)
				return nil
			},
		},
		&cobra.Command{
			Use:   "auto",
			Short: "Run GORM AutoMigrate for every persistent model",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg := *tg.cfg
				cfg.DBSchemaMode = database.SchemaModeAuto
				if err := database.ApplySchema(cmd.Context(), tg.db, &cfg); err != nil {
					return fmt.Errorf("auto schema apply failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "✅ AutoMigrate complete")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the schema plan and where each migration stands",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				report, err := database.InspectSchema(cmd.Context(), tg.db, tg.cfg)
				if err != nil {
					return fmt.Errorf("schema status failed: %w", err)
				}
				return printReport(cmd.OutOrStdout(), report)
			},
		},
		&cobra.Command{
			Use:   "down <version>",
			Short: "Roll back one applied migration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if tg.cfg.DBDriver == "sqlite" {
					return errSQLiteSQL
				}
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				if err := database.RollbackMigration(cmd.Context(), tg.db, version); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ rolled back migration %06d\n", version)
				return nil
			},
		},
	)
	return root
}

func printReport(out io.Writer, r *database.SchemaReport) error {
	fmt.Fprintf(out, "mode=%s env=%s run_sql=%t run_auto=%t pending=%d\n",
		r.Mode, r.Environment, r.RunSQL, r.RunAutoMigrate, len(r.Pending()))
	if len(r.Migrations) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MIGRATION\tSTATE\tAPPLIED AT")
	for _, st := range r.Migrations {
		state, at := "pending", "-"
		if st.Applied != nil {
			state, at = "applied", st.Applied.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", st.Migration, state, at)
	}
	return w.Flush()
}

func main() {
	var opened *target
	root := newRootCmd(func() (*target, error) {
		t, err := openConfigured()
		opened = t
		return t, err
	})

	err := root.ExecuteContext(context.Background())
	if opened != nil {
		_ = database.Close(opened.db)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
