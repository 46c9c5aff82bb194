package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/smallbiznis/hera/internal/config"
	"github.com/smallbiznis/hera/internal/migration"
	"github.com/smallbiznis/hera/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	var rollback int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the configured database",
		Long: `Apply the universal schema to the database named by the DATABASE_*
environment variables. PostgreSQL runs the versioned SQL migrations and
supports --rollback; other dialects are auto-migrated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(opts, cmd.OutOrStdout())
			dbCfg := db.FromAppConfig(config.Load())
			if rollback > 0 && dbCfg.Type != "postgres" && dbCfg.Type != "" {
				return p.failure(ExitCommandError, errors.New("rollback requires postgres"))
			}

			conn, err := db.New(nil, dbCfg, zap.NewNop())
			if err != nil {
				return p.failure(ExitCommandError, err)
			}
			sqlDB, err := conn.DB()
			if err != nil {
				return p.failure(ExitCommandError, err)
			}
			defer sqlDB.Close()

			dialect := conn.Dialector.Name()
			if rollback > 0 {
				if err := migration.Rollback(sqlDB, rollback); err != nil {
					return p.failure(ExitFailure, err)
				}
				return p.success(map[string]any{"dialect": dialect, "rolled_back": rollback}, func(w io.Writer) {
					fmt.Fprintf(w, "rolled back %d step(s) on %s\n", rollback, dialect)
				})
			}

			if err := migration.Run(conn); err != nil {
				return p.failure(ExitFailure, err)
			}
			return p.success(map[string]any{"dialect": dialect, "migrated": true}, func(w io.Writer) {
				fmt.Fprintf(w, "schema up to date on %s\n", dialect)
			})
		},
	}
	cmd.Flags().IntVar(&rollback, "rollback", 0, "revert this many migration steps instead of applying")
	return cmd
}
