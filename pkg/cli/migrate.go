package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TechXTT/tormtx/pkg/migrate"
)

// NewMigrateCmd builds the `migrate` command.
func NewMigrateCmd(opts *rootOptions) *cobra.Command {
	var migrations string

	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			dir := e.cfg.MigrationsDir
			if cmd.Flags().Changed("dir") {
				dir = migrations
			}
			mgr, err := migrate.NewManager(e.db, dir, migrate.WithOutput(cmd.OutOrStdout()))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			switch args[0] {
			case "up":
				n, err := mgr.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", n)
			case "down":
				return mgr.Down(ctx)
			case "status":
				status, err := mgr.Status(ctx)
				if err != nil {
					return err
				}
				for _, st := range status {
					state := "pending"
					if st.Applied {
						state = "applied"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%04d_%s\t%s\n", st.Version, st.Name, state)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&migrations, "dir", "migrations", "Migrations directory")
	return cmd
}
