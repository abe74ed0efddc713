package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TechXTT/tormtx/pkg/torm"
)

// NewRunCmd builds the `run` command, which executes statements in one
// transaction scope.
func NewRunCmd(opts *rootOptions) *cobra.Command {
	var (
		propagation string
		statements  []string
	)

	cmd := &cobra.Command{
		Use:   "run --sql STATEMENT [--sql STATEMENT...]",
		Short: "Execute statements inside one transaction scope",
		Long: `Execute statements inside one scope opened with the given propagation.
The scope commits when every statement succeeds and rolls back otherwise.
Rows returned by queries are printed as JSON, one array per statement.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(statements) == 0 {
				return errors.New("at least one --sql statement is required")
			}
			e, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			p, err := e.cfg.DefaultPropagation()
			if cmd.Flags().Changed("propagation") {
				p, err = torm.ParsePropagation(propagation)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return e.db.Transaction(cmd.Context(), p, func(ctx context.Context, s *torm.Session) error {
				for _, stmt := range statements {
					if err := runStatement(ctx, s, out, stmt); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&propagation, "propagation", "p", torm.Required.String(), "propagation mode of the scope")
	cmd.Flags().StringArrayVar(&statements, "sql", nil, "statement to execute (repeatable)")
	return cmd
}

func runStatement(ctx context.Context, s *torm.Session, out io.Writer, stmt string) error {
	if !returnsRows(stmt) {
		n, err := s.Exec(ctx, stmt)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d row(s) affected\n", n)
		return nil
	}
	rows, err := torm.Query(ctx, s, torm.Raw(), stmt)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

var rowKeywords = []string{"SELECT", "WITH", "SHOW", "PRAGMA", "EXPLAIN", "VALUES", "TABLE"}

func returnsRows(stmt string) bool {
	s := strings.ToUpper(strings.TrimSpace(stmt))
	for _, kw := range rowKeywords {
		if strings.HasPrefix(s, kw) {
			return true
		}
	}
	return strings.Contains(s, " RETURNING ")
}
