package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TechXTT/tormtx/pkg/config"
	"github.com/TechXTT/tormtx/pkg/runtime"
	"github.com/TechXTT/tormtx/pkg/torm"
)

const version = "v0.6.0"

const long = `torm runs SQL inside transaction scopes and manages database migrations.

Links select the driver by scheme: postgres://, pgx://, mysql:// and sqlite://.
Settings come from --config (YAML), TORM_* environment variables and .env.

Examples:
  torm run --link sqlite://app.db --sql "SELECT * FROM users"
  torm run --propagation nested --sql "UPDATE accounts SET balance = 0"
  torm migrate up --dir migrations
  torm migrate status`

type rootOptions struct {
	configFile string
	link       string
	logSQL     bool
}

// NewVersionCmd builds the `version` command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}

// NewRootCmd builds the top-level `torm` command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "torm",
		Short:        "TORM: transactional sessions and migrations",
		Long:         long,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&opts.link, "link", "", "database link (overrides TORM_LINK)")
	root.PersistentFlags().BoolVar(&opts.logSQL, "log-sql", false, "log every dispatched statement")

	root.AddCommand(NewRunCmd(opts))
	root.AddCommand(NewMigrateCmd(opts))
	root.AddCommand(NewVersionCmd())
	return root
}

// env is what a command needs to talk to the database.
type env struct {
	cfg       *config.Config
	logger    *zap.Logger
	connector *runtime.Connector
	db        *torm.DB
}

func (e *env) close() {
	e.connector.Close()
	_ = e.logger.Sync()
}

func (o *rootOptions) open(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.link != "" {
		cfg.Link = o.link
	}
	if cmd.Flags().Changed("log-sql") {
		cfg.LogSQL = o.logSQL
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	c := runtime.NewConnector()
	db := torm.New(c, cfg.Link,
		torm.WithLogger(logger),
		torm.WithStatementLog(cfg.LogSQL),
	)
	return &env{cfg: cfg, logger: logger, connector: c, db: db}, nil
}
