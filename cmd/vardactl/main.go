// Command vardactl is the administrator's command-line tool: a cobra
// command tree operating directly on the store (not through the HTTP
// surface) for the handful of operations an operator runs out-of-band —
// rescheduling a stuck task, flipping a sample's active flag — the same
// command-tree shape inodb-vibe-vep's vibe-vep config subcommands use,
// generalized from a local YAML file to the engine's database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"varda/internal/config"
	"varda/internal/store/sqlstore"
	"varda/internal/task"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vardactl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vardactl",
		Short: "Administer a running varda engine",
	}

	var dbDriver, dbDSN string
	root.PersistentFlags().StringVar(&dbDriver, "db-driver", "", "override VARDA_DB_DRIVER")
	root.PersistentFlags().StringVar(&dbDSN, "db-dsn", "", "override VARDA_DB_DSN")
	viper.BindPFlag("db.driver", root.PersistentFlags().Lookup("db-driver"))
	viper.BindPFlag("db.dsn", root.PersistentFlags().Lookup("db-dsn"))

	root.AddCommand(newRescheduleTaskCmd())
	root.AddCommand(newActivateSampleCmd())
	root.AddCommand(newDeactivateSampleCmd())

	return root
}

// openStore loads Config the same way vardad does, layering any
// --db-driver/--db-dsn flag (via viper) over the environment, and opens a
// connection to the resulting database.
func openStore() (*sqlstore.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if d := viper.GetString("db.driver"); d != "" {
		cfg.DB.Driver = d
	}
	if d := viper.GetString("db.dsn"); d != "" {
		cfg.DB.DSN = d
	}
	return sqlstore.Open(cfg.DB.Driver, cfg.DB.DSN)
}

func newManagerForStore(db *sqlstore.DB) *task.Manager {
	// A CLI-invoked reschedule/activate doesn't need a live broker or
	// import/annotate pipelines wired in; Activate/Deactivate only touch
	// the store through Manager.Store.
	return &task.Manager{Store: db}
}
