package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/widgets/internal/model"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "db",
		Aliases: []string{"database"},
		Short:   "Manage the widgets database",
		Long:    "Apply migrations, seed reference data and check connectivity for the configured database.",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBSeedCmd())
	cmd.AddCommand(newDBPingCmd())

	return cmd
}

// ---------- db migrate ----------

func newDBMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the api_keys, widgets and ratings tables",
		Long:  "Apply the schema for the configured driver. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate()
		},
	}
}

func runDBMigrate() error {
	ctx := context.Background()
	_, _, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	// Open already migrated; running again verifies the schema is stable.
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Printf("Schema is up to date (driver %s)\n", st.Driver())
	return nil
}

// ---------- db seed ----------

func newDBSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the default widget statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBSeed()
		},
	}
}

func runDBSeed() error {
	ctx := context.Background()
	_, _, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, name := range model.DefaultWidgetStatuses {
		status, err := st.EnsureWidgetStatus(ctx, name)
		if err != nil {
			return fmt.Errorf("seed status %q: %w", name, err)
		}
		fmt.Printf("  %-10s id=%d\n", status.Name, status.ID)
	}
	fmt.Println("Seeded widget statuses.")
	return nil
}

// ---------- db ping ----------

func newDBPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test connectivity to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBPing()
		},
	}
}

func runDBPing() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	start := time.Now()
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", st.Driver(), err)
	}
	fmt.Printf("Connection to %s OK (%s)\n", st.Driver(), time.Since(start).Round(time.Microsecond))
	return nil
}
