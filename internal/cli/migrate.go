package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
	Long:  `Run SQL migrations with golang-migrate.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run all pending migrations",
	Long:  `Apply all pending migrations, by default from the module's migrations folder.`,
	RunE:  runMigrateUp,
}

func init() {
	migrateUpCmd.Flags().StringVar(&migrationsDir, "dir", "", "migrations folder (default <module path>/migrations)")
	migrateCmd.AddCommand(migrateUpCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openResource(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r, em := a.Resource, a.EntityManager

	dir := migrationsDir
	if dir == "" {
		dir = filepath.Join(r.ModulePath(), "migrations")
	}
	result, err := em.Connection().RunMigrations(dir)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if !result.Applied {
		fmt.Fprintf(out, "already up to date at version %d\n", result.Version)
		return nil
	}
	fmt.Fprintf(out, "migrated to version %d", result.Version)
	if result.Dirty {
		fmt.Fprint(out, " (dirty)")
	}
	fmt.Fprintln(out)
	return nil
}
