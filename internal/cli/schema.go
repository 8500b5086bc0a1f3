package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the tables of mapped entities",
}

var schemaUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Create or alter the tables of mapped entities",
	RunE:  runSchemaUpdate,
}

func init() {
	schemaCmd.AddCommand(schemaUpdateCmd)
}

func runSchemaUpdate(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openResource(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	em := a.EntityManager
	if err := em.UpdateSchema(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema updated for %d entities\n", len(em.AllMetadata()))
	return nil
}
