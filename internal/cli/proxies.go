package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Generate proxy sources for the mapped entities",
	Long:  `Write one proxy file per mapped entity into the library proxy folder. Unchanged files are left alone.`,
	RunE:  runProxies,
}

func runProxies(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openResource(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r, em := a.Resource, a.EntityManager
	written, err := em.GenerateProxies()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, path := range written {
		fmt.Fprintln(out, path)
	}
	fmt.Fprintf(out, "%d proxies written to %s\n", len(written), r.ProxyDir())
	return nil
}
