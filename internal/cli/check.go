package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ammar0144/ormresource/pkg/cache"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Build the resource and verify the connection",
	Long: `Build the entity manager, ping the database and list the entity folders,
the entities declared in them and the listeners switched on.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openResource(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r, em := a.Resource, a.EntityManager
	if err := em.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	declared, err := r.Configuration().MetadataDriver.AllClassNames(cmd.Context())
	if err != nil {
		return err
	}

	var mapped []string
	for _, cm := range em.AllMetadata() {
		mapped = append(mapped, cm.Name+" ("+cm.Table+")")
	}
	sort.Strings(mapped)

	var enabled []string
	for name, on := range r.Options().Map() {
		if on {
			enabled = append(enabled, name)
		}
	}
	sort.Strings(enabled)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "module path:  %s\n", r.ModulePath())
	fmt.Fprintf(out, "entity paths: %s\n", strings.Join(r.EntityFolders(), ", "))
	fmt.Fprintf(out, "proxy path:   %s\n", r.ProxyDir())
	fmt.Fprintf(out, "cache:        %s\n", r.Cache().Name())
	fmt.Fprintf(out, "options:      %s\n", strings.Join(enabled, ", "))
	fmt.Fprintf(out, "listeners:    %d\n", r.EventManager().Count())
	fmt.Fprintf(out, "declared:     %s\n", strings.Join(declared, ", "))
	fmt.Fprintf(out, "mapped:       %s\n", strings.Join(mapped, ", "))

	if reporter, ok := r.Cache().(cache.MetricsReporter); ok {
		logger.Debug("cache metrics", zap.Object("cache", reporter.GetMetrics()))
	}
	return nil
}
