package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ammar0144/ormresource/pkg/metadata"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate proxies when entity sources change",
	Long:  `Watch the entity folders and regenerate proxies after every change until interrupted.`,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openResource(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r, em := a.Resource, a.EntityManager

	logger.Info("watching entity folders", zap.Strings("folders", r.EntityFolders()))
	return metadata.Watch(cmd.Context(), r.EntityFolders(), func(path string) {
		if err := em.ClearCaches(cmd.Context()); err != nil {
			logger.Warn("failed to clear caches", zap.Error(err))
		}
		if err := em.Reload(cmd.Context()); err != nil {
			logger.Error("failed to reload entity metadata", zap.String("changed", path), zap.Error(err))
			return
		}
		written, err := em.GenerateProxies()
		if err != nil {
			logger.Error("failed to regenerate proxies", zap.String("changed", path), zap.Error(err))
			return
		}
		logger.Info("proxies regenerated", zap.String("changed", path), zap.Int("written", len(written)))
	})
}
