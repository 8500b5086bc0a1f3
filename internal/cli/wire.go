//go:build wireinject
// +build wireinject

package cli

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/ammar0144/ormresource/pkg/config"
	"github.com/ammar0144/ormresource/pkg/registry"
	"github.com/ammar0144/ormresource/pkg/resource"
)

func initApp(ctx context.Context, cfg *config.Config, module resource.Module, logger *zap.Logger) (*app, func(), error) {
	panic(wire.Build(
		registry.Default,
		resource.ProviderSet,
		wire.Struct(new(app), "*"),
	))
}
