package resource

import (
	"context"
	"io"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/ammar0144/ormresource/pkg/config"
	"github.com/ammar0144/ormresource/pkg/orm"
	"github.com/ammar0144/ormresource/pkg/registry"
)

// ProviderSet provides the resource and its entity manager
var ProviderSet = wire.NewSet(
	ProvideResource,
	ProvideEntityManager,
)

// Module identifies the module a resource is built for
type Module struct {
	RootPath string
	Name     string
	AppDir   string
	Options  map[string]interface{}
	Models   []interface{}

	// Echo receives profiled statements; nil keeps stdout
	Echo io.Writer
	// Extra options are applied last
	Extra []Option
}

// ProvideResource creates the resource of module. The cleanup closes the
// entity manager and unpublishes it unless another resource took its key.
func ProvideResource(ctx context.Context, cfg *config.Config, module Module, reg *registry.Registry, logger *zap.Logger) (*Resource, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []Option{
		WithContext(ctx),
		WithModels(module.Models...),
		WithRegistry(reg),
		WithLogger(logger),
	}
	if module.AppDir != "" {
		opts = append(opts, WithAppDir(module.AppDir))
	}
	if module.Echo != nil {
		opts = append(opts, WithEchoWriter(module.Echo))
	}
	opts = append(opts, module.Extra...)

	r, err := New(cfg, module.RootPath, module.Name, module.Options, opts...)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		reg.CompareAndDelete(RegistryKey, r.em)
		if err := r.Close(); err != nil {
			logger.Warn("failed to close resource", zap.Error(err))
		}
	}
	return r, cleanup, nil
}

// ProvideEntityManager provides the entity manager of a resource
func ProvideEntityManager(r *Resource) (*orm.EntityManager, error) {
	return r.EntityManager()
}
