package resource

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ammar0144/ormresource/pkg/behavior/sluggable"
	"github.com/ammar0144/ormresource/pkg/behavior/timestampable"
	"github.com/ammar0144/ormresource/pkg/behavior/tree"
	"github.com/ammar0144/ormresource/pkg/orm"
	"github.com/ammar0144/ormresource/pkg/registry"
)

// Recognized option keys
const (
	OptionTimestampable = "timestampable"
	OptionSluggable     = "sluggable"
	OptionTree          = "tree"
	OptionProfile       = "profile"
)

// Options is the effective option set of a resource
type Options struct {
	Timestampable bool
	Sluggable     bool
	Tree          bool
	Profile       bool
}

// DefaultOptions returns every option switched off
func DefaultOptions() Options {
	return Options{}
}

// Map returns the option set keyed by option name
func (o Options) Map() map[string]bool {
	return map[string]bool{
		OptionTimestampable: o.Timestampable,
		OptionSluggable:     o.Sluggable,
		OptionTree:          o.Tree,
		OptionProfile:       o.Profile,
	}
}

func (o *Options) field(key string) (*bool, bool) {
	switch key {
	case OptionTimestampable:
		return &o.Timestampable, true
	case OptionSluggable:
		return &o.Sluggable, true
	case OptionTree:
		return &o.Tree, true
	case OptionProfile:
		return &o.Profile, true
	default:
		return nil, false
	}
}

// ParseOptions merges raw over the defaults. Keys must be recognized and
// values must be bool; the first violation rejects the whole set.
func ParseOptions(raw map[string]interface{}) (Options, error) {
	opts := DefaultOptions()

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		dst, ok := opts.field(key)
		if !ok {
			return DefaultOptions(), &InvalidOptionError{Key: key, Reason: "not supported"}
		}
		value, ok := raw[key].(bool)
		if !ok {
			return DefaultOptions(), &InvalidOptionError{
				Key:    key,
				Reason: fmt.Sprintf("value must be true or false, got %T", raw[key]),
			}
		}
		*dst = value
	}
	return opts, nil
}

// listenerKind enumerates the behavior listeners an option can switch on
type listenerKind int

const (
	timestampableListener listenerKind = iota
	sluggableListener
	treeListener
)

func (k listenerKind) enabled(o Options) bool {
	switch k {
	case timestampableListener:
		return o.Timestampable
	case sluggableListener:
		return o.Sluggable
	case treeListener:
		return o.Tree
	default:
		return false
	}
}

func (k listenerKind) build(s *settings) orm.Listener {
	switch k {
	case timestampableListener:
		if s.clock != nil {
			return timestampable.New(timestampable.WithClock(s.clock))
		}
		return timestampable.New()
	case sluggableListener:
		return sluggable.New()
	case treeListener:
		return tree.New()
	default:
		return nil
	}
}

var listenerKinds = []listenerKind{timestampableListener, sluggableListener, treeListener}

// listenersFor returns the listeners switched on by o, in registration order
func listenersFor(o Options, s *settings) []orm.Listener {
	var out []orm.Listener
	for _, kind := range listenerKinds {
		if kind.enabled(o) {
			out = append(out, kind.build(s))
		}
	}
	return out
}

// DefaultAppDir is the application folder below the root path
const DefaultAppDir = "app"

// Option configures a Resource
type Option func(*settings)

type settings struct {
	ctx      context.Context
	appDir   string
	models   []interface{}
	conn     *sql.DB
	registry *registry.Registry
	logger   *zap.Logger
	echo     io.Writer
	clock    func() time.Time
}

func defaultSettings() *settings {
	return &settings{
		ctx:      context.Background(),
		appDir:   DefaultAppDir,
		registry: registry.Default(),
		logger:   zap.NewNop(),
		echo:     os.Stdout,
	}
}

// WithAppDir sets the application folder below the root path
func WithAppDir(dir string) Option {
	return func(s *settings) { s.appDir = dir }
}

// WithModels adds Go entity types; only those declared in an entity folder are mapped
func WithModels(models ...interface{}) Option {
	return func(s *settings) { s.models = append(s.models, models...) }
}

// WithConn reuses an existing connection pool instead of opening one
func WithConn(conn *sql.DB) Option {
	return func(s *settings) { s.conn = conn }
}

// WithRegistry publishes the entity manager into r instead of the default registry
func WithRegistry(r *registry.Registry) Option {
	return func(s *settings) { s.registry = r }
}

// WithLogger sets the bootstrap logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithEchoWriter sets where the profile logger prints statements (default stdout)
func WithEchoWriter(w io.Writer) Option {
	return func(s *settings) { s.echo = w }
}

// WithContext bounds metadata loading and connection setup
func WithContext(ctx context.Context) Option {
	return func(s *settings) { s.ctx = ctx }
}

// WithClock sets the time source of the timestampable listener
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.clock = now }
}
