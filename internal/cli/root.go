// Package cli implements the ormresource command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ammar0144/ormresource/pkg/config"
	"github.com/ammar0144/ormresource/pkg/orm"
	"github.com/ammar0144/ormresource/pkg/resource"
)

var (
	cfgFile   string
	section   string
	envFiles  []string
	rootPath  string
	module    string
	appDir    string
	rawOpts   map[string]string
	verbose   bool
	cfg       *config.Config
	logger    *zap.Logger
	models    []interface{}
	extraOpts []resource.Option
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ormresource",
	Short: "Bootstrap and inspect a module's entity manager",
	Long: `ormresource builds the entity manager of an application module from an INI
or YAML configuration file, with the timestampable, sluggable and tree behaviors
switched on by --option.

Commands that need a database connection build the full resource; config only
reads the configuration.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFiles...); err != nil {
			return err
		}

		var err error
		cfg, err = config.Load(cfgFile, section)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, err = newLogger(cfg.Log, verbose)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logger != nil {
			_ = logger.Sync()
		}
		return nil
	},
}

// Execute runs the root command. Applications embedding the CLI pass the Go
// types of their entities so that schema and proxy commands can map them.
// Without entities (the stock ormresource binary) only check, config and
// migrate do useful work.
func Execute(entities []interface{}, opts ...resource.Option) error {
	models = entities
	extraOpts = opts

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "app/configs/doctrine.ini", "configuration file (ini or yaml)")
	flags.StringVarP(&section, "section", "s", "production", "configuration section; empty reads the whole file")
	flags.StringSliceVar(&envFiles, "env-file", []string{".env"}, "files with KEY=VALUE environment overrides")
	flags.StringVar(&rootPath, "root", ".", "project root path")
	flags.StringVarP(&module, "module", "m", "default", "application module")
	flags.StringVar(&appDir, "app-dir", resource.DefaultAppDir, "application folder below the root path")
	flags.StringToStringVarP(&rawOpts, "option", "o", nil, "resource options, e.g. -o timestampable=true,tree=true")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(proxiesCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(watchCmd)
}

// newLogger builds a zap logger from the log section
func newLogger(lc config.LogConfig, debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if strings.EqualFold(lc.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	}

	level := zapcore.WarnLevel
	switch strings.ToLower(lc.Level) {
	case "info":
		level = zapcore.InfoLevel
	case "error", "silent":
		level = zapcore.ErrorLevel
	}
	if debug {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// parseOptions turns --option pairs into resource options. Values that are
// not booleans are passed through so the resource rejects them.
func parseOptions(raw map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for key, value := range raw {
		if b, err := strconv.ParseBool(value); err == nil {
			out[key] = b
			continue
		}
		out[key] = value
	}
	return out
}

// app is what the commands work on
type app struct {
	Resource      *resource.Resource
	EntityManager *orm.EntityManager
}

// openResource builds the resource described by the flags. The cleanup
// closes it.
func openResource(cmd *cobra.Command) (*app, func(), error) {
	if len(models) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: no entity types compiled in; schema, proxies and watch map nothing")
	}
	return initApp(cmd.Context(), cfg, resource.Module{
		RootPath: rootPath,
		Name:     module,
		AppDir:   appDir,
		Options:  parseOptions(rawOpts),
		Models:   models,
		Echo:     cmd.OutOrStdout(),
		Extra:    extraOpts,
	}, logger)
}
