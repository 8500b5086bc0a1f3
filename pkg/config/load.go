package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ORMRESOURCE_CONNECTION_HOST
const EnvPrefix = "ORMRESOURCE"

// sectionInheritSeparator separates a section from its parent: [staging : production]
const sectionInheritSeparator = ":"

// ErrSectionNotFound is returned when the requested section is absent from the file
var ErrSectionNotFound = errors.New("config section not found")

// Load reads an INI or YAML file and decodes the given section.
// An empty section decodes the whole file.
func Load(path, section string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return decodeSection(v, section)
}

// LoadReader reads configuration of the given format (ini, yaml) from r
func LoadReader(r io.Reader, format, section string) (*Config, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("failed to parse %s config: %w", format, err)
	}
	return decodeSection(v, section)
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment.
// Missing files are skipped; existing variables are not overwritten.
func LoadEnvFile(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

func decodeSection(v *viper.Viper, section string) (*Config, error) {
	settings := map[string]any{}
	if section == "" {
		settings = v.AllSettings()
	} else {
		merged, err := resolveSection(v, strings.ToLower(section), map[string]bool{})
		if err != nil {
			return nil, err
		}
		settings = merged
	}

	sv := viper.New()
	if err := sv.MergeConfigMap(settings); err != nil {
		return nil, fmt.Errorf("failed to merge section %q: %w", section, err)
	}
	sv.SetEnvPrefix(EnvPrefix)
	sv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	sv.AutomaticEnv()

	cfg := DefaultConfig()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		iniBoolHookFunc(),
	))
	if err := sv.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// resolveSection returns the raw key/values of a section, parents first
func resolveSection(v *viper.Viper, name string, seen map[string]bool) (map[string]any, error) {
	if seen[name] {
		return nil, fmt.Errorf("config section %q inherits from itself", name)
	}
	seen[name] = true

	key, parent := findSection(v, name)
	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, name)
	}

	merged := map[string]any{}
	if parent != "" {
		inherited, err := resolveSection(v, parent, seen)
		if err != nil {
			return nil, err
		}
		for k, val := range inherited {
			merged[k] = val
		}
	}

	raw, ok := v.Get(key).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config key %q is not a section", key)
	}
	for k, val := range raw {
		merged[k] = val
	}
	return merged, nil
}

// findSection locates "name" or "name : parent" among the top level keys
func findSection(v *viper.Viper, name string) (key, parent string) {
	for _, k := range v.AllKeys() {
		top := k
		if i := strings.Index(k, "."); i >= 0 {
			top = k[:i]
		}
		child, inherited, hasParent := strings.Cut(top, sectionInheritSeparator)
		if strings.TrimSpace(child) != name {
			continue
		}
		if hasParent {
			return top, strings.TrimSpace(inherited)
		}
		return top, ""
	}
	return "", ""
}

// iniBoolHookFunc accepts the INI spellings of booleans (on/off, yes/no, empty)
func iniBoolHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Bool {
			return data, nil
		}
		switch strings.ToLower(strings.TrimSpace(data.(string))) {
		case "", "0", "off", "no", "false", "none":
			return false, nil
		case "1", "on", "yes", "true":
			return true, nil
		default:
			return nil, fmt.Errorf("invalid boolean value %q", data)
		}
	}
}
